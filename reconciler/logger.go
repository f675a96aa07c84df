package reconciler

import (
	"github.com/robfig/cron/v3"
	"go.vocdoni.io/dvote/log"
)

// cronLogger sends the scheduler messages to the service log. The scheduler
// reports every start and skip as info, which is debug noise for us.
type cronLogger struct{}

var _ cron.Logger = cronLogger{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debugw("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Warnw("cron: "+msg, append(keysAndValues, "error", err)...)
}
