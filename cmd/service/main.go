package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/reevlo/reevlo-backend/api"
	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/notifications"
	"github.com/reevlo/reevlo-backend/notifications/mailtemplates"
	"github.com/reevlo/reevlo-backend/notifications/smtp"
	"github.com/reevlo/reevlo-backend/notifications/twilio"
	"github.com/reevlo/reevlo-backend/reconciler"
	"github.com/reevlo/reevlo-backend/stripe"
	"github.com/reevlo/reevlo-backend/validator"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.vocdoni.io/dvote/log"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// define flags
	flag.StringP("host", "h", "0.0.0.0", "listen address")
	flag.IntP("port", "p", 8080, "listen port")
	flag.StringP("secret", "s", "", "API secret used to sign the JWT tokens")
	flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.String("mongo-url", "", "the URL of the MongoDB server, the in-memory storage is used when empty")
	flag.String("mongo-db", "reevlo", "the name of the MongoDB database")
	flag.String("stripe-api-secret", "", "Stripe API secret")
	flag.String("stripe-webhook-secret", "", "Stripe webhook secret")
	flag.String("web-app-url", "http://localhost:3000", "the URL of the web app, used for the checkout redirects")
	flag.Bool("debug", false, "enable the debug routes that credit coins without paying")
	flag.String("sync-schedule", reconciler.DefaultSchedule, "cron schedule of the checkout session reconciliation, empty disables it")
	flag.Duration("sync-window", reconciler.DefaultWindow, "how far back the reconciliation looks for completed sessions")
	flag.String("smtp-server", "", "SMTP server, notifications by email are disabled when empty")
	flag.Int("smtp-port", 587, "SMTP port")
	flag.String("smtp-username", "", "SMTP username")
	flag.String("smtp-password", "", "SMTP password")
	flag.String("email-from-address", "", "email address of the notifications sender")
	flag.String("email-from-name", "Reevlo", "name of the notifications sender")
	flag.String("twilio-account-sid", "", "Twilio account SID, SMS alerts are disabled when empty")
	flag.String("twilio-auth-token", "", "Twilio auth token")
	flag.String("twilio-from-number", "", "Twilio sender number")
	flag.String("payout-alert-phone", "", "phone number that receives an SMS for each payout request")
	// parse flags
	flag.Parse()
	// initialize Viper
	viper.SetEnvPrefix("REEVLO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	// read the configuration
	log.Init(viper.GetString("log-level"), "stdout", nil)
	host := viper.GetString("host")
	port := viper.GetInt("port")
	secret := viper.GetString("secret")
	if secret == "" {
		log.Fatal("secret is required")
	}
	webAppURL := strings.TrimSuffix(viper.GetString("web-app-url"), "/")
	debug := viper.GetBool("debug")

	// initialize the storage
	var database db.Database
	if mongoURL := viper.GetString("mongo-url"); mongoURL != "" {
		mongoDB, err := db.New(mongoURL, viper.GetString("mongo-db"))
		if err != nil {
			log.Fatalf("could not create the MongoDB database: %v", err)
		}
		database = mongoDB
	} else {
		log.Warnw("no mongo-url provided, using the in-memory storage: data is lost on restart")
		database = db.NewMemory()
	}
	defer database.Close()

	// initialize the stripe service
	stripeConfig, err := stripe.NewConfig(viper.GetString("stripe-api-secret"), viper.GetString("stripe-webhook-secret"))
	if err != nil {
		log.Fatalf("invalid stripe configuration: %v", err)
	}
	stripeService, err := stripe.NewService(stripeConfig, nil, database)
	if err != nil {
		log.Fatalf("could not create the stripe service: %v", err)
	}

	// initialize the notification services
	if err := mailtemplates.Load(); err != nil {
		log.Fatalf("could not load the mail templates: %v", err)
	}
	var mailService notifications.NotificationService
	if server := viper.GetString("smtp-server"); server != "" {
		mailService = new(smtp.Email)
		if err := mailService.New(&smtp.Config{
			FromName:     viper.GetString("email-from-name"),
			FromAddress:  viper.GetString("email-from-address"),
			SMTPUsername: viper.GetString("smtp-username"),
			SMTPPassword: viper.GetString("smtp-password"),
			SMTPServer:   server,
			SMTPPort:     viper.GetInt("smtp-port"),
		}); err != nil {
			log.Fatalf("could not create the email service: %v", err)
		}
		log.Infow("email notifications enabled", "server", server)
	} else {
		log.Warnw("no SMTP server configured, new accounts are verified without email")
	}
	var smsService notifications.NotificationService
	alertPhone := viper.GetString("payout-alert-phone")
	if err := validator.New().Validate(&struct {
		Phone string `validate:"omitempty,phone"`
	}{alertPhone}); err != nil {
		log.Fatalf("invalid payout-alert-phone %q", alertPhone)
	}
	if sid := viper.GetString("twilio-account-sid"); sid != "" {
		smsService = new(twilio.SMS)
		if err := smsService.New(&twilio.Config{
			AccountSid: sid,
			AuthToken:  viper.GetString("twilio-auth-token"),
			FromNumber: viper.GetString("twilio-from-number"),
		}); err != nil {
			log.Fatalf("could not create the SMS service: %v", err)
		}
		log.Infow("SMS payout alerts enabled", "to", alertPhone)
	}

	// start the reconciler
	var rec *reconciler.Reconciler
	if schedule := viper.GetString("sync-schedule"); schedule != "" {
		rec, err = reconciler.New(reconciler.Config{
			Schedule: schedule,
			Window:   viper.GetDuration("sync-window"),
		}, stripeService)
		if err != nil {
			log.Fatalf("could not create the reconciler: %v", err)
		}
		rec.Start()
	}

	// create the local API server
	server, err := api.New(&api.Config{
		Host:          host,
		Port:          port,
		Secret:        secret,
		DB:            database,
		Stripe:        stripeService,
		MailService:   mailService,
		SMSService:    smsService,
		OperatorPhone: alertPhone,
		WebAppURL:     webAppURL,
		Debug:         debug,
	})
	if err != nil {
		log.Fatalf("could not create the API: %v", err)
	}
	server.Start()
	log.Infow("server started", "host", host, "port", port, "debug", debug)

	// wait for a termination signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Infow("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if rec != nil {
		if err := rec.Stop(ctx); err != nil {
			log.Warnw("reconciler did not stop cleanly", "error", err)
		}
	}
	if err := server.Stop(ctx); err != nil {
		log.Warnw("API server did not stop cleanly", "error", err)
	}
}
