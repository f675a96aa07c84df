// Package mailtemplates renders the notifications sent by the backend. HTML
// bodies come from the templates embedded under assets/mail; subjects and
// plain text bodies are defined next to each template.
package mailtemplates

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"net/url"
	"path"
	"strings"
	"sync"
	texttemplate "text/template"

	root "github.com/reevlo/reevlo-backend"
	"github.com/reevlo/reevlo-backend/notifications"
)

const templatesDir = "assets/mail"

var (
	available   map[TemplateKey]*htmltemplate.Template
	availableMu sync.RWMutex
)

// TemplateKey identifies an HTML template: its filename without extension.
type TemplateKey string

// MailTemplate pairs an HTML template with the subject and plain text body of
// the notification. File may be empty for text only notifications, like SMS.
// WebAppURI is the web app page that handles the links of the notification.
type MailTemplate struct {
	File        TemplateKey
	Placeholder notifications.Notification
	WebAppURI   string
}

// Link returns the web app URL of the template with the given query.
func (mt MailTemplate) Link(webAppURL string, query url.Values) string {
	link := strings.TrimSuffix(webAppURL, "/") + mt.WebAppURI
	if len(query) > 0 {
		link += "?" + query.Encode()
	}
	return link
}

// Load parses every HTML template embedded in the binary. It is safe to call
// more than once.
func Load() error {
	loaded := make(map[TemplateKey]*htmltemplate.Template)
	err := fs.WalkDir(root.Assets, templatesDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".html" {
			return nil
		}
		tmpl, err := htmltemplate.ParseFS(root.Assets, p)
		if err != nil {
			return fmt.Errorf("could not parse %s: %w", p, err)
		}
		loaded[TemplateKey(strings.TrimSuffix(d.Name(), ".html"))] = tmpl
		return nil
	})
	if err != nil {
		return err
	}
	availableMu.Lock()
	available = loaded
	availableMu.Unlock()
	return nil
}

// Available returns the loaded templates by key.
func Available() map[TemplateKey]*htmltemplate.Template {
	availableMu.RLock()
	defer availableMu.RUnlock()
	return available
}

// ExecTemplate renders the subject, the plain body and, if the template has a
// file, the HTML body with the data provided. Recipient fields are left for
// the caller to fill.
func (mt MailTemplate) ExecTemplate(data any) (*notifications.Notification, error) {
	subject, err := execText("subject", mt.Placeholder.Subject, data)
	if err != nil {
		return nil, err
	}
	plain, err := execText("plain", mt.Placeholder.PlainBody, data)
	if err != nil {
		return nil, err
	}
	n := &notifications.Notification{Subject: subject, PlainBody: plain}
	if mt.File == "" {
		return n, nil
	}
	tmpl, ok := Available()[mt.File]
	if !ok {
		return nil, fmt.Errorf("template %s not found", mt.File)
	}
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, data); err != nil {
		return nil, err
	}
	n.Body = buf.String()
	return n, nil
}

func execText(name, text string, data any) (string, error) {
	if text == "" {
		return "", nil
	}
	tmpl, err := texttemplate.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
