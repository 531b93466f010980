package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/farellandr/eventhub/internal/models"
)

type Template string

const (
	EventReminder            Template = "EventReminder"
	EventUpdated             Template = "EventUpdated"
	EventCancelled           Template = "EventCancelled"
	RegistrationConfirmation Template = "RegistrationConfirmation"
	RegistrationCancelled    Template = "RegistrationCancelled"
	EventFlagged             Template = "EventFlagged"
	EventUnflagged           Template = "EventUnflagged"
	AccountUpdated           Template = "AccountUpdated"
)

// Type maps a template onto the stored notification type.
func (t Template) Type() models.NotificationType {
	switch t {
	case EventReminder:
		return models.NotificationReminder
	case EventCancelled, RegistrationCancelled:
		return models.NotificationCancellation
	}
	return models.NotificationUpdate
}

type content struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[Template]content{
	EventReminder: parse(EventReminder,
		`Reminder: {{.Title}} is tomorrow`,
		`Hi {{.Name}},

This is a reminder that {{.Title}} starts {{.Start}} at {{.Address}}.
{{if .Party}}Your registration covers {{.Party}} {{if eq .Party 1}}person{{else}}people{{end}}.
{{end}}See you there!`),
	EventUpdated: parse(EventUpdated,
		`Update: {{.Title}}`,
		`Hi {{.Name}},

{{if .Note}}{{.Note}}
{{else}}The details of {{.Title}} have changed.
{{end}}
When: {{.Start}}
Where: {{.Address}}`),
	EventCancelled: parse(EventCancelled,
		`Cancelled: {{.Title}}`,
		`Hi {{.Name}},

{{.Title}}, scheduled for {{.Start}}, has been cancelled by the organizer. Your registration has been removed.`),
	RegistrationConfirmation: parse(RegistrationConfirmation,
		`You're registered for {{.Title}}`,
		`Hi {{.Name}},

Your registration for {{.Title}} is confirmed.
When: {{.Start}}
Where: {{.Address}}
{{if .Tier}}Ticket: {{.Tier}}
{{end}}{{if .Party}}Party size: {{.Party}}
{{end}}`),
	RegistrationCancelled: parse(RegistrationCancelled,
		`Registration cancelled: {{.Title}}`,
		`Hi {{.Name}},

Your registration for {{.Title}} has been cancelled.`),
	EventFlagged: parse(EventFlagged,
		`Your event {{.Title}} was flagged`,
		`Hi {{.Name}},

An administrator flagged {{.Title}} for review.{{if .Note}}
Reason: {{.Note}}{{end}}`),
	EventUnflagged: parse(EventUnflagged,
		`Your event {{.Title}} is no longer flagged`,
		`Hi {{.Name}},

The moderation flag on {{.Title}} has been cleared.`),
	AccountUpdated: parse(AccountUpdated,
		`Your account was updated`,
		`Hi {{.Name}},

{{.Note}}`),
}

func parse(name Template, subject, body string) content {
	return content{
		subject: template.Must(template.New(string(name) + ".subject").Parse(subject)),
		body:    template.Must(template.New(string(name) + ".body").Parse(body)),
	}
}

// data is what every template may reference.
type data struct {
	Name    string
	Title   string
	Start   string
	Address string
	Tier    string
	Party   int
	Note    string
}

// Render produces the subject and body for a template.
func Render(t Template, event *models.Event, recipient Recipient, note string, loc *time.Location) (string, string, error) {
	c, ok := templates[t]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", t)
	}
	if loc == nil {
		loc = time.UTC
	}

	d := data{Name: recipient.DisplayName(), Note: note, Tier: recipient.TierName, Party: recipient.PartySize}
	if event != nil {
		d.Title = event.Title
		d.Start = event.StartTime.In(loc).Format("Mon, 02 Jan 2006 15:04 MST")
		d.Address = event.Address
	}

	var subject, body bytes.Buffer
	if err := c.subject.Execute(&subject, d); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", t, err)
	}
	if err := c.body.Execute(&body, d); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", t, err)
	}
	return subject.String(), strings.TrimSpace(body.String()), nil
}
