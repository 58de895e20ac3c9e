package notify

import (
	"errors"
	"strings"
)

// DefaultFrom is the sender used when Email.From is empty.
const DefaultFrom = "noreply@flarehub.com"

// Email is one outbound message.
type Email struct {
	To      string
	Subject string
	Body    string
	From    string
}

// Validate checks the fields a message cannot be sent without.
func (e Email) Validate() error {
	if strings.TrimSpace(e.To) == "" {
		return errors.New("notify: missing recipient")
	}
	if strings.TrimSpace(e.Subject) == "" {
		return errors.New("notify: missing subject")
	}
	return nil
}

// Template is a rendered subject and body.
type Template struct {
	Subject string
	Body    string
}

// To addresses the template.
func (t Template) To(to string) Email {
	return Email{To: to, Subject: t.Subject, Body: t.Body}
}

func ApplicationSubmitted(name string) Template {
	return Template{
		Subject: "Application Received",
		Body:    "Dear " + name + ",\n\nThank you for submitting your application to Flare Hub. We will review it shortly.",
	}
}

func ApplicationApproved(name, startupName string) Template {
	return Template{
		Subject: "Application Approved!",
		Body:    "Dear " + name + ",\n\nCongratulations! Your application for " + startupName + " has been approved!",
	}
}

// ApplicationRejected appends a comments paragraph only when comments is non-empty.
func ApplicationRejected(name, startupName, comments string) Template {
	body := "Dear " + name + ",\n\nWe regret to inform you that your application for " + startupName + " was not approved."
	if comments != "" {
		body += "\n\nComments: " + comments
	}
	return Template{Subject: "Application Update", Body: body}
}
