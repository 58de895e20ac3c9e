package notify

import "testing"

func TestTemplates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		tpl     Template
		subject string
		body    string
	}{
		{
			name:    "submitted",
			tpl:     ApplicationSubmitted("Ann"),
			subject: "Application Received",
			body:    "Dear Ann,\n\nThank you for submitting your application to Flare Hub. We will review it shortly.",
		},
		{
			name:    "approved",
			tpl:     ApplicationApproved("Ann", "Acme"),
			subject: "Application Approved!",
			body:    "Dear Ann,\n\nCongratulations! Your application for Acme has been approved!",
		},
		{
			name:    "rejected without comments",
			tpl:     ApplicationRejected("Ann", "Acme", ""),
			subject: "Application Update",
			body:    "Dear Ann,\n\nWe regret to inform you that your application for Acme was not approved.",
		},
		{
			name:    "rejected with comments",
			tpl:     ApplicationRejected("Ann", "Acme", "Too early"),
			subject: "Application Update",
			body:    "Dear Ann,\n\nWe regret to inform you that your application for Acme was not approved.\n\nComments: Too early",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if tc.tpl.Subject != tc.subject {
				t.Fatalf("subject: got %q want %q", tc.tpl.Subject, tc.subject)
			}
			if tc.tpl.Body != tc.body {
				t.Fatalf("body: got %q want %q", tc.tpl.Body, tc.body)
			}
			e := tc.tpl.To("a@x.com")
			if e.To != "a@x.com" || e.Subject != tc.subject {
				t.Fatalf("unexpected email %+v", e)
			}
		})
	}
}

func TestEmailValidate(t *testing.T) {
	t.Parallel()

	if err := (Email{Subject: "s"}).Validate(); err == nil {
		t.Fatalf("expected error for missing recipient")
	}
	if err := (Email{To: "a@x.com"}).Validate(); err == nil {
		t.Fatalf("expected error for missing subject")
	}
	if err := (Email{To: "a@x.com", Subject: "s"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
