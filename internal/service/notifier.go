package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-connect-api/internal/models"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// Notifier delivers out-of-band notifications about sessions.
type Notifier interface {
	SessionScheduled(ctx context.Context, event models.SessionEvent) error
}

// SendgridNotifier emails booking confirmations through SendGrid.
type SendgridNotifier struct {
	key  string
	from *sgmail.Email
	send func(rest.Request) (*rest.Response, error)
}

// NewSendgridNotifier constructs a SendGrid backed notifier.
func NewSendgridNotifier(apiKey, fromName, fromAddress string) *SendgridNotifier {
	return &SendgridNotifier{
		key:  apiKey,
		from: sgmail.NewEmail(fromName, fromAddress),
		send: sendgrid.API,
	}
}

// SessionScheduled sends the booking confirmation to the student.
func (n *SendgridNotifier) SessionScheduled(_ context.Context, event models.SessionEvent) error {
	if event.StudentEmail == "" {
		return nil
	}
	req := sendgrid.GetRequest(n.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(n.confirmation(event))

	res, err := n.send(req)
	if err != nil {
		return fmt.Errorf("send confirmation for session %s: %w", event.SessionID, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send confirmation for session %s: sendgrid status %d", event.SessionID, res.StatusCode)
	}
	return nil
}

func (n *SendgridNotifier) confirmation(event models.SessionEvent) *sgmail.SGMailV3 {
	when := event.ScheduledAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST")
	p := sgmail.NewPersonalization()
	p.Subject = "Your tutoring session is booked"
	p.AddTos(sgmail.NewEmail("", event.StudentEmail))

	text := fmt.Sprintf("Your %s session on %q with %s is scheduled for %s.", event.Subject, event.Topic, event.TutorName, when)
	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", text),
		sgmail.NewContent("text/html", "<p>"+text+"</p>"),
	)
	return m
}

// LogNotifier records notifications in the log when no mail provider is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// SessionScheduled logs the confirmation that would have been sent.
func (n *LogNotifier) SessionScheduled(_ context.Context, event models.SessionEvent) error {
	n.logger.Info("session confirmation",
		zap.String("session_id", event.SessionID),
		zap.String("student_id", event.StudentID),
		zap.String("tutor", event.TutorName),
		zap.Time("scheduled_at", event.ScheduledAt),
	)
	return nil
}
