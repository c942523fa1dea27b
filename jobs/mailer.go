package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/adminory/adminory/internal/jobs"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	Logger *slog.Logger
}

// Send implements Mailer.
func (m LogMailer) Send(_ context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email", slog.String("to", msg.To), slog.String("subject", msg.Subject), slog.String("body", msg.Body))
	return nil
}

// EmailHandlers renders and sends the email tasks.
type EmailHandlers struct {
	mailer      Mailer
	frontendURL string
	metrics     *jobmetrics.Metrics
}

// NewEmailHandlers constructs EmailHandlers. Links point at frontendURL.
func NewEmailHandlers(mailer Mailer, frontendURL string, metrics *jobmetrics.Metrics) *EmailHandlers {
	return &EmailHandlers{mailer: mailer, frontendURL: strings.TrimRight(frontendURL, "/"), metrics: metrics}
}

// TaskHandlers lists the handlers for worker registration.
func (h *EmailHandlers) TaskHandlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskEmailVerification, Handler: h.HandleVerification},
		{Type: TaskEmailPasswordReset, Handler: h.HandlePasswordReset},
		{Type: TaskEmailWorkspaceInvite, Handler: h.HandleWorkspaceInvite},
	}
}

// HandleVerification processes TaskEmailVerification tasks.
func (h *EmailHandlers) HandleVerification(ctx context.Context, t *asynq.Task) error {
	var payload AccountEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.To == "" || payload.Token == "" {
		return asynq.SkipRetry
	}
	tracker := h.metrics.Track(TaskEmailVerification)
	return tracker.End(h.mailer.Send(ctx, Message{
		To:      payload.To,
		Subject: "Verify your email",
		Body:    fmt.Sprintf("Hi %s,\n\nConfirm your email address: %s\n", payload.Name, h.link("/verify-email", payload.Token)),
	}))
}

// HandlePasswordReset processes TaskEmailPasswordReset tasks.
func (h *EmailHandlers) HandlePasswordReset(ctx context.Context, t *asynq.Task) error {
	var payload AccountEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.To == "" || payload.Token == "" {
		return asynq.SkipRetry
	}
	tracker := h.metrics.Track(TaskEmailPasswordReset)
	return tracker.End(h.mailer.Send(ctx, Message{
		To:      payload.To,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("Hi %s,\n\nReset your password within the hour: %s\n\nIgnore this email if you did not ask for it.\n", payload.Name, h.link("/reset-password", payload.Token)),
	}))
}

// HandleWorkspaceInvite processes TaskEmailWorkspaceInvite tasks.
func (h *EmailHandlers) HandleWorkspaceInvite(ctx context.Context, t *asynq.Task) error {
	var payload WorkspaceInvitePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.To == "" || payload.Token == "" {
		return asynq.SkipRetry
	}
	tracker := h.metrics.Track(TaskEmailWorkspaceInvite)
	return tracker.End(h.mailer.Send(ctx, Message{
		To:      payload.To,
		Subject: fmt.Sprintf("You have been invited to %s", payload.WorkspaceName),
		Body: fmt.Sprintf("%s invited you to join %s as %s.\n\nAccept the invitation: %s\n",
			payload.InviterName, payload.WorkspaceName, payload.Role, h.link("/invites/accept", payload.Token)),
	}))
}

func (h *EmailHandlers) link(path, token string) string {
	return h.frontendURL + path + "?token=" + url.QueryEscape(token)
}
