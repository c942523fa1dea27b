package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskEmailVerification delivers the email verification link.
	TaskEmailVerification = "email:verification"
	// TaskEmailPasswordReset delivers the password reset link.
	TaskEmailPasswordReset = "email:password_reset"
	// TaskEmailWorkspaceInvite delivers a workspace invitation.
	TaskEmailWorkspaceInvite = "email:workspace_invite"

	maxRetry = 3
)

// AccountEmailPayload carries a one-time token for an account email.
type AccountEmailPayload struct {
	To    string `json:"to"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

// WorkspaceInvitePayload carries an invitation.
type WorkspaceInvitePayload struct {
	To            string `json:"to"`
	WorkspaceName string `json:"workspace_name"`
	InviterName   string `json:"inviter_name"`
	Role          string `json:"role"`
	Token         string `json:"token"`
}

// NewEmailVerificationTask constructs an Asynq task.
func NewEmailVerificationTask(payload AccountEmailPayload) (*asynq.Task, error) {
	return newTask(TaskEmailVerification, payload)
}

// NewPasswordResetTask constructs an Asynq task.
func NewPasswordResetTask(payload AccountEmailPayload) (*asynq.Task, error) {
	return newTask(TaskEmailPasswordReset, payload)
}

// NewWorkspaceInviteTask constructs an Asynq task.
func NewWorkspaceInviteTask(payload WorkspaceInvitePayload) (*asynq.Task, error) {
	return newTask(TaskEmailWorkspaceInvite, payload)
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault), asynq.MaxRetry(maxRetry)), nil
}
