package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

// SessionRevoker drops every refresh allow-record for a principal.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, subject string) (int, error)
}

// SessionsCLI offers break-glass session management.
type SessionsCLI struct {
	revoker SessionRevoker
}

// NewSessionsCLI builds the helper around revoker.
func NewSessionsCLI(revoker SessionRevoker) *SessionsCLI {
	return &SessionsCLI{revoker: revoker}
}

// RevokeOptions defines the flags of the revoke-sessions command.
type RevokeOptions struct {
	UserID     string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RevokeSummary is the JSON output of revoke-sessions.
type RevokeSummary struct {
	UserID  string `json:"user_id"`
	Revoked int    `json:"revoked"`
}

// RevokeCommand revokes every refresh token of one principal and returns
// the process exit code. Access tokens already issued stay valid until
// they expire.
func (c *SessionsCLI) RevokeCommand(ctx context.Context, opts RevokeOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	id, err := uuid.Parse(strings.TrimSpace(opts.UserID))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "revoke-sessions: invalid --user %q\n", opts.UserID)
		return 1
	}
	n, err := c.revoker.RevokeAll(ctx, id.String())
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "revoke-sessions: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(RevokeSummary{UserID: id.String(), Revoked: n}); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "revoke-sessions: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "revoked %d refresh token(s) for %s\n", n, id)
	return 0
}
