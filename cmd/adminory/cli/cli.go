// Package cli holds the operator subcommands of the adminory binary.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

// Commands lists the operator subcommands.
var Commands = []string{"queue-stats", "revoke-sessions"}

// IsCommand reports whether name is an operator subcommand.
func IsCommand(name string) bool {
	for _, c := range Commands {
		if c == name {
			return true
		}
	}
	return false
}

// Deps carries the backends operator commands talk to.
type Deps struct {
	Jobs     *JobsCLI
	Sessions *SessionsCLI
	Stdout   io.Writer
	Stderr   io.Writer
}

// Run parses args (the subcommand followed by its flags) and executes it.
func Run(ctx context.Context, args []string, deps Deps) int {
	if len(args) == 0 || !IsCommand(args[0]) {
		_, _ = fmt.Fprintf(deps.Stderr, "usage: adminory [serve | queue-stats [--json] | revoke-sessions --user <id> [--json]]\n")
		return 2
	}
	name := args[0]
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(deps.Stderr)
	jsonOutput := fs.Bool("json", false, "output as JSON")
	userID := fs.String("user", "", "principal id whose refresh tokens are revoked")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	switch name {
	case "queue-stats":
		return deps.Jobs.StatsCommand(ctx, StatsOptions{JSONOutput: *jsonOutput, Stdout: deps.Stdout, Stderr: deps.Stderr})
	default:
		return deps.Sessions.RevokeCommand(ctx, RevokeOptions{UserID: *userID, JSONOutput: *jsonOutput, Stdout: deps.Stdout, Stderr: deps.Stderr})
	}
}
