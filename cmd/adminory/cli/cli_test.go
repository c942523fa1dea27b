package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) Queues() ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []string{"default"}, nil
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

type stubRevoker struct {
	subject string
	count   int
	err     error
}

func (s *stubRevoker) RevokeAll(_ context.Context, subject string) (int, error) {
	s.subject = subject
	return s.count, s.err
}

func run(t *testing.T, deps Deps, args ...string) (int, string, string) {
	t.Helper()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	deps.Stdout, deps.Stderr = stdout, stderr
	code := Run(context.Background(), args, deps)
	return code, stdout.String(), stderr.String()
}

func TestQueueStatsJSON(t *testing.T) {
	deps := Deps{Jobs: NewJobsCLI(stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Retry: 1, Completed: 7}})}
	code, stdout, stderr := run(t, deps, "queue-stats", "--json")
	require.Zero(t, code)
	require.Empty(t, stderr)

	var stats QueueStats
	require.NoError(t, json.Unmarshal([]byte(stdout), &stats))
	require.Equal(t, "default", stats.Queue)
	require.Equal(t, 3, stats.Pending)
	require.Equal(t, 1, stats.Retry)
	require.Equal(t, 7, stats.Completed)
}

func TestQueueStatsFreshRedisIsEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = inspector.Close() })

	code, stdout, stderr := run(t, Deps{Jobs: NewJobsCLI(inspector)}, "queue-stats")
	require.Zero(t, code, stderr)
	require.Contains(t, stdout, "queue default: pending=0")
	require.Contains(t, stdout, "completed=0")
}

func TestQueueStatsError(t *testing.T) {
	deps := Deps{Jobs: NewJobsCLI(stubInspector{err: errors.New("redis down")})}
	code, _, stderr := run(t, deps, "queue-stats")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "redis down")
}

func TestRevokeSessions(t *testing.T) {
	revoker := &stubRevoker{count: 4}
	id := uuid.New()
	code, stdout, stderr := run(t, Deps{Sessions: NewSessionsCLI(revoker)}, "revoke-sessions", "--user", id.String(), "--json")
	require.Zero(t, code)
	require.Empty(t, stderr)
	require.Equal(t, id.String(), revoker.subject)

	var summary RevokeSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	require.Equal(t, 4, summary.Revoked)
}

func TestRevokeSessionsInvalidUser(t *testing.T) {
	revoker := &stubRevoker{}
	code, _, stderr := run(t, Deps{Sessions: NewSessionsCLI(revoker)}, "revoke-sessions", "--user", "nope")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "invalid --user")
	require.Empty(t, revoker.subject)
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := run(t, Deps{}, "migrate")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "usage")
}
