package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aliuyar1234/inviteguard/internal/audit"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
)

type expirerFunc func(ctx context.Context) (int64, error)

func (f expirerFunc) ExpireOverdue(ctx context.Context) (int64, error) {
	return f(ctx)
}

type countingSink struct {
	actions []string
}

func (s *countingSink) AppendAudit(_ context.Context, e audit.Entry) error {
	s.actions = append(s.actions, e.Action)
	return nil
}

func TestRunExpiryJob_AuditsOnlyWhenSomethingExpired(t *testing.T) {
	sink := &countingSink{}
	auditor := audit.NewWriter(sink)

	n, err := RunExpiryJob(context.Background(), expirerFunc(func(context.Context) (int64, error) { return 3, nil }), auditor)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	n, err = RunExpiryJob(context.Background(), expirerFunc(func(context.Context) (int64, error) { return 0, nil }), auditor)
	require.NoError(t, err)
	require.Zero(t, n)

	require.Equal(t, []string{audit.EventInvitationExpired}, sink.actions)
}

func TestRunExpiryJob_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := RunExpiryJob(context.Background(), expirerFunc(func(context.Context) (int64, error) { return 0, boom }), nil)
	require.ErrorIs(t, err, boom)
}

func TestSchedule_RejectsBadSpecAndSurvivesPanics(t *testing.T) {
	c := cron.New(cron.WithLocation(time.UTC), cron.WithSeconds())
	noop := expirerFunc(func(context.Context) (int64, error) { return 0, nil })
	require.Error(t, Schedule(c, "not a schedule", noop, nil))

	var calls atomic.Int32
	panicky := expirerFunc(func(context.Context) (int64, error) {
		calls.Add(1)
		panic("boom")
	})
	require.NoError(t, Schedule(c, "* * * * * *", panicky, nil))

	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
}
