package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSender struct {
	name   string
	err    error
	titles []string
}

func (s *memSender) Send(_ context.Context, title, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *memSender) Name() string { return s.name }

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &memSender{name: "mem"}
	n := New([]Sender{sender}, []string{EventPositionLiquidated}, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Notify(context.Background(), EventPositionOpened, "opened", "x"))
	require.NoError(t, n.Notify(context.Background(), EventPositionLiquidated, "liquidated", "x"))

	assert.Equal(t, []string{"liquidated"}, sender.titles)
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &memSender{name: "mem"}
	n := New([]Sender{sender}, nil, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Notify(context.Background(), EventPositionOpened, "opened", "x"))
	assert.Len(t, sender.titles, 1)
}

func TestNotifyContinuesPastFailedSender(t *testing.T) {
	boom := errors.New("boom")
	bad := &memSender{name: "bad", err: boom}
	good := &memSender{name: "good"}
	n := New([]Sender{bad, good}, nil, slog.New(slog.DiscardHandler))

	err := n.Notify(context.Background(), EventPositionClosed, "closed", "x")
	assert.ErrorIs(t, err, boom)
	assert.Len(t, good.titles, 1, "healthy sender still receives the event")
}
