package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls int
	err   error
}

func (s *countingSweeper) SweepExpired(ctx context.Context) (int, error) {
	s.calls++
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep must run with a deadline")
	}
	return 2, s.err
}

func newTestScheduler(spec string, sweeper Sweeper) *Scheduler {
	s := NewScheduler(nil, spec, zerolog.Nop())
	s.transfers = sweeper
	return s
}

func TestManualTriggerRunsSweep(t *testing.T) {
	sweeper := &countingSweeper{}
	s := newTestScheduler("@hourly", sweeper)

	s.ManualTrigger("transfers")
	s.ManualTrigger("all")
	s.ManualTrigger("unknown")
	assert.Equal(t, 2, sweeper.calls)

	sweeper.err = errors.New("db down")
	s.ManualTrigger("transfers")
	assert.Equal(t, 3, sweeper.calls)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := newTestScheduler("every tuesday-ish", &countingSweeper{})
	assert.Error(t, s.Start())

	ok := newTestScheduler("@every 1h", &countingSweeper{})
	require.NoError(t, ok.Start())
	ok.Stop()
}
