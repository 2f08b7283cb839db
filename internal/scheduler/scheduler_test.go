package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_WithoutReportFunction(t *testing.T) {
	s := New("", zerolog.Nop())
	require.NoError(t, s.Start())
	assert.False(t, s.IsRunning())
	assert.Equal(t, DefaultReportSpec, s.spec)
	s.Stop()
}

func TestStart_InvalidSpec(t *testing.T) {
	s := New("not a cron spec", zerolog.Nop())
	s.SetReportFunction(func(context.Context) error { return nil })
	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}

func TestStart_RunsReport(t *testing.T) {
	fired := make(chan struct{}, 4)
	s := New("@every 1s", zerolog.Nop())
	s.SetReportFunction(func(ctx context.Context) error {
		fired <- struct{}{}
		return errors.New("logged, not fatal")
	})
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("report never fired")
	}
	s.Stop()
	assert.Error(t, s.ctx.Err())
}
