package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepExpired(context.Context) (int64, error) {
	s.calls.Add(1)
	return 1, s.err
}

func TestStart_SweepsUntilCancelled(t *testing.T) {
	for _, failing := range []bool{false, true} {
		s := &countingSweeper{}
		if failing {
			s.err = errors.New("busy")
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			Start(ctx, s, time.Millisecond, zerolog.Nop())
			close(done)
		}()

		require.Eventually(t, func() bool { return s.calls.Load() >= 3 }, time.Second, time.Millisecond,
			"failures must not stop the loop")

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Start did not return after cancel")
		}

		after := s.calls.Load()
		time.Sleep(5 * time.Millisecond)
		assert.Equal(t, after, s.calls.Load())
	}
}
