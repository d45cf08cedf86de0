package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wnt/turfpoints/internal/config"
)

func TestStopIsIdempotent(t *testing.T) {
	cfg := config.Config{ContestInterval: time.Minute, SweepInterval: time.Minute}
	m := NewManager(cfg, nil, nil, zerolog.Nop())

	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}

func TestStopConcurrent(t *testing.T) {
	cfg := config.Config{ContestInterval: time.Minute, SweepInterval: time.Minute}
	m := NewManager(cfg, nil, nil, zerolog.Nop())

	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.Stop()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}
