package finance

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReloader struct {
	calls atomic.Int32
}

func (r *countingReloader) Reload(ctx context.Context) error {
	r.calls.Add(1)
	return nil
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("billing_interval: 1000\n"), 0o644))

	target := &countingReloader{}
	w := NewWatcher(path, target, quietLog())
	w.debounce = 50 * time.Millisecond
	require.NoError(t, w.Start())
	defer w.Stop()

	// other files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), target.calls.Load())

	// a burst of writes reloads once
	for i := range 3 {
		require.NoError(t, os.WriteFile(path, []byte("billing_interval: "+string(rune('1'+i))+"\n"), 0o644))
	}
	assert.Eventually(t, func() bool { return target.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), target.calls.Load())
}

func TestWatcher_StartStop(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), &countingReloader{}, quietLog())
	assert.Error(t, w.Start())
	assert.NoError(t, w.Stop())

	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w = NewWatcher(path, &countingReloader{}, quietLog())
	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
