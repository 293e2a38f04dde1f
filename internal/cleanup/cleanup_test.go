package cleanup

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatchSetsFlagOnSignal(t *testing.T) {
	Reset()
	stop := Watch()
	defer stop()

	assert.False(t, Requested())

	err := syscall.Kill(syscall.Getpid(), syscall.SIGHUP)
	assert.NoError(t, err)

	assert.Eventually(t, Requested, time.Second, time.Millisecond)
}

func TestResetClearsFlag(t *testing.T) {
	Reset()
	stop := Watch()
	defer stop()

	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))
	assert.Eventually(t, Requested, time.Second, time.Millisecond)

	Reset()
	assert.False(t, Requested())
}

func TestStopStopsWatching(t *testing.T) {
	Reset()
	stop := Watch()
	stop()

	// After stop, the signal is no longer funneled into the flag by this
	// watcher; a later Reset/Requested pair should stay consistent.
	assert.False(t, Requested())
}
