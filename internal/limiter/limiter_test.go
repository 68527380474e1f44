package limiter

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrencyBound(t *testing.T) {
	t.Parallel()

	const max = 3
	l := New(max)
	var running, peak atomic.Int32
	tasks := make([]*Task, 0, 20)
	for i := 0; i < 20; i++ {
		tasks = append(tasks, l.Submit(func() error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		}))
	}
	for _, task := range tasks {
		require.NoError(t, task.Wait())
	}
	assert.LessOrEqual(t, peak.Load(), int32(max))
	assert.Equal(t, int32(max), peak.Load())
	assert.Equal(t, 0, l.Active())
	assert.Equal(t, 0, l.Queued())
}

func TestFIFOAdmission(t *testing.T) {
	t.Parallel()

	l := New(1)
	release := make(chan struct{})
	blocker := l.Submit(func() error {
		<-release
		return nil
	})

	var mu sync.Mutex
	var order []int
	tasks := make([]*Task, 0, 10)
	for i := 0; i < 10; i++ {
		tasks = append(tasks, l.Submit(func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}
	assert.Equal(t, 10, l.Queued())
	close(release)
	require.NoError(t, blocker.Wait())
	for _, task := range tasks {
		require.NoError(t, task.Wait())
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestFailureFreesSlot(t *testing.T) {
	t.Parallel()

	l := New(1)
	boom := errors.New("boom")
	failed := l.Submit(func() error { return boom })
	panicked := l.Submit(func() error { panic("kaboom") })
	ok := l.Submit(func() error { return nil })

	require.ErrorIs(t, failed.Wait(), boom)
	err := panicked.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	require.NoError(t, ok.Wait())
	assert.Equal(t, 0, l.Active())
}

func TestNextAdmittedWhenSlotFrees(t *testing.T) {
	t.Parallel()

	l := New(2)
	gate := make(chan struct{})
	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })
	first := l.Submit(func() error { <-gate; return nil })
	second := l.Submit(func() error { <-hold; return nil })
	third := l.Submit(func() error { return nil })

	assert.Eventually(t, func() bool { return l.Active() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, l.Queued())
	close(gate)
	require.NoError(t, first.Wait())
	require.NoError(t, third.Wait())
	select {
	case <-second.Done():
		t.Fatal("long task should still be running")
	default:
	}
}

func TestNewClampsMax(t *testing.T) {
	t.Parallel()

	l := New(0)
	require.NoError(t, l.Submit(nil).Wait())
	assert.Equal(t, 1, l.max)
}
