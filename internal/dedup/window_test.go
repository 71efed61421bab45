package dedup

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowSeen(t *testing.T) {
	w := NewWindow(10, time.Minute)

	assert.False(t, w.Seen("msg-1"))
	assert.True(t, w.Seen("msg-1"))
	assert.True(t, w.Seen(" msg-1 "))
	assert.False(t, w.Seen("msg-2"))
	assert.False(t, w.Seen(""))
	assert.False(t, w.Seen(""))
}

func TestWindowEvictsOldestWhenFull(t *testing.T) {
	w := NewWindow(3, time.Minute)
	for i := 0; i < 4; i++ {
		w.Seen(fmt.Sprintf("m%d", i))
	}

	assert.Equal(t, 3, w.Len())
	assert.False(t, w.Seen("m0"), "oldest id should have been evicted")
	assert.True(t, w.Seen("m3"))
}

func TestWindowExpiresIDs(t *testing.T) {
	w := NewWindow(10, 50*time.Millisecond)
	assert.False(t, w.Seen("m"))
	time.Sleep(120 * time.Millisecond)
	assert.False(t, w.Seen("m"))
}

func TestWindowForget(t *testing.T) {
	w := NewWindow(10, time.Minute)
	w.Seen("m")
	w.Forget("m")
	assert.False(t, w.Seen("m"))
}

func TestWindowConcurrentSeenAdmitsOnce(t *testing.T) {
	w := NewWindow(100, time.Minute)
	var first int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !w.Seen("same") {
				atomic.AddInt32(&first, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), first)
}
