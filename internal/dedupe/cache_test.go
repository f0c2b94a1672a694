package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(ttl time.Duration, size int) (*Cache, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(ttl, size)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestSeenMarksFirstDelivery(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)
	defer c.Close()

	assert.False(t, c.Seen("m1"))
	assert.True(t, c.Seen("m1"))
	assert.False(t, c.Seen("m2"))
	assert.False(t, c.Seen(""))
	assert.False(t, c.Seen(""))
}

func TestSeenExpires(t *testing.T) {
	c, now := newTestCache(time.Minute, 10)
	defer c.Close()

	assert.False(t, c.Seen("m1"))
	*now = now.Add(59 * time.Second)
	assert.True(t, c.Seen("m1"))
	*now = now.Add(2 * time.Minute)
	assert.False(t, c.Seen("m1"))
}

func TestEvictsOldestWhenFull(t *testing.T) {
	c, _ := newTestCache(time.Hour, 3)
	defer c.Close()

	for i := 0; i < 4; i++ {
		c.Seen(fmt.Sprintf("m%d", i))
	}
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("m0"), "oldest id should have been evicted")
}

func TestSweepAndForget(t *testing.T) {
	c, now := newTestCache(time.Minute, 10)
	defer c.Close()

	c.Seen("old")
	*now = now.Add(90 * time.Second)
	c.Seen("new")
	assert.Equal(t, 1, c.sweep())
	assert.Equal(t, 1, c.Len())

	c.Forget("new")
	assert.False(t, c.Seen("new"))
}

func TestSeenIsAtomicUnderConcurrency(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	var fresh atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Seen("same") {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fresh.Load())
}

func TestCloseTwice(t *testing.T) {
	c := New(time.Minute, 1)
	c.Close()
	c.Close()
}
