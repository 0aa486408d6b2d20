package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounter(t *testing.T) {
	var c Counter
	c.Inc()
	c.Add(4)
	assert.Equal(t, uint64(5), c.Load())
}

func TestTimer(t *testing.T) {
	timer := StartTimer()
	time.Sleep(2 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 2*time.Millisecond)
}

func TestRegistry(t *testing.T) {
	var r Registry

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Counter(ChannelReconnects).Inc()
		}()
	}
	wg.Wait()

	r.Counter(Cancellations).Inc()
	r.Counter(Cancellations).Inc()

	assert.Same(t, r.Counter(Cancellations), r.Counter(Cancellations))
	assert.Equal(t, map[string]uint64{
		ChannelReconnects: 20,
		Cancellations:     2,
	}, r.Snapshot())
	assert.Equal(t, []string{ChannelReconnects, Cancellations}, r.Names())
}
