package audio

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"
)

func loudFrame() Frame {
	pcm := make([]byte, 640)
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:i+2], uint16(int16(16384)))
	}
	return Frame{Data: pcm, SampleRate: 16000, Channels: 1}
}

func TestLevelMonitorPublishes(t *testing.T) {
	var (
		mu     sync.Mutex
		levels []float64
	)
	m := NewLevelMonitor(func(level float64) {
		mu.Lock()
		levels = append(levels, level)
		mu.Unlock()
	}, WithPublishInterval(10*time.Millisecond))
	defer m.Close()

	m.Feed(loudFrame())

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := len(levels)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no level published within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	level := levels[0]
	mu.Unlock()
	if level <= 0 || level > 1 {
		t.Errorf("published level = %f, want in (0, 1]", level)
	}
	// 16384 amplitude is half of full scale.
	if level < 0.4 || level > 0.6 {
		t.Errorf("published level = %f, want ≈ 0.5", level)
	}
}

func TestLevelMonitorFeedNeverBlocks(t *testing.T) {
	m := NewLevelMonitor(func(float64) {
		time.Sleep(time.Hour) // listener stalls forever
	}, WithPublishInterval(time.Millisecond))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			m.Feed(loudFrame())
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Feed blocked on a stalled listener")
	}
}

func TestLevelMonitorCloseIdempotent(t *testing.T) {
	m := NewLevelMonitor(nil)
	m.Close()
	m.Close()
	m.Feed(loudFrame()) // must not panic after close
}
