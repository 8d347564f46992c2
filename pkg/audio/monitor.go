package audio

import (
	"sync"
	"time"
)

// defaultPublishInterval is the minimum spacing between level callbacks. A
// couple of updates per second is plenty for a UI meter.
const defaultPublishInterval = 500 * time.Millisecond

// LevelMonitor derives a coarse volume metric from a live capture stream for
// diagnostics and UI feedback. It is purely observational: frames are fed in
// with a non-blocking tap, so a slow or failed listener can never stall the
// recording cycle.
//
// The metric is the frame RMS normalised to [0, 1].
type LevelMonitor struct {
	interval time.Duration
	listener func(level float64)

	frames chan Frame
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// MonitorOption is a functional option for [NewLevelMonitor].
type MonitorOption func(*LevelMonitor)

// WithPublishInterval overrides the minimum spacing between listener
// callbacks. Defaults to 500 ms.
func WithPublishInterval(d time.Duration) MonitorOption {
	return func(m *LevelMonitor) { m.interval = d }
}

// NewLevelMonitor creates a monitor that reports levels to listener. The
// listener is invoked from an internal goroutine and must not block.
func NewLevelMonitor(listener func(level float64), opts ...MonitorOption) *LevelMonitor {
	m := &LevelMonitor{
		interval: defaultPublishInterval,
		listener: listener,
		frames:   make(chan Frame, 32),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	m.wg.Add(1)
	go m.loop()
	return m
}

// Feed offers a captured frame to the monitor. It never blocks; frames are
// dropped when the monitor is busy or closed.
func (m *LevelMonitor) Feed(frame Frame) {
	select {
	case m.frames <- frame:
	default:
	}
}

// Close stops the monitor. Safe to call more than once.
func (m *LevelMonitor) Close() {
	m.once.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}

// loop consumes frames, tracks the latest level, and publishes it at the
// throttled cadence.
func (m *LevelMonitor) loop() {
	defer m.wg.Done()

	var (
		latest      float64
		haveFrame   bool
		lastPublish time.Time
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return

		case frame := <-m.frames:
			latest = normalisedRMS(frame.Data)
			haveFrame = true

		case now := <-ticker.C:
			if !haveFrame || m.listener == nil {
				continue
			}
			if now.Sub(lastPublish) < m.interval {
				continue
			}
			lastPublish = now
			m.listener(latest)
		}
	}
}

// normalisedRMS maps the 16-bit PCM RMS onto [0, 1].
func normalisedRMS(pcm []byte) float64 {
	v := RMS(pcm) / 32768.0
	if v > 1 {
		v = 1
	}
	return v
}
