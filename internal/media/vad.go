package media

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultVADInterval is the sampling cadence of the detector.
const DefaultVADInterval = 100 * time.Millisecond

const vadWindow = 5

// Detector derives a boolean speaking signal from capture energy. It is
// purely advisory: it never touches track enablement, hard mute is a separate
// authority. OnChange fires only on transitions.
type Detector struct {
	level     func() int
	threshold atomic.Int32
	interval  time.Duration
	onChange  func(speaking bool)

	window [vadWindow]int
	idx    int
	filled int

	speaking bool
}

func NewDetector(level func() int, threshold int, onChange func(bool)) *Detector {
	d := &Detector{
		level:    level,
		interval: DefaultVADInterval,
		onChange: onChange,
	}
	d.threshold.Store(int32(threshold))
	return d
}

// SetThreshold updates the speaking threshold (0-100 energy scale). Safe to
// call while Run is active.
func (d *Detector) SetThreshold(threshold int) {
	d.threshold.Store(int32(threshold))
}

// Run samples capture energy until ctx is canceled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(d.level())
		}
	}
}

func (d *Detector) tick(level int) {
	d.window[d.idx] = level
	d.idx = (d.idx + 1) % vadWindow
	if d.filled < vadWindow {
		d.filled++
	}
	sum := 0
	for i := 0; i < d.filled; i++ {
		sum += d.window[i]
	}
	avg := sum / d.filled

	speaking := avg > int(d.threshold.Load())
	if speaking != d.speaking {
		d.speaking = speaking
		if d.onChange != nil {
			d.onChange(speaking)
		}
	}
}
