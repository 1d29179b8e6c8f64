// Package media owns the local capture path: device acquisition, the
// outbound PCMU track and voice activity detection.
package media

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
)

const (
	SampleRate    = 8000
	FrameDuration = 20 * time.Millisecond
	FrameSamples  = SampleRate / 50
)

var ErrNotAcquired = errors.New("media source not acquired")

// Source implements core.MediaSource over a CaptureDriver. The outbound track
// is created once and survives device switches, so peer connections never
// renegotiate for a device change.
type Source struct {
	driver core.CaptureDriver

	mu     sync.Mutex
	stream core.CaptureStream
	cancel context.CancelFunc
	track  *webrtc.TrackLocalStaticSample

	enabled atomic.Bool
	level   atomic.Int32
}

func NewSource(driver core.CaptureDriver) *Source {
	s := &Source{driver: driver}
	s.enabled.Store(true)
	return s
}

func (s *Source) Acquire(ctx context.Context, set domain.DeviceSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return nil
	}
	stream, err := s.driver.Open(set)
	if err != nil {
		return err
	}
	if s.track == nil {
		track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypePCMU,
			ClockRate: SampleRate,
			Channels:  1,
		}, "audio", "huddle-mic")
		if err != nil {
			_ = stream.Close()
			return err
		}
		s.track = track
	}
	pumpCtx, cancel := context.WithCancel(ctx)
	s.stream = stream
	s.cancel = cancel
	go s.pump(pumpCtx, stream)
	log.Info().Str("module", "media").Str("device", set.DeviceID).Msg("capture acquired")
	return nil
}

func (s *Source) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return
	}
	s.cancel()
	_ = s.stream.Close()
	s.stream = nil
	s.cancel = nil
	s.level.Store(0)
	log.Info().Str("module", "media").Msg("capture released")
}

func (s *Source) Track() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return nil
	}
	return s.track
}

func (s *Source) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// Switch opens the new device before closing the old one, so a broken target
// device leaves the current capture running.
func (s *Source) Switch(set domain.DeviceSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return ErrNotAcquired
	}
	stream, err := s.driver.Open(set)
	if err != nil {
		return err
	}
	s.cancel()
	_ = s.stream.Close()

	pumpCtx, cancel := context.WithCancel(context.Background())
	s.stream = stream
	s.cancel = cancel
	go s.pump(pumpCtx, stream)
	log.Info().Str("module", "media").Str("device", set.DeviceID).Msg("capture device switched")
	return nil
}

func (s *Source) Level() int {
	return int(s.level.Load())
}

func (s *Source) pump(ctx context.Context, stream core.CaptureStream) {
	for {
		frame, err := stream.ReadFrame()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "media").Msg("capture read failed")
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.level.Store(int32(energy(frame.PCM)))
		if !s.enabled.Load() {
			continue
		}
		sample := pionmedia.Sample{Data: EncodeMuLaw(frame.PCM), Duration: FrameDuration}
		if err := s.track.WriteSample(sample); err != nil {
			log.Warn().Err(err).Str("module", "media").Msg("track write failed")
		}
	}
}

// energy maps the RMS of one PCM frame onto the 0-100 scale the speaking
// threshold is expressed in.
func energy(pcm []int16) int {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(pcm)))
	level := int(rms / 32768 * 100 * 4) // speech RMS rarely exceeds a quarter of full scale
	if level > 100 {
		level = 100
	}
	return level
}
