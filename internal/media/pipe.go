package media

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
)

// PipeDriver reads raw s16le mono PCM from a file or FIFO. It stands in for a
// platform capture stack on headless hosts; echo cancellation and noise
// suppression are expected to be applied by whatever feeds the pipe.
type PipeDriver struct {
	Path string
}

func (d PipeDriver) Open(set domain.DeviceSettings) (core.CaptureStream, error) {
	path := d.Path
	if set.DeviceID != "" && set.DeviceID != "default" {
		path = set.DeviceID
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	return &pipeStream{f: f}, nil
}

type pipeStream struct {
	f   *os.File
	buf [FrameSamples * 2]byte
}

func (p *pipeStream) ReadFrame() (core.CaptureFrame, error) {
	if _, err := io.ReadFull(p.f, p.buf[:]); err != nil {
		return core.CaptureFrame{}, err
	}
	pcm := make([]int16, FrameSamples)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(p.buf[i*2:]))
	}
	return core.CaptureFrame{PCM: pcm}, nil
}

func (p *pipeStream) Close() error { return p.f.Close() }
