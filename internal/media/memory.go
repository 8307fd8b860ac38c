package media

import (
	"context"
	"fmt"
	"sync"
)

// MemorySource is an in-process VideoSource that synthesizes frames on
// demand. It backs offline tooling and tests that must not depend on ffmpeg.
type MemorySource struct {
	meta   Metadata
	width  int
	height int

	mu      sync.Mutex
	closed  bool
	failing map[int]bool
	reads   []int
}

// NewMemorySource returns a source with totalFrames frames at fps. Frame i is
// a solid color derived from i.
func NewMemorySource(totalFrames int, fps float64, width, height int) *MemorySource {
	return &MemorySource{
		meta: Metadata{
			TotalFrames: totalFrames,
			FPS:         fps,
			Width:       width,
			Height:      height,
			Codec:       "memory",
		},
		width:   width,
		height:  height,
		failing: map[int]bool{},
	}
}

// FailAt makes ReadFrame fail with ErrDecode for the given indices.
func (m *MemorySource) FailAt(indices ...int) *MemorySource {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range indices {
		m.failing[i] = true
	}
	return m
}

func (m *MemorySource) Metadata(ctx context.Context) (Metadata, error) {
	return m.meta, nil
}

func (m *MemorySource) ReadFrame(ctx context.Context, index int) (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.closed {
		return nil, fmt.Errorf("%w: source closed", ErrDecode)
	}
	if index < 0 || index >= m.meta.TotalFrames {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrFrameOutOfRange, index, m.meta.TotalFrames)
	}
	m.reads = append(m.reads, index)
	if m.failing[index] {
		return nil, fmt.Errorf("%w: frame %d: corrupt", ErrDecode, index)
	}

	f := &Frame{Index: index, Width: m.width, Height: m.height, Pix: make([]byte, m.width*m.height*3)}
	shade := byte(index % 256)
	for i := 0; i < len(f.Pix); i += 3 {
		f.Pix[i] = shade
		f.Pix[i+1] = 255 - shade
		f.Pix[i+2] = shade / 2
	}
	return f, nil
}

func (m *MemorySource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Reads returns every index passed to ReadFrame, in call order.
func (m *MemorySource) Reads() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.reads...)
}

// Closed reports whether Close was called.
func (m *MemorySource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
