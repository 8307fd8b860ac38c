// Package media defines the video handle and decoded frame types consumed by
// the analysis pipeline, plus an ffmpeg-backed implementation.
package media

import (
	"context"
	"errors"
	"image"
	"image/color"
)

var (
	// ErrDecode reports a video that cannot be opened, probed or decoded.
	ErrDecode = errors.New("decode error")

	// ErrFrameOutOfRange reports a seek outside [0, TotalFrames).
	ErrFrameOutOfRange = errors.New("frame index out of range")
)

// Metadata describes the decodable video stream of a source.
type Metadata struct {
	TotalFrames int
	FPS         float64
	Duration    float64 // seconds
	Width       int
	Height      int
	Codec       string
}

// VideoSource is a random-access handle to a decodable video.
//
// Implementations serialize ReadFrame calls: one decode is in flight per
// handle. Independent handles may be used concurrently.
type VideoSource interface {
	Metadata(ctx context.Context) (Metadata, error)

	// ReadFrame seeks to index and decodes one frame. Indices outside
	// [0, TotalFrames) fail with ErrFrameOutOfRange.
	ReadFrame(ctx context.Context, index int) (*Frame, error)

	Close() error
}

// Frame is a decoded, fixed-size RGB image. A Frame is never mutated after
// the source that decoded it returns it.
type Frame struct {
	Index  int
	Width  int
	Height int
	// Pix holds Width*Height*3 bytes, row-major, R G B per pixel.
	Pix []byte
}

// NewFrame copies img into a Width x Height RGB frame. img must already have
// those bounds.
func NewFrame(index int, img image.Image) *Frame {
	b := img.Bounds()
	f := &Frame{
		Index:  index,
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    make([]byte, b.Dx()*b.Dy()*3),
	}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			f.Pix[i] = uint8(r >> 8)
			f.Pix[i+1] = uint8(g >> 8)
			f.Pix[i+2] = uint8(bl >> 8)
			i += 3
		}
	}
	return f
}

// RGBAt returns the pixel at (x, y).
func (f *Frame) RGBAt(x, y int) (r, g, b uint8) {
	i := (y*f.Width + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Image returns an independent RGBA copy of the frame, suitable for encoding.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.RGBAt(x, y)
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 0xff})
		}
	}
	return img
}
