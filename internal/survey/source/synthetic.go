package source

import (
	"image"
	"io"
)

// Synthetic generates frames in memory. Tests and the demo tooling use it
// in place of real footage.
type Synthetic struct {
	meta   Metadata
	next   int
	closed bool
}

// NewSynthetic creates a frame generator for the given metadata. Width and
// height default to 64x48 when unset; FPS and TotalFrames are kept as given
// so callers can exercise streams with missing container metadata.
func NewSynthetic(meta Metadata) *Synthetic {
	if meta.Width <= 0 {
		meta.Width = 64
	}
	if meta.Height <= 0 {
		meta.Height = 48
	}
	if meta.TotalFrames < 0 {
		meta.TotalFrames = 0
	}
	return &Synthetic{meta: meta}
}

func (s *Synthetic) Meta() Metadata { return s.meta }

// Next returns the next generated frame. Frame content is deterministic in
// the frame index so repeated runs produce identical streams.
func (s *Synthetic) Next() (Frame, error) {
	if s.closed || s.next >= s.meta.TotalFrames {
		return Frame{}, io.EOF
	}
	s.next++

	img := image.NewRGBA(image.Rect(0, 0, s.meta.Width, s.meta.Height))
	shade := uint8(40 + (s.next*7)%160)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = shade
		img.Pix[i+1] = shade
		img.Pix[i+2] = shade
		img.Pix[i+3] = 0xFF
	}
	return Frame{Index: s.next, Image: img}, nil
}

func (s *Synthetic) Skip() error {
	if s.closed || s.next >= s.meta.TotalFrames {
		return io.EOF
	}
	s.next++
	return nil
}

func (s *Synthetic) Close() error {
	s.closed = true
	return nil
}
