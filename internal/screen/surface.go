package screen

import (
	"errors"
	"image"
	"image/png"
	"io"
	"sync/atomic"
)

// Surface receives decoded frames. Paint replaces the whole image at once.
type Surface interface {
	Resize(width, height int)
	Paint(Frame)
}

// ImageSurface keeps the most recent frame as an image. Readers always see
// a complete frame: Paint swaps in a new image rather than writing into the
// current one.
type ImageSurface struct {
	img    atomic.Pointer[image.RGBA]
	frames atomic.Uint64
}

// Resize sets the surface geometry. The current image is kept when the size
// is unchanged, so a reconnect shows the last frame until a new one arrives.
func (s *ImageSurface) Resize(width, height int) {
	if cur := s.img.Load(); cur != nil && cur.Rect.Dx() == width && cur.Rect.Dy() == height {
		return
	}
	s.img.Store(image.NewRGBA(image.Rect(0, 0, width, height)))
}

// Paint takes ownership of f.Pix.
func (s *ImageSurface) Paint(f Frame) {
	if len(f.Pix) != f.Width*f.Height*OutputBytesPerPixel {
		return
	}
	s.img.Store(&image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * OutputBytesPerPixel,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	})
	s.frames.Add(1)
}

// Snapshot returns the current image, or nil before the first Resize. The
// image must not be modified.
func (s *ImageSurface) Snapshot() *image.RGBA { return s.img.Load() }

// Frames counts painted frames.
func (s *ImageSurface) Frames() uint64 { return s.frames.Load() }

// WritePNG encodes the current image.
func (s *ImageSurface) WritePNG(w io.Writer) error {
	img := s.Snapshot()
	if img == nil {
		return errors.New("screen: nothing painted")
	}
	return png.Encode(w, img)
}
