// Package screen streams a remote host's display. A Session negotiates a
// display source and codec, then either feeds a compressed stream to an
// external decoder or decodes raw pixel payloads itself and paints them onto
// a Surface.
package screen

import (
	"errors"
	"fmt"
)

var (
	ErrNoDisplays      = errors.New("screen: host reports no displays")
	ErrBadDisplay      = errors.New("screen: display index out of range")
	ErrBadQuality      = errors.New("screen: quality outside [0.1, 1.0]")
	ErrUnknownCodec    = errors.New("screen: unknown codec")
	ErrUnknownFormat   = errors.New("screen: unknown pixel format")
	ErrSessionActive   = errors.New("screen: session already connected")
	ErrNotNegotiated   = errors.New("screen: displays not negotiated")
	ErrGeometryChanged = errors.New("screen: display geometry changed")
	ErrDisposed        = errors.New("screen: session disposed")
)

// Codec selects how frames travel from the agent.
type Codec string

const (
	// CodecMPEG1 is an MPEG-TS wrapped MPEG-1 video stream, decoded by an
	// external player.
	CodecMPEG1 Codec = "mpeg1video"
	// CodecRaw is one uncompressed pixel buffer per binary message.
	CodecRaw Codec = "rgb"
)

// ParseCodec validates a codec name.
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(s); c {
	case CodecMPEG1, CodecRaw:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCodec, s)
}

// PixelFormat is the channel layout of a raw stream payload.
type PixelFormat string

const (
	FormatRaw  PixelFormat = "raw" // R, G, B
	FormatABGR PixelFormat = "abgr"
	FormatARGB PixelFormat = "argb"
)

// ParsePixelFormat validates a pixel format name.
func ParsePixelFormat(s string) (PixelFormat, error) {
	f := PixelFormat(s)
	if f.BytesPerPixel() == 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
	return f, nil
}

// BytesPerPixel is the payload size of one pixel, or 0 for an unknown
// format.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRaw:
		return 3
	case FormatABGR, FormatARGB:
		return 4
	}
	return 0
}

// OutputBytesPerPixel is the size of one decoded RGBA pixel.
const OutputBytesPerPixel = 4

// Frame is one decoded image. Pix is RGBA, row-major, and always
// Width*Height*4 bytes long.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// ExpandRGB converts a packed RGB buffer to RGBA with opaque alpha. A short
// payload fills as many whole pixels as it holds; the rest stay zero.
// Bytes beyond the pixel grid are ignored.
func ExpandRGB(src []byte, width, height int) []byte {
	dst := make([]byte, width*height*OutputBytesPerPixel)
	n := min(len(src)/3, width*height)
	for i := 0; i < n; i++ {
		s, d := i*3, i*4
		dst[d] = src[s]
		dst[d+1] = src[s+1]
		dst[d+2] = src[s+2]
		dst[d+3] = 255
	}
	return dst
}

// Decode turns one raw stream payload into a Frame. It reports whether the
// payload covered the whole grid.
func Decode(format PixelFormat, payload []byte, width, height int) (Frame, bool, error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return Frame{}, false, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	complete := len(payload) >= width*height*bpp
	f := Frame{Width: width, Height: height}
	if format == FormatRaw {
		f.Pix = ExpandRGB(payload, width, height)
		return f, complete, nil
	}

	f.Pix = make([]byte, width*height*OutputBytesPerPixel)
	n := min(len(payload)/4, width*height)
	for i := 0; i < n; i++ {
		s := payload[i*4 : i*4+4]
		d := f.Pix[i*4 : i*4+4]
		switch format {
		case FormatABGR:
			d[0], d[1], d[2], d[3] = s[3], s[2], s[1], s[0]
		case FormatARGB:
			d[0], d[1], d[2], d[3] = s[1], s[2], s[3], s[0]
		}
	}
	return f, complete, nil
}
