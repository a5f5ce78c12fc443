//go:build turbojpeg && cgo

package turbojpeg

/*
#cgo LDFLAGS: -lturbojpeg
#include <stdlib.h>
#include <turbojpeg.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/photonicat/photonicat2_slideshow/decoder"
)

func init() {
	decoder.Register("turbojpeg", func() (decoder.Decoder, error) { return New() })
}

// Decoder wraps a tjhandle. Not safe for concurrent use.
type Decoder struct {
	handle C.tjhandle
}

func New() (*Decoder, error) {
	h := C.tjInitDecompress()
	if h == nil {
		return nil, errors.New("turbojpeg: tjInitDecompress failed")
	}
	return &Decoder{handle: h}, nil
}

func (d *Decoder) Decode(data []byte) (*decoder.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", decoder.ErrDecode)
	}
	src := (*C.uchar)(unsafe.Pointer(&data[0]))
	size := C.ulong(len(data))

	var width, height, subsamp, colorspace C.int
	if C.tjDecompressHeader3(d.handle, src, size, &width, &height, &subsamp, &colorspace) != 0 {
		return nil, fmt.Errorf("%w: header: %s", decoder.ErrDecode, C.GoString(C.tjGetErrorStr()))
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: bad geometry %dx%d", decoder.ErrDecode, width, height)
	}

	pix := make([]byte, int(width)*int(height)*3)
	flags := C.int(C.TJFLAG_FASTDCT | C.TJFLAG_FASTUPSAMPLE)
	if C.tjDecompress2(d.handle, src, size, (*C.uchar)(unsafe.Pointer(&pix[0])),
		width, 0, height, C.int(C.TJPF_RGB), flags) != 0 {
		return nil, fmt.Errorf("%w: %s", decoder.ErrDecode, C.GoString(C.tjGetErrorStr()))
	}
	return &decoder.Image{Pix: pix, Width: int(width), Height: int(height), Channels: 3}, nil
}

func (d *Decoder) Close() error {
	if d.handle == nil {
		return nil
	}
	C.tjDestroy(d.handle)
	d.handle = nil
	return nil
}
