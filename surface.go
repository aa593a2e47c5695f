package rfb

// Surface is an immutable snapshot describing the animator's pixel
// buffer: dimensions, the byte distance between rows, and the pixels
// themselves. The core never writes through Pixels and never retains a
// Surface value across the next ChangeSurface call — it is a
// capability to read, not ownership.
//
// Pixels is laid out row-major, 4 bytes per pixel, each pixel packed
// big-endian as 0xAARRGGBB (ServerNativeFormat). Stride may exceed
// Width*4 if the animator's buffer has row padding.
type Surface struct {
	Width  int
	Height int
	Stride int
	Pixels []byte
}

// Bounds returns the surface as a Rectangle anchored at the origin, the
// shape every damage rectangle is ultimately clipped against.
func (s Surface) Bounds() Rectangle {
	return Rectangle{X: 0, Y: 0, W: s.Width, H: s.Height}
}

// NewSurface builds a Surface with the conventional stride
// (Width*4, no row padding), which is the common case for an animator
// that owns a tightly packed ARGB32 buffer.
func NewSurface(width, height int, pixels []byte) Surface {
	return Surface{Width: width, Height: height, Stride: width * 4, Pixels: pixels}
}
