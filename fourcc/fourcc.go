// Package fourcc carries the DRM fourcc pixel-format vocabulary used
// when registering framebuffers. Only the CPU-writable formats a dumb
// buffer can reasonably back are listed here; the kernel accepts many
// more through accelerated paths.
package fourcc

// Format is a DRM fourcc pixel format code.
type Format uint32

const (
	// C8 is an 8-bit indexed format.
	C8 = Format(0x20203843) // 'C8  '

	// RGB565 is [15:0] R:G:B 5:6:5 little endian.
	RGB565 = Format(0x36314752) // 'RG16'

	// XRGB1555 is [15:0] x:R:G:B 1:5:5:5 little endian.
	XRGB1555 = Format(0x35315258) // 'XR15'

	// RGB888 is [23:0] R:G:B 8:8:8 little endian.
	RGB888 = Format(0x34324752) // 'RG24'

	// BGR888 is [23:0] B:G:R 8:8:8 little endian.
	BGR888 = Format(0x34324742) // 'BG24'

	// XRGB8888 is [31:0] x:R:G:B 8:8:8:8 little endian.
	XRGB8888 = Format(0x34325258) // 'XR24'

	// ARGB8888 is [31:0] A:R:G:B 8:8:8:8 little endian.
	ARGB8888 = Format(0x34325241) // 'AR24'

	// XBGR8888 is [31:0] x:B:G:R 8:8:8:8 little endian.
	XBGR8888 = Format(0x34324258) // 'XB24'

	// ABGR8888 is [31:0] A:B:G:R 8:8:8:8 little endian.
	ABGR8888 = Format(0x34324241) // 'AB24'
)

type layout struct {
	name string
	bpp  uint32 // bits per pixel in memory
	dep  uint32 // legacy color depth
}

var layouts = map[Format]layout{
	C8:       {"C8", 8, 8},
	RGB565:   {"RGB565", 16, 16},
	XRGB1555: {"XRGB1555", 16, 15},
	RGB888:   {"RGB888", 24, 24},
	BGR888:   {"BGR888", 24, 24},
	XRGB8888: {"XRGB8888", 32, 24},
	ARGB8888: {"ARGB8888", 32, 32},
	XBGR8888: {"XBGR8888", 32, 24},
	ABGR8888: {"ABGR8888", 32, 24},
}

// Known reports whether f has a layout entry, i.e. whether a dumb
// buffer can be allocated for it.
func Known(f Format) bool {
	_, ok := layouts[f]
	return ok
}

// BPP returns the bits per pixel a buffer of format f stores in
// memory, or 0 when the format is unknown.
func BPP(f Format) uint32 {
	return layouts[f].bpp
}

// Depth returns the legacy color depth of f, or 0 when the format is
// unknown.
func Depth(f Format) uint32 {
	return layouts[f].dep
}

// Parse resolves a format name as printed by String. It returns 0 when
// the name is not known.
func Parse(name string) Format {
	for f, l := range layouts {
		if l.name == name {
			return f
		}
	}
	return 0
}

func (f Format) String() string {
	if l, ok := layouts[f]; ok {
		return l.name
	}
	// Fall back to the raw fourcc characters.
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	return string(b[:])
}
