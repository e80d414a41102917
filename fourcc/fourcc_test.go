package fourcc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fourcc(a, b, c, d byte) Format {
	return Format(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

func TestCodes(t *testing.T) {
	assert.Equal(t, fourcc('X', 'R', '2', '4'), XRGB8888)
	assert.Equal(t, fourcc('A', 'R', '2', '4'), ARGB8888)
	assert.Equal(t, fourcc('R', 'G', '2', '4'), RGB888)
	assert.Equal(t, fourcc('R', 'G', '1', '6'), RGB565)
}

func TestLayouts(t *testing.T) {
	assert.True(t, Known(XRGB8888))
	assert.Equal(t, uint32(32), BPP(XRGB8888))
	assert.Equal(t, uint32(24), Depth(XRGB8888))
	assert.Equal(t, uint32(16), BPP(RGB565))
	assert.Equal(t, uint32(24), BPP(RGB888))

	unknown := fourcc('N', 'V', '1', '2')
	assert.False(t, Known(unknown))
	assert.Zero(t, BPP(unknown))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "XRGB8888", XRGB8888.String())
	assert.Equal(t, XRGB8888, Parse("XRGB8888"))
	assert.Zero(t, Parse("nope"))
	// Unknown formats print their raw fourcc characters.
	assert.Equal(t, "NV12", fourcc('N', 'V', '1', '2').String())
}
