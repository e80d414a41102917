package kms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testModeInfo(name string, w, h uint16, refresh uint32, typ uint32) sysModeInfo {
	info := sysModeInfo{
		clock:    148500,
		hdisplay: w,
		vdisplay: h,
		vrefresh: refresh,
		typ:      typ,
	}
	copy(info.name[:], name)
	return info
}

func TestModeAccessors(t *testing.T) {
	m := newMode(testModeInfo("1920x1080", 1920, 1080, 60, modeTypeDriver|modeTypePreferred))

	assert.Equal(t, "1920x1080", m.Name())
	assert.Equal(t, uint16(1920), m.Width())
	assert.Equal(t, uint16(1080), m.Height())
	assert.Equal(t, uint32(60), m.Refresh())
	assert.Equal(t, uint32(148500), m.Clock())
	assert.True(t, m.Preferred())
	assert.Equal(t, "1920x1080@60", m.String())
}

func TestModeNotPreferred(t *testing.T) {
	m := newMode(testModeInfo("1280x720", 1280, 720, 50, modeTypeDriver))
	assert.False(t, m.Preferred())
}
