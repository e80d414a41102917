package kms

import (
	"fmt"
	"unsafe"
)

// Mode type bits (drm_mode_modeinfo.type).
const (
	modeTypePreferred = 1 << 3
	modeTypeUserdef   = 1 << 5
	modeTypeDriver    = 1 << 6
)

// Mode is one display timing configuration reported by a connector.
// To take effect it must be uploaded as a kernel blob and assigned to
// a CRTC's MODE_ID property, which Transaction.SetMode does in one
// step.
type Mode struct {
	name string
	info sysModeInfo
}

func newMode(info sysModeInfo) Mode {
	return Mode{
		name: cstr(info.name[:]),
		info: info,
	}
}

// Name returns the kernel-assigned mode name, e.g. "1920x1080".
func (m Mode) Name() string { return m.name }

// Width returns the active horizontal size in pixels.
func (m Mode) Width() uint16 { return m.info.hdisplay }

// Height returns the active vertical size in pixels.
func (m Mode) Height() uint16 { return m.info.vdisplay }

// Refresh returns the vertical refresh rate in Hz.
func (m Mode) Refresh() uint32 { return m.info.vrefresh }

// Clock returns the pixel clock in kHz.
func (m Mode) Clock() uint32 { return m.info.clock }

// Preferred reports whether the sink flags this mode as preferred.
func (m Mode) Preferred() bool {
	return m.info.typ&modeTypePreferred != 0
}

func (m Mode) String() string {
	return fmt.Sprintf("%s@%d", m.name, m.info.vrefresh)
}

// CreateModeBlob uploads m's timing descriptor as a kernel blob owned
// by this Device and returns the blob ID, suitable for a CRTC MODE_ID
// assignment. The blob stays alive until DestroyBlob or Close.
func (d *Device) CreateModeBlob(m Mode) (uint32, error) {
	info := m.info
	buf := (*[unsafe.Sizeof(sysModeInfo{})]byte)(unsafe.Pointer(&info))
	return d.CreateBlob(buf[:])
}
