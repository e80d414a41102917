package kms

import "fmt"

// Crtc is a display pipeline: it blends the planes routed to it and
// generates timings for the connector it drives. Its mutable state
// (active flag, mode) is changed exclusively through transactions and
// re-read with State.
type Crtc struct {
	dev *Device
	id  uint32

	// index is the position in kernel enumeration order, used to test
	// possible-CRTC bitmasks on encoders and planes.
	index int
}

func newCrtc(d *Device, id uint32, index int) (*Crtc, error) {
	// Probe once so a vanished ID fails at enumeration, not first use.
	if _, err := sysCrtcState(d.fd(), id); err != nil {
		return nil, d.wrap(fmt.Sprintf("get crtc %d", id), err)
	}
	return &Crtc{dev: d, id: id, index: index}, nil
}

func (c *Crtc) ObjectID() uint32       { return c.id }
func (c *Crtc) ObjectType() ObjectType { return ObjectCrtc }
func (c *Crtc) owner() *Device         { return c.dev }

// CrtcState is a point-in-time snapshot of a CRTC's mutable state.
type CrtcState struct {
	// FramebufferID is the legacy scanout buffer reference; 0 when
	// none is attached.
	FramebufferID uint32

	// X, Y position the scanout window on the framebuffer.
	X, Y uint32

	GammaSize int

	// ModeValid reports whether Mode carries meaningful timings.
	ModeValid bool
	Mode      Mode
}

// State re-queries the CRTC's current state from the kernel. The
// snapshot is stale as soon as any client commits.
func (c *Crtc) State() (CrtcState, error) {
	if err := c.dev.check(c); err != nil {
		return CrtcState{}, err
	}
	raw, err := sysCrtcState(c.dev.fd(), c.id)
	if err != nil {
		return CrtcState{}, c.dev.wrap(fmt.Sprintf("get crtc %d", c.id), err)
	}
	return CrtcState{
		FramebufferID: raw.fbID,
		X:             raw.x,
		Y:             raw.y,
		GammaSize:     int(raw.gammaSize),
		ModeValid:     raw.modeValid != 0,
		Mode:          newMode(raw.mode),
	}, nil
}

// Active re-queries the atomic ACTIVE property.
func (c *Crtc) Active() (bool, error) {
	v, err := c.dev.PropertyValue(c, "ACTIVE")
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (c *Crtc) String() string {
	return fmt.Sprintf("crtc-%d", c.id)
}
