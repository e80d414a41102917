package kms

import (
	"fmt"

	"github.com/NeowayLabs/kms/fourcc"
)

// PlaneType is the compositing role of a plane, read from its "type"
// property.
type PlaneType uint8

const (
	// PlaneOverlay is any plane that is neither primary nor cursor.
	PlaneOverlay PlaneType = iota

	// PlanePrimary is the plane the CRTC scans out during a plain
	// mode-set.
	PlanePrimary

	// PlaneCursor carries the cursor image.
	PlaneCursor
)

func (t PlaneType) String() string {
	switch t {
	case PlanePrimary:
		return "primary"
	case PlaneCursor:
		return "cursor"
	}
	return "overlay"
}

// Plane is one hardware compositing layer. Its framebuffer binding,
// routing and geometry change only through transactions.
type Plane struct {
	dev *Device
	id  uint32

	possibleCrtcs uint32
	formats       []fourcc.Format
}

func newPlane(d *Device, id uint32) (*Plane, error) {
	raw, formats, err := sysPlane(d.fd(), id)
	if err != nil {
		return nil, d.wrap(fmt.Sprintf("get plane %d", id), err)
	}
	p := &Plane{
		dev:           d,
		id:            id,
		possibleCrtcs: raw.possibleCrtcs,
		formats:       make([]fourcc.Format, 0, len(formats)),
	}
	for _, f := range formats {
		p.formats = append(p.formats, fourcc.Format(f))
	}
	return p, nil
}

func (p *Plane) ObjectID() uint32       { return p.id }
func (p *Plane) ObjectType() ObjectType { return ObjectPlane }
func (p *Plane) owner() *Device         { return p.dev }

// Formats returns the pixel formats the plane can scan out.
func (p *Plane) Formats() []fourcc.Format {
	return append([]fourcc.Format(nil), p.formats...)
}

// Supports reports whether the plane can scan out format f.
func (p *Plane) Supports(f fourcc.Format) bool {
	for _, have := range p.formats {
		if have == f {
			return true
		}
	}
	return false
}

// CompatibleWith reports whether the plane can be routed to crtc.
func (p *Plane) CompatibleWith(crtc *Crtc) bool {
	return p.possibleCrtcs&(1<<uint(crtc.index)) != 0
}

// Type reads the plane's compositing role from its "type" property.
func (p *Plane) Type() (PlaneType, error) {
	prop, err := p.dev.Property(p, "type")
	if err != nil {
		return PlaneOverlay, err
	}
	if prop.Value > uint64(PlaneCursor) {
		return PlaneOverlay, fmt.Errorf("%w: unexpected plane type %d",
			ErrTypeMismatch, prop.Value)
	}
	return PlaneType(prop.Value), nil
}

// FramebufferID re-queries the FB_ID property: the framebuffer the
// plane currently scans out, 0 when unbound.
func (p *Plane) FramebufferID() (uint32, error) {
	v, err := p.dev.PropertyValue(p, "FB_ID")
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func (p *Plane) String() string {
	return fmt.Sprintf("plane-%d", p.id)
}
