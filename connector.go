package kms

import "fmt"

// Status is the connection state of a Connector. It can change at any
// time through hot-plug, so it is re-queried on every call rather than
// cached.
type Status uint8

const (
	StatusConnected    Status = 1
	StatusDisconnected Status = 2
	StatusUnknown      Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// ConnectorType is the physical kind of a display sink.
type ConnectorType uint32

const (
	ConnectorUnknown ConnectorType = iota
	ConnectorVGA
	ConnectorDVII
	ConnectorDVID
	ConnectorDVIA
	ConnectorComposite
	ConnectorSVideo
	ConnectorLVDS
	ConnectorComponent
	ConnectorDIN
	ConnectorDisplayPort
	ConnectorHDMIA
	ConnectorHDMIB
	ConnectorTV
	ConnectorEDP
	ConnectorVirtual
	ConnectorDSI
	ConnectorDPI
	ConnectorWriteback
	ConnectorSPI
)

var connectorTypeNames = map[ConnectorType]string{
	ConnectorVGA:         "VGA",
	ConnectorDVII:        "DVI-I",
	ConnectorDVID:        "DVI-D",
	ConnectorDVIA:        "DVI-A",
	ConnectorComposite:   "Composite",
	ConnectorSVideo:      "SVIDEO",
	ConnectorLVDS:        "LVDS",
	ConnectorComponent:   "Component",
	ConnectorDIN:         "DIN",
	ConnectorDisplayPort: "DP",
	ConnectorHDMIA:       "HDMI-A",
	ConnectorHDMIB:       "HDMI-B",
	ConnectorTV:          "TV",
	ConnectorEDP:         "eDP",
	ConnectorVirtual:     "Virtual",
	ConnectorDSI:         "DSI",
	ConnectorDPI:         "DPI",
	ConnectorWriteback:   "Writeback",
	ConnectorSPI:         "SPI",
}

func (t ConnectorType) String() string {
	if name, ok := connectorTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Connector represents one display sink: a physical output such as an
// HDMI port, or a virtual one such as a writeback connector. Identity
// fields are fixed at enumeration; connection status and mode list are
// fetched from the kernel on every query.
type Connector struct {
	dev    *Device
	id     uint32
	typ    ConnectorType
	typeID uint32

	mmWidth, mmHeight uint32 // sink size in millimeters

	encoderID  uint32 // encoder driving the connector at enumeration
	encoderIDs []uint32
}

func newConnector(d *Device, id uint32) (*Connector, error) {
	raw, _, encoders, _, _, err := sysConnector(d.fd(), id)
	if err != nil {
		return nil, d.wrap(fmt.Sprintf("get connector %d", id), err)
	}
	return &Connector{
		dev:        d,
		id:         id,
		typ:        ConnectorType(raw.connectorType),
		typeID:     raw.connectorTypeID,
		mmWidth:    raw.mmWidth,
		mmHeight:   raw.mmHeight,
		encoderID:  raw.encoderID,
		encoderIDs: encoders,
	}, nil
}

func (c *Connector) ObjectID() uint32       { return c.id }
func (c *Connector) ObjectType() ObjectType { return ObjectConnector }
func (c *Connector) owner() *Device         { return c.dev }

// Type returns the connector's physical kind.
func (c *Connector) Type() ConnectorType { return c.typ }

// Name returns the kernel-style display name, e.g. "HDMI-A-1".
func (c *Connector) Name() string {
	return fmt.Sprintf("%s-%d", c.typ, c.typeID)
}

// PhysicalSize returns the sink dimensions in millimeters, when the
// sink reports them.
func (c *Connector) PhysicalSize() (width, height uint32) {
	return c.mmWidth, c.mmHeight
}

// Status re-queries the connection state. The result reflects this
// instant only; a hot-plug can change it before the next call.
func (c *Connector) Status() (Status, error) {
	if err := c.dev.check(c); err != nil {
		return StatusUnknown, err
	}
	raw, _, _, _, _, err := sysConnector(c.dev.fd(), c.id)
	if err != nil {
		return StatusUnknown, c.dev.wrap(fmt.Sprintf("get connector %d", c.id), err)
	}
	return Status(raw.connection), nil
}

// Modes re-queries the mode list supported by the attached sink. The
// list is empty while nothing is connected.
func (c *Connector) Modes() ([]Mode, error) {
	if err := c.dev.check(c); err != nil {
		return nil, err
	}
	raw, infos, _, _, _, err := sysConnector(c.dev.fd(), c.id)
	if err != nil {
		return nil, c.dev.wrap(fmt.Sprintf("get connector %d", c.id), err)
	}
	if raw.countModes == 0 {
		return nil, nil
	}

	modes := make([]Mode, 0, len(infos))
	for _, info := range infos {
		modes = append(modes, newMode(info))
	}
	return modes, nil
}

// PreferredMode returns the sink's preferred mode, or the first
// reported mode when none is flagged preferred.
func (c *Connector) PreferredMode() (Mode, error) {
	modes, err := c.Modes()
	if err != nil {
		return Mode{}, err
	}
	if len(modes) == 0 {
		return Mode{}, fmt.Errorf("%w: connector %s reports no modes", ErrNotFound, c.Name())
	}
	for _, m := range modes {
		if m.Preferred() {
			return m, nil
		}
	}
	return modes[0], nil
}

// Encoders returns the encoders this connector can be driven by.
func (c *Connector) Encoders() []*Encoder {
	var out []*Encoder
	for _, id := range c.encoderIDs {
		if enc := c.dev.encoderByID(id); enc != nil {
			out = append(out, enc)
		}
	}
	return out
}

func (c *Connector) String() string {
	return c.Name()
}
