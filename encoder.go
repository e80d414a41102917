package kms

import "fmt"

// EncoderType is the signal encoding stage between a CRTC and a
// connector.
type EncoderType uint32

const (
	EncoderNone EncoderType = iota
	EncoderDAC
	EncoderTMDS
	EncoderLVDS
	EncoderTVDAC
	EncoderVirtual
	EncoderDSI
	EncoderDPMST
	EncoderDPI
)

func (t EncoderType) String() string {
	switch t {
	case EncoderDAC:
		return "DAC"
	case EncoderTMDS:
		return "TMDS"
	case EncoderLVDS:
		return "LVDS"
	case EncoderTVDAC:
		return "TVDAC"
	case EncoderVirtual:
		return "Virtual"
	case EncoderDSI:
		return "DSI"
	case EncoderDPMST:
		return "DPMST"
	case EncoderDPI:
		return "DPI"
	}
	return "None"
}

// Encoder converts a CRTC's pixel stream to the signal a connector
// carries. Encoders expose no mutable properties; they matter for the
// possible-CRTC routing masks used during pipeline discovery.
type Encoder struct {
	dev *Device
	id  uint32
	typ EncoderType

	crtcID uint32 // CRTC driving the encoder at enumeration

	possibleCrtcs  uint32
	possibleClones uint32
}

func newEncoder(d *Device, id uint32) (*Encoder, error) {
	raw, err := sysEncoder(d.fd(), id)
	if err != nil {
		return nil, d.wrap(fmt.Sprintf("get encoder %d", id), err)
	}
	return &Encoder{
		dev:            d,
		id:             id,
		typ:            EncoderType(raw.encoderType),
		crtcID:         raw.crtcID,
		possibleCrtcs:  raw.possibleCrtcs,
		possibleClones: raw.possibleClones,
	}, nil
}

func (e *Encoder) ObjectID() uint32       { return e.id }
func (e *Encoder) ObjectType() ObjectType { return ObjectEncoder }
func (e *Encoder) owner() *Device         { return e.dev }

// Type returns the encoder's signal kind.
func (e *Encoder) Type() EncoderType { return e.typ }

// Crtcs returns the CRTCs this encoder can be fed by, per the
// kernel-reported possible-CRTC bitmask over enumeration order.
func (e *Encoder) Crtcs() []*Crtc {
	var out []*Crtc
	for _, crtc := range e.dev.crtcs {
		if e.possibleCrtcs&(1<<uint(crtc.index)) != 0 {
			out = append(out, crtc)
		}
	}
	return out
}

func (e *Encoder) String() string {
	return fmt.Sprintf("encoder-%d (%s)", e.id, e.typ)
}
