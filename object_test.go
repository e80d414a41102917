package kms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectTypeString(t *testing.T) {
	assert.Equal(t, "connector", ObjectConnector.String())
	assert.Equal(t, "crtc", ObjectCrtc.String())
	assert.Equal(t, "plane", ObjectPlane.String())
	assert.Equal(t, "framebuffer", ObjectFB.String())
}

func TestConnectorName(t *testing.T) {
	hdmi := &Connector{typ: ConnectorHDMIA, typeID: 1}
	assert.Equal(t, "HDMI-A-1", hdmi.Name())

	edp := &Connector{typ: ConnectorEDP, typeID: 1}
	assert.Equal(t, "eDP-1", edp.Name())

	dp2 := &Connector{typ: ConnectorDisplayPort, typeID: 2}
	assert.Equal(t, "DP-2", dp2.Name())
}

func TestConnectorStatusString(t *testing.T) {
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "unknown", StatusUnknown.String())
}

func TestEncoderCrtcsBitmask(t *testing.T) {
	d := testDevice()
	c0 := &Crtc{dev: d, id: 41, index: 0}
	c1 := &Crtc{dev: d, id: 42, index: 1}
	c2 := &Crtc{dev: d, id: 43, index: 2}
	d.crtcs = []*Crtc{c0, c1, c2}

	enc := &Encoder{dev: d, id: 61, possibleCrtcs: 0b101}
	assert.Equal(t, []*Crtc{c0, c2}, enc.Crtcs())
}
