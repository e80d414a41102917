package kms

// ObjectType tags the kind of a mode-setting object, matching the
// DRM_MODE_OBJECT_* values the kernel uses for property queries.
type ObjectType uint32

const (
	ObjectAny       ObjectType = 0
	ObjectCrtc      ObjectType = 0xcccccccc
	ObjectConnector ObjectType = 0xc0c0c0c0
	ObjectEncoder   ObjectType = 0xe0e0e0e0
	ObjectMode      ObjectType = 0xdededede
	ObjectProperty  ObjectType = 0xb0b0b0b0
	ObjectFB        ObjectType = 0xfbfbfbfb
	ObjectBlob      ObjectType = 0xbbbbbbbb
	ObjectPlane     ObjectType = 0xeeeeeeee
)

func (t ObjectType) String() string {
	switch t {
	case ObjectCrtc:
		return "crtc"
	case ObjectConnector:
		return "connector"
	case ObjectEncoder:
		return "encoder"
	case ObjectMode:
		return "mode"
	case ObjectProperty:
		return "property"
	case ObjectFB:
		return "framebuffer"
	case ObjectBlob:
		return "blob"
	case ObjectPlane:
		return "plane"
	}
	return "any"
}

// Object is the identity shared by connectors, encoders, CRTCs and
// planes. Identity is immutable; only property values change, and only
// through a committed Transaction. The set of implementations is
// closed: objects are minted by the owning Device during enumeration
// and stay valid for its lifetime only.
type Object interface {
	ObjectID() uint32
	ObjectType() ObjectType

	owner() *Device
}
