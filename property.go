package kms

import (
	"bytes"
	"fmt"
)

// Kernel property flags (include/uapi/drm/drm_mode.h).
const (
	propFlagPending   = 1 << 0
	propFlagRange     = 1 << 1
	propFlagImmutable = 1 << 2
	propFlagEnum      = 1 << 3
	propFlagBlob      = 1 << 4
	propFlagBitmask   = 1 << 5

	propFlagExtended    = 0x0000ffc0
	propFlagObject      = 1 << 6
	propFlagSignedRange = 2 << 6

	propFlagAtomic = 0x80000000
)

// PropertyType tags how a property's value is interpreted and
// validated.
type PropertyType uint8

const (
	PropertyRange PropertyType = iota
	PropertyEnum
	PropertyBitmask
	PropertyBlob
	PropertyObject
	PropertySignedRange
)

func (t PropertyType) String() string {
	switch t {
	case PropertyRange:
		return "range"
	case PropertyEnum:
		return "enum"
	case PropertyBitmask:
		return "bitmask"
	case PropertyBlob:
		return "blob"
	case PropertyObject:
		return "object"
	case PropertySignedRange:
		return "signed range"
	}
	return "unknown"
}

// Property is the resolved descriptor of one mutable attribute of one
// object: the kernel-assigned numeric IDs, the type tag and the legal
// value set. Descriptors are resolved once per Device lifetime and are
// stable within it; Value is a snapshot from resolution time and can
// be re-read with Device.PropertyValue.
type Property struct {
	ObjectID uint32
	ID       uint32
	Name     string
	Type     PropertyType

	// Immutable properties are reported by the kernel but reject any
	// assignment.
	Immutable bool

	// Value is the property value observed when the descriptor was
	// resolved.
	Value uint64

	// Values holds the legal-value set: [min, max] for range and
	// signed-range properties, the legal bits for bitmask properties
	// and the accepted object type for object properties.
	Values []uint64

	// Enums maps symbolic value names to kernel enum values for enum
	// and bitmask properties.
	Enums map[string]uint64
}

func propertyType(flags uint32) PropertyType {
	switch {
	case flags&propFlagRange != 0:
		return PropertyRange
	case flags&propFlagEnum != 0:
		return PropertyEnum
	case flags&propFlagBitmask != 0:
		return PropertyBitmask
	case flags&propFlagBlob != 0:
		return PropertyBlob
	case flags&propFlagExtended == propFlagObject:
		return PropertyObject
	case flags&propFlagExtended == propFlagSignedRange:
		return PropertySignedRange
	}
	// The kernel has no untyped properties; treat anything new as a
	// free range so it stays settable.
	return PropertyRange
}

func cstr(b []uint8) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// fetchProperty materialises a property descriptor from its kernel ID.
func (d *Device) fetchProperty(objID, propID uint32, value uint64) (*Property, error) {
	raw, values, enums, err := sysProperty(d.fd(), propID)
	if err != nil {
		return nil, d.wrap("get property", err)
	}

	p := &Property{
		ObjectID:  objID,
		ID:        propID,
		Name:      cstr(raw.name[:]),
		Type:      propertyType(raw.flags),
		Immutable: raw.flags&propFlagImmutable != 0,
		Value:     value,
		Values:    values,
	}

	if len(enums) > 0 {
		p.Enums = make(map[string]uint64, len(enums))
		for _, e := range enums {
			p.Enums[cstr(e.name[:])] = e.value
		}
	}
	return p, nil
}

// resolve returns the cached name→descriptor table for obj, fetching
// and caching it on first use. Property IDs are treated as stable for
// the Device lifetime thereafter.
func (d *Device) resolve(obj Object) (map[string]*Property, error) {
	if err := d.check(obj); err != nil {
		return nil, err
	}
	if props, ok := d.props[obj.ObjectID()]; ok {
		return props, nil
	}

	ids, values, err := sysObjProperties(d.fd(), obj.ObjectID(), uint32(obj.ObjectType()))
	if err != nil {
		return nil, d.wrap(fmt.Sprintf("properties of %s %d", obj.ObjectType(), obj.ObjectID()), err)
	}

	props := make(map[string]*Property, len(ids))
	for i, id := range ids {
		p, err := d.fetchProperty(obj.ObjectID(), id, values[i])
		if err != nil {
			// A property ID the kernel reported but cannot describe
			// means the object graph shifted under us. Fail loudly
			// instead of guessing.
			return nil, fmt.Errorf("%w: property %d of %s %d: %w",
				ErrObjectVanished, id, obj.ObjectType(), obj.ObjectID(), err)
		}
		props[p.Name] = p
	}

	d.props[obj.ObjectID()] = props
	return props, nil
}

// Properties lists the resolved property descriptors of obj in no
// particular order.
func (d *Device) Properties(obj Object) ([]*Property, error) {
	props, err := d.resolve(obj)
	if err != nil {
		return nil, err
	}
	out := make([]*Property, 0, len(props))
	for _, p := range props {
		out = append(out, p)
	}
	return out, nil
}

// Property resolves name on obj to its descriptor. Resolving the same
// name twice on the same object returns the same descriptor.
func (d *Device) Property(obj Object, name string) (*Property, error) {
	props, err := d.resolve(obj)
	if err != nil {
		return nil, err
	}
	p, ok := props[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q on %s %d",
			ErrUnknownProperty, name, obj.ObjectType(), obj.ObjectID())
	}
	return p, nil
}

// PropertyValue re-queries the current value of name on obj. Unlike
// the descriptor, the value is never served from cache.
func (d *Device) PropertyValue(obj Object, name string) (uint64, error) {
	p, err := d.Property(obj, name)
	if err != nil {
		return 0, err
	}

	ids, values, err := sysObjProperties(d.fd(), obj.ObjectID(), uint32(obj.ObjectType()))
	if err != nil {
		return 0, d.wrap(fmt.Sprintf("properties of %s %d", obj.ObjectType(), obj.ObjectID()), err)
	}
	for i, id := range ids {
		if id == p.ID {
			return values[i], nil
		}
	}
	return 0, fmt.Errorf("%w: property %q (%d) no longer reported by %s %d",
		ErrObjectVanished, name, p.ID, obj.ObjectType(), obj.ObjectID())
}

// validate checks v against the property's type tag and legal-value
// set. It implements the assignment-time checks of the transaction
// builder, so a bad value never reaches the kernel.
func (p *Property) validate(v uint64) error {
	if p.Immutable {
		return fmt.Errorf("%w: %q is immutable", ErrTypeMismatch, p.Name)
	}
	switch p.Type {
	case PropertyRange:
		if len(p.Values) == 2 && (v < p.Values[0] || v > p.Values[1]) {
			return fmt.Errorf("%w: %q: %d not in [%d, %d]",
				ErrOutOfRange, p.Name, v, p.Values[0], p.Values[1])
		}
	case PropertySignedRange:
		if len(p.Values) == 2 {
			sv, lo, hi := int64(v), int64(p.Values[0]), int64(p.Values[1])
			if sv < lo || sv > hi {
				return fmt.Errorf("%w: %q: %d not in [%d, %d]",
					ErrOutOfRange, p.Name, sv, lo, hi)
			}
		}
	case PropertyEnum:
		for _, legal := range p.Enums {
			if v == legal {
				return nil
			}
		}
		return fmt.Errorf("%w: %q: %d is not a legal enum value",
			ErrOutOfRange, p.Name, v)
	case PropertyBitmask:
		var mask uint64
		for _, bit := range p.Enums {
			mask |= 1 << bit
		}
		if v&^mask != 0 {
			return fmt.Errorf("%w: %q: %#x sets bits outside %#x",
				ErrOutOfRange, p.Name, v, mask)
		}
	case PropertyBlob, PropertyObject:
		// IDs live in kernel namespaces this process cannot verify
		// locally; the commit validates them.
	}
	return nil
}

// enumValue resolves a symbolic enum value name.
func (p *Property) enumValue(name string) (uint64, error) {
	if p.Type != PropertyEnum && p.Type != PropertyBitmask {
		return 0, fmt.Errorf("%w: %q is a %s property, not an enum",
			ErrTypeMismatch, p.Name, p.Type)
	}
	v, ok := p.Enums[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q has no value named %q",
			ErrOutOfRange, p.Name, name)
	}
	return v, nil
}
