package kms

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/NeowayLabs/kms/ioctl"
)

// Atomic commit flags (drm_mode_atomic.flags).
const (
	atomicTestOnly     = 0x0100
	atomicAllowModeset = 0x0400
)

// CommitMode selects how a transaction is submitted.
type CommitMode uint8

const (
	// CommitSynchronous blocks until the kernel applies the whole
	// property set or rejects it. There is no partial outcome.
	CommitSynchronous CommitMode = iota

	// CommitTestOnly checks the configuration for legality without
	// touching device state. Useful to pre-flight a mode-set.
	CommitTestOnly
)

type txnState uint8

const (
	txnBuilding txnState = iota
	txnApplied
	txnRejected
)

// Transaction accumulates property assignments across connectors,
// CRTCs and planes and submits them as one all-or-nothing kernel
// commit. Building is purely in-memory: nothing is kernel-visible
// before Commit. Re-setting a (object, property) pair overwrites the
// pending value.
//
// A transaction is consumed by its single Commit attempt, whatever the
// outcome; build a fresh one per frame.
type Transaction struct {
	dev   *Device
	state txnState

	pending map[uint32]map[uint32]uint64 // object ID → property ID → value
	planeFB map[uint32]uint32            // plane ID → pending FB_ID value
}

// NewTransaction starts an empty transaction against the device.
func (d *Device) NewTransaction() *Transaction {
	return &Transaction{
		dev:     d,
		pending: make(map[uint32]map[uint32]uint64),
		planeFB: make(map[uint32]uint32),
	}
}

func (t *Transaction) stage(obj Object, p *Property, value uint64) {
	props, ok := t.pending[obj.ObjectID()]
	if !ok {
		props = make(map[uint32]uint64)
		t.pending[obj.ObjectID()] = props
	}
	props[p.ID] = value

	if obj.ObjectType() == ObjectPlane && p.Name == "FB_ID" {
		t.planeFB[obj.ObjectID()] = uint32(value)
	}

	t.dev.log.Trace().
		Str("object", fmt.Sprintf("%s %d", obj.ObjectType(), obj.ObjectID())).
		Str("property", p.Name).
		Uint64("value", value).
		Msg("staged property")
}

func (t *Transaction) settable(obj Object) error {
	if t.state != txnBuilding {
		return ErrSubmitted
	}
	return t.dev.check(obj)
}

// Set stages value for the named property of obj. The value is
// validated against the resolved property's type and legal-value set
// immediately, so a bad assignment is reported here and never reaches
// the kernel.
func (t *Transaction) Set(obj Object, name string, value uint64) error {
	if err := t.settable(obj); err != nil {
		return err
	}
	p, err := t.dev.Property(obj, name)
	if err != nil {
		return err
	}
	if err := p.validate(value); err != nil {
		return err
	}
	t.stage(obj, p, value)
	return nil
}

// SetSigned stages a signed value for a signed-range property.
func (t *Transaction) SetSigned(obj Object, name string, value int64) error {
	if err := t.settable(obj); err != nil {
		return err
	}
	p, err := t.dev.Property(obj, name)
	if err != nil {
		return err
	}
	if p.Type != PropertySignedRange {
		return fmt.Errorf("%w: %q is a %s property, not a signed range",
			ErrTypeMismatch, name, p.Type)
	}
	if err := p.validate(uint64(value)); err != nil {
		return err
	}
	t.stage(obj, p, uint64(value))
	return nil
}

// SetEnum stages an enum property by its symbolic value name.
func (t *Transaction) SetEnum(obj Object, name, valueName string) error {
	if err := t.settable(obj); err != nil {
		return err
	}
	p, err := t.dev.Property(obj, name)
	if err != nil {
		return err
	}
	value, err := p.enumValue(valueName)
	if err != nil {
		return err
	}
	t.stage(obj, p, value)
	return nil
}

// SetFramebuffer stages fb as the scanout source of plane. A nil fb
// unbinds the plane.
func (t *Transaction) SetFramebuffer(plane *Plane, fb *Framebuffer) error {
	var id uint64
	if fb != nil {
		if fb.dead {
			return fmt.Errorf("%w: framebuffer %d destroyed", ErrObjectVanished, fb.id)
		}
		if !plane.Supports(fb.format) {
			return fmt.Errorf("%w: %s cannot scan out %s",
				ErrUnsupportedFormat, plane, fb.format)
		}
		id = uint64(fb.id)
	}
	return t.Set(plane, "FB_ID", id)
}

// SetCrtcForPlane routes plane to crtc; nil detaches the plane.
func (t *Transaction) SetCrtcForPlane(plane *Plane, crtc *Crtc) error {
	if crtc == nil {
		return t.Set(plane, "CRTC_ID", 0)
	}
	if !plane.CompatibleWith(crtc) {
		return fmt.Errorf("%w: %s cannot feed %s", ErrOutOfRange, plane, crtc)
	}
	return t.Set(plane, "CRTC_ID", uint64(crtc.id))
}

// SetCrtcForConnector routes conn to crtc; nil detaches the
// connector.
func (t *Transaction) SetCrtcForConnector(conn *Connector, crtc *Crtc) error {
	if crtc == nil {
		return t.Set(conn, "CRTC_ID", 0)
	}
	return t.Set(conn, "CRTC_ID", uint64(crtc.id))
}

// SetMode uploads mode as a device-owned blob and stages it as crtc's
// MODE_ID.
func (t *Transaction) SetMode(crtc *Crtc, mode Mode) error {
	if err := t.settable(crtc); err != nil {
		return err
	}
	blob, err := t.dev.CreateModeBlob(mode)
	if err != nil {
		return err
	}
	return t.Set(crtc, "MODE_ID", uint64(blob))
}

// SetActive stages the CRTC's ACTIVE flag.
func (t *Transaction) SetActive(crtc *Crtc, active bool) error {
	var v uint64
	if active {
		v = 1
	}
	return t.Set(crtc, "ACTIVE", v)
}

// SetDisplayRect stages the destination rectangle of plane on its
// CRTC, in pixels.
func (t *Transaction) SetDisplayRect(plane *Plane, x, y int32, width, height uint32) error {
	if err := t.SetSigned(plane, "CRTC_X", int64(x)); err != nil {
		return err
	}
	if err := t.SetSigned(plane, "CRTC_Y", int64(y)); err != nil {
		return err
	}
	if err := t.Set(plane, "CRTC_W", uint64(width)); err != nil {
		return err
	}
	return t.Set(plane, "CRTC_H", uint64(height))
}

// SetSourceRect stages the source rectangle read from the plane's
// framebuffer. Coordinates are in pixels and converted to the 16.16
// fixed-point encoding the SRC_* properties expect; fractions select
// sub-pixel positions.
func (t *Transaction) SetSourceRect(plane *Plane, x, y, width, height float64) error {
	if err := t.Set(plane, "SRC_X", Fixed16(x)); err != nil {
		return err
	}
	if err := t.Set(plane, "SRC_Y", Fixed16(y)); err != nil {
		return err
	}
	if err := t.Set(plane, "SRC_W", Fixed16(width)); err != nil {
		return err
	}
	return t.Set(plane, "SRC_H", Fixed16(height))
}

// Fixed16 converts a pixel coordinate to the unsigned 16.16
// fixed-point encoding used by plane SRC_* properties.
func Fixed16(v float64) uint64 {
	if v <= 0 {
		return 0
	}
	return uint64(math.Round(v*65536)) & 0xffffffff
}

// Empty reports whether nothing has been staged yet.
func (t *Transaction) Empty() bool {
	return len(t.pending) == 0
}

// marshalAtomic flattens the pending set to the four parallel arrays
// drm_mode_atomic wants: object IDs ascending, a property count per
// object, and the property/value pairs grouped by object with the
// property IDs ascending within each group.
func marshalAtomic(pending map[uint32]map[uint32]uint64) (objs, counts, props []uint32, values []uint64) {
	objs = make([]uint32, 0, len(pending))
	for obj := range pending {
		objs = append(objs, obj)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i] < objs[j] })

	counts = make([]uint32, 0, len(objs))
	for _, obj := range objs {
		ids := make([]uint32, 0, len(pending[obj]))
		for id := range pending[obj] {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		counts = append(counts, uint32(len(ids)))
		for _, id := range ids {
			props = append(props, id)
			values = append(values, pending[obj][id])
		}
	}
	return objs, counts, props, values
}

// Commit submits the accumulated property set as one kernel
// transaction. Outcomes:
//
//   - nil: the full set was applied (or, in test-only mode, would be
//     accepted). Device state after a test-only commit is untouched.
//   - ErrBusy: another client's commit was in flight; nothing was
//     applied. Rebuild and resubmit to retry.
//   - ErrRejected: the kernel refused the set; device state is exactly
//     as before the call. The kernel's errno is preserved in the wrap
//     chain.
//
// Whatever the outcome, the transaction is consumed.
func (t *Transaction) Commit(mode CommitMode) error {
	if t.state != txnBuilding {
		return ErrSubmitted
	}
	if err := t.dev.ok(); err != nil {
		return err
	}

	objs, counts, props, values := marshalAtomic(t.pending)

	flags := uint32(atomicAllowModeset)
	if mode == CommitTestOnly {
		flags |= atomicTestOnly
	}

	t.dev.log.Debug().
		Int("objects", len(objs)).
		Int("properties", len(props)).
		Bool("test_only", mode == CommitTestOnly).
		Msg("submitting atomic commit")

	err := sysAtomicCommit(t.dev.fd(), flags, objs, counts, props, values)
	if err != nil {
		t.state = txnRejected
		if isTransport(err) {
			return t.dev.wrap("atomic commit", err)
		}
		if ioctl.Errno(err) == unix.EBUSY {
			return fmt.Errorf("%w: atomic commit: %w", ErrBusy, err)
		}
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}

	t.state = txnApplied
	if mode == CommitTestOnly {
		return nil
	}

	// Record plane→framebuffer bindings from the applied state; they
	// back the StillInUse check on Framebuffer.Destroy.
	for plane, fb := range t.planeFB {
		if fb == 0 {
			delete(t.dev.bound, plane)
		} else {
			t.dev.bound[plane] = fb
		}
	}
	return nil
}
