package kms

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/rs/zerolog"
)

// Device owns the open DRM descriptor and every object enumerated from
// it. Connectors, encoders, CRTCs, planes and framebuffers returned by
// a Device are valid only for its lifetime.
//
// A Device and its objects are meant for single-owner, single-threaded
// use. The kernel serializes commits per device, so a second writer
// observes ErrBusy or ErrRejected, never silent corruption.
type Device struct {
	file    *os.File
	log     zerolog.Logger
	version Version

	minWidth, maxWidth   uint32
	minHeight, maxHeight uint32

	connectors []*Connector
	encoders   []*Encoder
	crtcs      []*Crtc
	planes     []*Plane

	props map[uint32]map[string]*Property // object ID → resolved descriptors
	blobs map[uint32]struct{}             // property blobs owned by this device
	fbs   map[uint32]*Framebuffer         // live framebuffers by KMS fb ID
	bound map[uint32]uint32               // plane ID → fb ID, last applied commit

	failure error // transport latch; non-nil means every call fails fast
}

// Option adjusts a Device before enumeration.
type Option func(*Device)

// WithLogger routes enumeration and commit diagnostics to l. The
// default is a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Device) {
		d.log = l
	}
}

// Open opens the DRM device node at path and enumerates its display
// objects. It fails with ErrNotFound or ErrPermissionDenied when the
// node is absent or inaccessible, and with ErrUnsupportedCapability
// when the node is not a DRM device or its driver cannot do atomic
// mode-setting on dumb buffers.
func Open(path string, opts ...Option) (*Device, error) {
	file, err := openNode(path)
	if err != nil {
		return nil, err
	}

	d := &Device{
		file:  file,
		log:   zerolog.Nop(),
		props: make(map[uint32]map[string]*Property),
		blobs: make(map[uint32]struct{}),
		fbs:   make(map[uint32]*Framebuffer),
		bound: make(map[uint32]uint32),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.setup(path); err != nil {
		file.Close()
		return nil, err
	}
	return d, nil
}

// OpenCard opens the n-th card node under /dev/dri.
func OpenCard(n int, opts ...Option) (*Device, error) {
	return Open(CardPath(n), opts...)
}

func (d *Device) setup(path string) error {
	version, err := getVersion(d.file)
	if err != nil {
		return fmt.Errorf("%w: %s is not a DRM device: %w",
			ErrUnsupportedCapability, path, err)
	}
	d.version = version

	// The atomic API and the full plane list are opt-in.
	if err := sysSetClientCapability(d.fd(), ClientCapAtomic, 1); err != nil {
		return fmt.Errorf("%w: no atomic mode-setting: %w",
			ErrUnsupportedCapability, err)
	}
	if err := sysSetClientCapability(d.fd(), ClientCapUniversalPlanes, 1); err != nil {
		return fmt.Errorf("%w: no universal planes: %w",
			ErrUnsupportedCapability, err)
	}
	if !HasDumbBuffer(d.file) {
		return fmt.Errorf("%w: no dumb buffer support", ErrUnsupportedCapability)
	}

	if err := d.enumerate(); err != nil {
		return err
	}

	d.log.Debug().
		Str("driver", version.Name).
		Str("path", path).
		Int("connectors", len(d.connectors)).
		Int("encoders", len(d.encoders)).
		Int("crtcs", len(d.crtcs)).
		Int("planes", len(d.planes)).
		Msg("kms device opened")
	return nil
}

// enumerate walks the kernel-reported object lists in discovery order.
// Identity fields are fetched once here; mutable state is re-queried
// on demand by the object types.
func (d *Device) enumerate() error {
	res, crtcs, encoders, connectors, _, err := sysGetResources(d.fd())
	if err != nil {
		return d.wrap("get resources", err)
	}
	d.minWidth, d.maxWidth = res.minWidth, res.maxWidth
	d.minHeight, d.maxHeight = res.minHeight, res.maxHeight

	for idx, id := range crtcs {
		crtc, err := newCrtc(d, id, idx)
		if err != nil {
			return err
		}
		d.crtcs = append(d.crtcs, crtc)
	}
	for _, id := range encoders {
		enc, err := newEncoder(d, id)
		if err != nil {
			return err
		}
		d.encoders = append(d.encoders, enc)
	}
	for _, id := range connectors {
		conn, err := newConnector(d, id)
		if err != nil {
			return err
		}
		d.connectors = append(d.connectors, conn)
	}

	planes, err := sysPlanes(d.fd())
	if err != nil {
		return d.wrap("get planes", err)
	}
	for _, id := range planes {
		plane, err := newPlane(d, id)
		if err != nil {
			return err
		}
		d.planes = append(d.planes, plane)
	}
	return nil
}

// Version reports the kernel driver behind the device.
func (d *Device) Version() Version {
	return d.version
}

// Connectors returns the enumerated connectors in kernel discovery
// order (stable within one boot).
func (d *Device) Connectors() []*Connector {
	return append([]*Connector(nil), d.connectors...)
}

// Encoders returns the enumerated encoders in kernel discovery order.
func (d *Device) Encoders() []*Encoder {
	return append([]*Encoder(nil), d.encoders...)
}

// Crtcs returns the enumerated CRTCs in kernel discovery order.
func (d *Device) Crtcs() []*Crtc {
	return append([]*Crtc(nil), d.crtcs...)
}

// Planes returns the enumerated planes in kernel discovery order.
func (d *Device) Planes() []*Plane {
	return append([]*Plane(nil), d.planes...)
}

// PipeFor finds an encoder and a compatible CRTC able to drive conn,
// preferring the pairing the kernel already has in place.
func (d *Device) PipeFor(conn *Connector) (*Crtc, *Encoder, error) {
	if err := d.check(conn); err != nil {
		return nil, nil, err
	}

	// Current encoder+CRTC first: cheapest and already proven valid.
	if enc := d.encoderByID(conn.encoderID); enc != nil && enc.crtcID != 0 {
		if crtc := d.crtcByID(enc.crtcID); crtc != nil {
			return crtc, enc, nil
		}
	}

	// Otherwise try every encoder the connector accepts against the
	// global CRTC list, gated by the encoder's possible-CRTC mask.
	for _, encID := range conn.encoderIDs {
		enc := d.encoderByID(encID)
		if enc == nil {
			continue
		}
		for _, crtc := range d.crtcs {
			if enc.possibleCrtcs&(1<<uint(crtc.index)) != 0 {
				return crtc, enc, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("%w: no usable CRTC for connector %s",
		ErrNotFound, conn.Name())
}

// CreateBlob uploads data as a kernel property blob owned by this
// Device. The returned ID can be assigned to blob-typed properties.
func (d *Device) CreateBlob(data []byte) (uint32, error) {
	if err := d.ok(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty blob", ErrOutOfRange)
	}
	id, err := sysCreatePropBlob(d.fd(), unsafe.Pointer(&data[0]), uint32(len(data)))
	if err != nil {
		return 0, d.wrap("create blob", err)
	}
	d.blobs[id] = struct{}{}
	d.log.Trace().Uint32("blob", id).Int("len", len(data)).Msg("created property blob")
	return id, nil
}

// DestroyBlob destroys a blob previously created through this Device.
func (d *Device) DestroyBlob(id uint32) error {
	if err := d.ok(); err != nil {
		return err
	}
	if _, ok := d.blobs[id]; !ok {
		return fmt.Errorf("%w: blob %d is not owned by this device", ErrNotFound, id)
	}
	if err := sysDestroyPropBlob(d.fd(), id); err != nil {
		return d.wrap("destroy blob", err)
	}
	delete(d.blobs, id)
	return nil
}

// ReadBlob fetches the payload of a kernel blob object, e.g. the mode
// blob a CRTC currently references.
func (d *Device) ReadBlob(id uint32) ([]byte, error) {
	if err := d.ok(); err != nil {
		return nil, err
	}
	data, err := sysGetPropBlob(d.fd(), id)
	if err != nil {
		return nil, d.wrap("get blob", err)
	}
	return data, nil
}

// Close releases every kernel resource the Device still owns and
// invalidates all derived objects. Framebuffers that are still mapped
// are unmapped and destroyed, but their presence is reported as an
// error: the mapping should have been closed by its owner first.
func (d *Device) Close() error {
	if d.failure != nil && d.file == nil {
		return d.failure
	}

	var leaked int
	for _, fb := range d.fbs {
		if fb.buf != nil {
			leaked++
		}
		fb.release()
	}
	for id := range d.blobs {
		sysDestroyPropBlob(d.fd(), id)
	}

	err := d.file.Close()
	d.file = nil
	d.failure = fmt.Errorf("%w: closed", ErrDeviceFailed)
	d.fbs = nil
	d.bound = nil
	d.blobs = nil

	if leaked > 0 {
		return fmt.Errorf("kms: close: %d framebuffer mapping(s) leaked", leaked)
	}
	if err != nil {
		return fmt.Errorf("kms: close: %w", err)
	}
	return nil
}

func (d *Device) fd() uintptr {
	return d.file.Fd()
}

// ok reports the latched failure, if any. Every kernel-touching entry
// point goes through here so a dead Device fails fast and uniformly.
func (d *Device) ok() error {
	return d.failure
}

// check validates obj before use: the Device must be healthy and obj
// must have been minted by it.
func (d *Device) check(obj Object) error {
	if err := d.ok(); err != nil {
		return err
	}
	if obj.owner() != d {
		return fmt.Errorf("%w: %s %d belongs to another device",
			ErrObjectVanished, obj.ObjectType(), obj.ObjectID())
	}
	return nil
}

// wrap classifies a kernel error and, when it is transport-level,
// latches the Device as failed.
func (d *Device) wrap(op string, err error) error {
	wrapped := wrapSys(op, err)
	if isTransport(err) && d.failure == nil {
		d.failure = wrapped
		d.log.Debug().Err(wrapped).Msg("device invalidated by transport failure")
	}
	return wrapped
}

func (d *Device) encoderByID(id uint32) *Encoder {
	for _, enc := range d.encoders {
		if enc.id == id {
			return enc
		}
	}
	return nil
}

func (d *Device) crtcByID(id uint32) *Crtc {
	for _, crtc := range d.crtcs {
		if crtc.id == id {
			return crtc
		}
	}
	return nil
}
