package kms

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeowayLabs/kms/fourcc"
)

// u64 reinterprets a signed value as the uint64 bit pattern used by
// SignedRange properties; a plain constant conversion would not compile.
func u64(v int64) uint64 { return uint64(v) }

// testDevice builds a Device that never touches the kernel: the
// property cache is pre-seeded, so transaction building stays fully
// in-memory.
func testDevice() *Device {
	return &Device{
		log:   zerolog.Nop(),
		props: make(map[uint32]map[string]*Property),
		blobs: make(map[uint32]struct{}),
		fbs:   make(map[uint32]*Framebuffer),
		bound: make(map[uint32]uint32),
	}
}

func seedProps(d *Device, obj Object, props ...*Property) {
	m := make(map[string]*Property, len(props))
	for _, p := range props {
		p.ObjectID = obj.ObjectID()
		m[p.Name] = p
	}
	d.props[obj.ObjectID()] = m
}

func testPlane(d *Device) *Plane {
	plane := &Plane{dev: d, id: 31, possibleCrtcs: 0b1}
	seedProps(d, plane,
		&Property{ID: 7, Name: "FB_ID", Type: PropertyObject, Values: []uint64{uint64(ObjectFB)}},
		&Property{ID: 8, Name: "CRTC_ID", Type: PropertyObject, Values: []uint64{uint64(ObjectCrtc)}},
		&Property{ID: 9, Name: "CRTC_X", Type: PropertySignedRange, Values: []uint64{u64(-8192), 8192}},
		&Property{ID: 10, Name: "CRTC_Y", Type: PropertySignedRange, Values: []uint64{u64(-8192), 8192}},
		&Property{ID: 11, Name: "CRTC_W", Type: PropertyRange, Values: []uint64{0, 8192}},
		&Property{ID: 12, Name: "CRTC_H", Type: PropertyRange, Values: []uint64{0, 8192}},
		&Property{ID: 13, Name: "SRC_X", Type: PropertyRange, Values: []uint64{0, 1 << 32}},
		&Property{ID: 14, Name: "SRC_Y", Type: PropertyRange, Values: []uint64{0, 1 << 32}},
		&Property{ID: 15, Name: "SRC_W", Type: PropertyRange, Values: []uint64{0, 1 << 32}},
		&Property{ID: 16, Name: "SRC_H", Type: PropertyRange, Values: []uint64{0, 1 << 32}},
		&Property{ID: 17, Name: "type", Type: PropertyEnum, Immutable: true,
			Enums: map[string]uint64{"Overlay": 0, "Primary": 1, "Cursor": 2}},
	)
	return plane
}

func testCrtc(d *Device) *Crtc {
	crtc := &Crtc{dev: d, id: 41, index: 0}
	seedProps(d, crtc,
		&Property{ID: 20, Name: "ACTIVE", Type: PropertyRange, Values: []uint64{0, 1}},
		&Property{ID: 21, Name: "MODE_ID", Type: PropertyBlob},
	)
	return crtc
}

func TestTransactionValidatesAtSet(t *testing.T) {
	d := testDevice()
	plane := testPlane(d)
	crtc := testCrtc(d)

	txn := d.NewTransaction()

	require.NoError(t, txn.Set(crtc, "ACTIVE", 1))
	assert.ErrorIs(t, txn.Set(crtc, "ACTIVE", 2), ErrOutOfRange)
	assert.ErrorIs(t, txn.Set(crtc, "GAMMA_LUT", 1), ErrUnknownProperty)
	assert.ErrorIs(t, txn.Set(plane, "type", 1), ErrTypeMismatch)

	// Failed assignments must leave nothing behind.
	assert.NotContains(t, txn.pending[plane.id], uint32(17))
	assert.Len(t, txn.pending[crtc.id], 1)
}

func TestTransactionLastWriteWins(t *testing.T) {
	d := testDevice()
	plane := testPlane(d)

	txn := d.NewTransaction()
	require.NoError(t, txn.Set(plane, "CRTC_W", 640))
	require.NoError(t, txn.Set(plane, "CRTC_W", 1920))

	assert.Equal(t, uint64(1920), txn.pending[plane.id][11])
	assert.Len(t, txn.pending[plane.id], 1)
}

func TestTransactionRejectsForeignObject(t *testing.T) {
	d := testDevice()
	other := testDevice()
	plane := testPlane(other)

	txn := d.NewTransaction()
	assert.ErrorIs(t, txn.Set(plane, "CRTC_W", 10), ErrObjectVanished)
}

func TestTransactionConsumed(t *testing.T) {
	d := testDevice()
	crtc := testCrtc(d)

	txn := d.NewTransaction()
	require.NoError(t, txn.SetActive(crtc, true))

	txn.state = txnApplied
	assert.ErrorIs(t, txn.Set(crtc, "ACTIVE", 0), ErrSubmitted)
	assert.ErrorIs(t, txn.Commit(CommitSynchronous), ErrSubmitted)
}

func TestSetSignedRequiresSignedRange(t *testing.T) {
	d := testDevice()
	plane := testPlane(d)

	txn := d.NewTransaction()
	require.NoError(t, txn.SetSigned(plane, "CRTC_X", -64))
	assert.ErrorIs(t, txn.SetSigned(plane, "CRTC_W", 10), ErrTypeMismatch)
	assert.ErrorIs(t, txn.SetSigned(plane, "CRTC_X", -9000), ErrOutOfRange)
}

func TestSetEnumByName(t *testing.T) {
	d := testDevice()
	crtc := testCrtc(d)
	seedProps(d, crtc,
		&Property{ID: 22, Name: "PICTURE_ASPECT_RATIO", Type: PropertyEnum,
			Enums: map[string]uint64{"Automatic": 0, "4:3": 1, "16:9": 2}},
	)

	txn := d.NewTransaction()
	require.NoError(t, txn.SetEnum(crtc, "PICTURE_ASPECT_RATIO", "16:9"))
	assert.Equal(t, uint64(2), txn.pending[crtc.id][22])

	assert.ErrorIs(t, txn.SetEnum(crtc, "PICTURE_ASPECT_RATIO", "21:9"), ErrOutOfRange)
}

func TestSetCrtcForPlaneChecksCompatibility(t *testing.T) {
	d := testDevice()
	plane := testPlane(d) // possible CRTC mask 0b1
	near := &Crtc{dev: d, id: 41, index: 0}
	far := &Crtc{dev: d, id: 42, index: 1}

	txn := d.NewTransaction()
	require.NoError(t, txn.SetCrtcForPlane(plane, near))
	assert.ErrorIs(t, txn.SetCrtcForPlane(plane, far), ErrOutOfRange)

	require.NoError(t, txn.SetCrtcForPlane(plane, nil))
	assert.Equal(t, uint64(0), txn.pending[plane.id][8])
}

func TestSetFramebufferChecksFormatAndLiveness(t *testing.T) {
	d := testDevice()
	plane := testPlane(d)
	plane.formats = []fourcc.Format{fourcc.XRGB8888}

	fb := &Framebuffer{dev: d, id: 91, format: fourcc.XRGB8888}
	txn := d.NewTransaction()
	require.NoError(t, txn.SetFramebuffer(plane, fb))
	assert.Equal(t, uint64(91), txn.pending[plane.id][7])
	assert.Equal(t, uint32(91), txn.planeFB[plane.id])

	bad := &Framebuffer{dev: d, id: 92, format: fourcc.RGB565}
	assert.ErrorIs(t, txn.SetFramebuffer(plane, bad), ErrUnsupportedFormat)

	dead := &Framebuffer{dev: d, id: 93, format: fourcc.XRGB8888, dead: true}
	assert.ErrorIs(t, txn.SetFramebuffer(plane, dead), ErrObjectVanished)

	require.NoError(t, txn.SetFramebuffer(plane, nil))
	assert.Equal(t, uint32(0), txn.planeFB[plane.id])
}

func TestMarshalAtomic(t *testing.T) {
	pending := map[uint32]map[uint32]uint64{
		40: {2: 9, 1: 8},
		10: {5: 1},
	}

	objs, counts, props, values := marshalAtomic(pending)

	assert.Equal(t, []uint32{10, 40}, objs)
	assert.Equal(t, []uint32{1, 2}, counts)
	assert.Equal(t, []uint32{5, 1, 2}, props)
	assert.Equal(t, []uint64{1, 8, 9}, values)
}

func TestMarshalAtomicEmpty(t *testing.T) {
	objs, counts, props, values := marshalAtomic(nil)
	assert.Empty(t, objs)
	assert.Empty(t, counts)
	assert.Empty(t, props)
	assert.Empty(t, values)
}

func TestFixed16(t *testing.T) {
	assert.Equal(t, uint64(0), Fixed16(0))
	assert.Equal(t, uint64(0), Fixed16(-3))
	assert.Equal(t, uint64(0x10000), Fixed16(1))
	assert.Equal(t, uint64(0x18000), Fixed16(1.5))
	assert.Equal(t, uint64(0x4000), Fixed16(0.25))
	assert.Equal(t, uint64(1920<<16), Fixed16(1920))
}
