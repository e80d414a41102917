package kms_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeowayLabs/kms"
	"github.com/NeowayLabs/kms/fourcc"
)

// openTestDevice opens card0 or skips: these tests need real hardware
// (or vkms) and enough privileges to talk to it.
func openTestDevice(t *testing.T) *kms.Device {
	t.Helper()
	dev, err := kms.OpenCard(0)
	if err != nil {
		if errors.Is(err, kms.ErrNotFound) ||
			errors.Is(err, kms.ErrPermissionDenied) ||
			errors.Is(err, kms.ErrUnsupportedCapability) {
			t.Skipf("no usable DRM device: %v", err)
		}
		t.Fatal(err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestOpenCard(t *testing.T) {
	dev := openTestDevice(t)

	v := dev.Version()
	require.NotEmpty(t, v.Name)
	t.Logf("driver: %s %d.%d.%d (%s)", v.Name, v.Major, v.Minor, v.Patch, v.Desc)
}

func TestEnumerate(t *testing.T) {
	dev := openTestDevice(t)

	require.NotEmpty(t, dev.Crtcs())
	require.NotEmpty(t, dev.Connectors())
	require.NotEmpty(t, dev.Planes())

	t.Logf("connectors: %d", len(dev.Connectors()))
	t.Logf("encoders: %d", len(dev.Encoders()))
	t.Logf("crtcs: %d", len(dev.Crtcs()))
	t.Logf("planes: %d", len(dev.Planes()))
}

func TestConnectorStatus(t *testing.T) {
	dev := openTestDevice(t)

	for _, conn := range dev.Connectors() {
		status, err := conn.Status()
		require.NoError(t, err)
		t.Logf("%s: %s", conn.Name(), status)

		if status != kms.StatusConnected {
			continue
		}
		mode, err := conn.PreferredMode()
		require.NoError(t, err)
		t.Logf("%s preferred mode: %s", conn.Name(), mode)

		crtc, enc, err := dev.PipeFor(conn)
		require.NoError(t, err)
		t.Logf("%s pipe: %s via %s", conn.Name(), crtc, enc)
	}
}

func TestCrtcProperties(t *testing.T) {
	dev := openTestDevice(t)
	crtc := dev.Crtcs()[0]

	props, err := dev.Properties(crtc)
	require.NoError(t, err)
	require.NotEmpty(t, props)

	active, err := dev.Property(crtc, "ACTIVE")
	require.NoError(t, err)
	assert.Equal(t, kms.PropertyRange, active.Type)

	// Resolution is cached: the same descriptor comes back.
	again, err := dev.Property(crtc, "ACTIVE")
	require.NoError(t, err)
	assert.Same(t, active, again)

	v, err := dev.PropertyValue(crtc, "ACTIVE")
	require.NoError(t, err)
	assert.LessOrEqual(t, v, uint64(1))

	_, err = dev.Property(crtc, "NO_SUCH_PROPERTY")
	assert.ErrorIs(t, err, kms.ErrUnknownProperty)
}

func TestPlaneTypes(t *testing.T) {
	dev := openTestDevice(t)

	primaries := 0
	for _, plane := range dev.Planes() {
		typ, err := plane.Type()
		require.NoError(t, err)
		if typ == kms.PlanePrimary {
			primaries++
		}
		t.Logf("%s: formats=%d", plane, len(plane.Formats()))
	}
	assert.NotZero(t, primaries, "every display driver exposes a primary plane")
}

func TestFramebufferLifecycle(t *testing.T) {
	dev := openTestDevice(t)

	fb, err := dev.CreateFramebuffer(640, 480, fourcc.XRGB8888)
	require.NoError(t, err)

	assert.Equal(t, uint32(640), fb.Width())
	assert.Equal(t, uint32(480), fb.Height())
	assert.GreaterOrEqual(t, fb.Pitch(), uint32(640*4))

	buf, err := fb.Map()
	require.NoError(t, err)

	again, err := fb.Map()
	require.NoError(t, err)
	assert.Same(t, buf, again)

	require.NoError(t, buf.Fill(0x00336699))

	row, err := buf.Row(0)
	require.NoError(t, err)
	assert.Len(t, row, int(fb.Pitch()))
	assert.Equal(t, byte(0x99), row[0])

	_, err = buf.Row(-1)
	assert.ErrorIs(t, err, kms.ErrOutOfRange)
	_, err = buf.Row(480)
	assert.ErrorIs(t, err, kms.ErrOutOfRange)

	require.NoError(t, buf.Close())
	_, err = buf.Data()
	assert.ErrorIs(t, err, kms.ErrObjectVanished)

	require.NoError(t, fb.Destroy())
	require.NoError(t, fb.Destroy(), "destroying twice is a no-op")

	_, err = fb.Map()
	assert.ErrorIs(t, err, kms.ErrObjectVanished)
}

func TestFramebufferBadSize(t *testing.T) {
	dev := openTestDevice(t)

	_, err := dev.CreateFramebuffer(1<<20, 1<<20, fourcc.XRGB8888)
	assert.ErrorIs(t, err, kms.ErrOutOfRange)
}

func TestAtomicTestOnlyEmpty(t *testing.T) {
	dev := openTestDevice(t)

	// An empty set is trivially consistent; the kernel accepts it
	// without touching anything.
	txn := dev.NewTransaction()
	require.NoError(t, txn.Commit(kms.CommitTestOnly))

	assert.ErrorIs(t, txn.Commit(kms.CommitTestOnly), kms.ErrSubmitted)
}

func TestBlobRoundTrip(t *testing.T) {
	dev := openTestDevice(t)

	payload := []byte("kms blob payload")
	id, err := dev.CreateBlob(payload)
	require.NoError(t, err)

	back, err := dev.ReadBlob(id)
	require.NoError(t, err)
	assert.Equal(t, payload, back)

	require.NoError(t, dev.DestroyBlob(id))
	assert.ErrorIs(t, dev.DestroyBlob(id), kms.ErrNotFound)
}

func TestCloseInvalidates(t *testing.T) {
	dev, err := kms.OpenCard(0)
	if err != nil {
		t.Skipf("no usable DRM device: %v", err)
	}
	conns := dev.Connectors()
	require.NotEmpty(t, conns)
	conn := conns[0]

	require.NoError(t, dev.Close())

	_, err = conn.Status()
	assert.ErrorIs(t, err, kms.ErrDeviceFailed)

	_, err = dev.CreateFramebuffer(640, 480, fourcc.XRGB8888)
	assert.ErrorIs(t, err, kms.ErrDeviceFailed)
}
