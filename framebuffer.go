package kms

import (
	"fmt"

	"golang.org/x/sys/unix"
	"launchpad.net/gommap"

	"github.com/NeowayLabs/kms/fourcc"
	"github.com/NeowayLabs/kms/ioctl"
)

// Framebuffer is a kernel-registered scanout source backed by a dumb
// buffer. The dumb-buffer handle and the framebuffer ID live in
// different kernel namespaces; both are held here and released
// together by Destroy.
type Framebuffer struct {
	dev *Device

	id     uint32 // mode-setting framebuffer object ID
	handle uint32 // dumb buffer handle

	width, height uint32
	pitch         uint32
	size          uint64
	format        fourcc.Format

	buf  *Buffer // non-nil while mapped
	dead bool
}

// CreateFramebuffer allocates a dumb buffer of the given size and
// format and registers it as a framebuffer object. The kernel is free
// to pick a pitch larger than width×bytes-per-pixel to satisfy the
// hardware's stride alignment; read it back from Pitch.
func (d *Device) CreateFramebuffer(width, height uint32, format fourcc.Format) (*Framebuffer, error) {
	if err := d.ok(); err != nil {
		return nil, err
	}
	bpp := fourcc.BPP(format)
	if bpp == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if width < d.minWidth || width > d.maxWidth ||
		height < d.minHeight || height > d.maxHeight {
		return nil, fmt.Errorf("%w: %dx%d outside device limits %dx%d..%dx%d",
			ErrOutOfRange, width, height,
			d.minWidth, d.minHeight, d.maxWidth, d.maxHeight)
	}

	dumb, err := sysCreateDumbBuffer(d.fd(), width, height, bpp)
	if err != nil {
		if errno := ioctl.Errno(err); errno == unix.ENOMEM || errno == unix.ENOSPC {
			return nil, fmt.Errorf("%w: %dx%d %s: %w",
				ErrOutOfMemory, width, height, format, err)
		}
		return nil, d.wrap("create dumb buffer", err)
	}

	id, err := sysAddFB2(d.fd(), dumb.width, dumb.height, uint32(format),
		dumb.handle, dumb.pitch)
	if err != nil {
		sysDestroyDumbBuffer(d.fd(), dumb.handle)
		if ioctl.Errno(err) == unix.EINVAL {
			return nil, fmt.Errorf("%w: %s rejected by driver: %w",
				ErrUnsupportedFormat, format, err)
		}
		return nil, d.wrap("add framebuffer", err)
	}

	fb := &Framebuffer{
		dev:    d,
		id:     id,
		handle: dumb.handle,
		width:  dumb.width,
		height: dumb.height,
		pitch:  dumb.pitch,
		size:   dumb.size,
		format: format,
	}
	d.fbs[id] = fb

	d.log.Debug().
		Uint32("fb", id).
		Uint32("width", fb.width).
		Uint32("height", fb.height).
		Uint32("pitch", fb.pitch).
		Str("format", format.String()).
		Msg("framebuffer created")
	return fb, nil
}

// ID returns the mode-setting framebuffer object ID, the value a
// plane's FB_ID property takes.
func (fb *Framebuffer) ID() uint32 { return fb.id }

// Width returns the width in pixels.
func (fb *Framebuffer) Width() uint32 { return fb.width }

// Height returns the height in lines.
func (fb *Framebuffer) Height() uint32 { return fb.height }

// Pitch returns the kernel-chosen stride in bytes. It can exceed
// width×bytes-per-pixel.
func (fb *Framebuffer) Pitch() uint32 { return fb.pitch }

// Size returns the allocation size in bytes (pitch×height, possibly
// rounded up).
func (fb *Framebuffer) Size() uint64 { return fb.size }

// Format returns the registered pixel format.
func (fb *Framebuffer) Format() fourcc.Format { return fb.format }

// Map exposes the pixel storage for CPU writes. The mapping stays
// valid until Buffer.Close, Destroy or Device.Close; calling Map again
// while mapped returns the same Buffer.
func (fb *Framebuffer) Map() (*Buffer, error) {
	if err := fb.dev.ok(); err != nil {
		return nil, err
	}
	if fb.dead {
		return nil, fmt.Errorf("%w: framebuffer %d destroyed", ErrObjectVanished, fb.id)
	}
	if fb.buf != nil {
		return fb.buf, nil
	}

	offset, err := sysMapDumbBuffer(fb.dev.fd(), fb.handle)
	if err != nil {
		return nil, fb.dev.wrap("map dumb buffer", err)
	}

	data, err := gommap.MapAt(0, fb.dev.fd(), int64(offset), int64(fb.size),
		gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("kms: mmap framebuffer %d: %w", fb.id, err)
	}

	fb.buf = &Buffer{fb: fb, data: data}
	return fb.buf, nil
}

// Destroy releases the framebuffer object and its dumb buffer. A live
// mapping is unmapped first, since destroying a still-mapped dumb
// buffer is undefined at the kernel boundary. It fails with
// ErrStillInUse while the last applied commit scans the framebuffer
// out; commit a replacement or unbind the plane first.
func (fb *Framebuffer) Destroy() error {
	if err := fb.dev.ok(); err != nil {
		return err
	}
	if fb.dead {
		return nil
	}
	for plane, bound := range fb.dev.bound {
		if bound == fb.id {
			return fmt.Errorf("%w: framebuffer %d is bound to plane %d",
				ErrStillInUse, fb.id, plane)
		}
	}

	if err := fb.unmap(); err != nil {
		return err
	}
	if err := sysRemoveFB(fb.dev.fd(), fb.id); err != nil {
		return fb.dev.wrap("remove framebuffer", err)
	}
	if err := sysDestroyDumbBuffer(fb.dev.fd(), fb.handle); err != nil {
		return fb.dev.wrap("destroy dumb buffer", err)
	}

	delete(fb.dev.fbs, fb.id)
	fb.dead = true
	fb.dev.log.Debug().Uint32("fb", fb.id).Msg("framebuffer destroyed")
	return nil
}

// release is the teardown path used by Device.Close: best-effort, in
// the safe order, ignoring the in-use check.
func (fb *Framebuffer) release() {
	if fb.dead {
		return
	}
	fb.unmap()
	sysRemoveFB(fb.dev.fd(), fb.id)
	sysDestroyDumbBuffer(fb.dev.fd(), fb.handle)
	fb.dead = true
}

func (fb *Framebuffer) unmap() error {
	if fb.buf == nil {
		return nil
	}
	if err := fb.buf.data.UnsafeUnmap(); err != nil {
		return fmt.Errorf("kms: munmap framebuffer %d: %w", fb.id, err)
	}
	fb.buf.data = nil
	fb.buf = nil
	return nil
}

// Buffer is the CPU-mapped pixel storage of a Framebuffer. All
// accessors are bounds-checked against the mapped region; writes never
// reach past pitch×height.
type Buffer struct {
	fb   *Framebuffer
	data gommap.MMap
}

// Data returns the full mapped region, pitch×height bytes. Row
// padding between width×bpp and pitch belongs to the buffer and is
// safe to write.
func (b *Buffer) Data() ([]byte, error) {
	if b.data == nil {
		return nil, fmt.Errorf("%w: buffer unmapped", ErrObjectVanished)
	}
	return b.data, nil
}

// Row returns the pixel storage of line y, exactly pitch bytes.
func (b *Buffer) Row(y int) ([]byte, error) {
	if b.data == nil {
		return nil, fmt.Errorf("%w: buffer unmapped", ErrObjectVanished)
	}
	if y < 0 || y >= int(b.fb.height) {
		return nil, fmt.Errorf("%w: row %d of %d", ErrOutOfRange, y, b.fb.height)
	}
	pitch := int(b.fb.pitch)
	return b.data[y*pitch : (y+1)*pitch], nil
}

// Fill writes the 32-bit little-endian pixel value v to every pixel.
// It fails with ErrTypeMismatch on formats that are not 32 bits per
// pixel.
func (b *Buffer) Fill(v uint32) error {
	if fourcc.BPP(b.fb.format) != 32 {
		return fmt.Errorf("%w: Fill requires a 32bpp format, have %s",
			ErrTypeMismatch, b.fb.format)
	}
	for y := 0; y < int(b.fb.height); y++ {
		row, err := b.Row(y)
		if err != nil {
			return err
		}
		for x := 0; x < int(b.fb.width); x++ {
			row[x*4] = byte(v)
			row[x*4+1] = byte(v >> 8)
			row[x*4+2] = byte(v >> 16)
			row[x*4+3] = byte(v >> 24)
		}
	}
	return nil
}

// Close releases the mapping. The Framebuffer itself stays registered
// and can be mapped again.
func (b *Buffer) Close() error {
	return b.fb.unmap()
}
