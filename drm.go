package kms

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"unsafe"

	"github.com/NeowayLabs/kms/ioctl"
)

const driPath = "/dev/dri"

// Device capabilities, queried with DRM_IOCTL_GET_CAP.
const (
	CapDumbBuffer = iota + 1
	CapVBlankHighCRTC
	CapDumbPreferredDepth
	CapDumbPreferShadow
	CapPrime
	CapTimestampMonotonic
	CapAsyncPageFlip
	CapCursorWidth
	CapCursorHeight

	CapAddFB2Modifiers = 0x10
)

// Client capabilities, requested with DRM_IOCTL_SET_CLIENT_CAP. The
// atomic API is only exposed to clients that ask for it.
const (
	ClientCapStereo3D = iota + 1
	ClientCapUniversalPlanes
	ClientCapAtomic
	ClientCapAspectRatio
	ClientCapWritebackConnectors
)

// Version identifies the kernel driver backing a device node.
type Version struct {
	Major, Minor, Patch int32
	Name                string // driver name (eg.: i915)
	Date                string
	Desc                string
}

// CardPath returns the device path of the n-th card node.
func CardPath(n int) string {
	return fmt.Sprintf("%s/card%d", driPath, n)
}

func openNode(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		default:
			return nil, fmt.Errorf("kms: open %s: %w", path, err)
		}
	}
	return f, nil
}

// getVersion asks the driver for its version. The name/date/desc
// strings need a second call once their lengths are known. A node
// that rejects this ioctl is not a DRM device.
func getVersion(file *os.File) (Version, error) {
	var name, date, desc []byte

	version := &sysVersion{}
	err := ioctl.Do(file.Fd(), uintptr(ioctlVersion),
		uintptr(unsafe.Pointer(version)))
	if err != nil {
		return Version{}, err
	}

	if version.namelen > 0 {
		name = make([]byte, version.namelen+1)
		version.name = uintptr(unsafe.Pointer(&name[0]))
	}
	if version.datelen > 0 {
		date = make([]byte, version.datelen+1)
		version.date = uintptr(unsafe.Pointer(&date[0]))
	}
	if version.desclen > 0 {
		desc = make([]byte, version.desclen+1)
		version.desc = uintptr(unsafe.Pointer(&desc[0]))
	}

	err = ioctl.Do(file.Fd(), uintptr(ioctlVersion),
		uintptr(unsafe.Pointer(version)))
	if err != nil {
		return Version{}, err
	}

	nozero := func(r rune) bool {
		return r == 0
	}

	return Version{
		Major: version.major,
		Minor: version.minor,
		Patch: version.patch,
		Name:  string(bytes.TrimFunc(name[:version.namelen], nozero)),
		Date:  string(bytes.TrimFunc(date[:version.datelen], nozero)),
		Desc:  string(bytes.TrimFunc(desc[:version.desclen], nozero)),
	}, nil
}

func getCap(file *os.File, capability uint64) (uint64, error) {
	req := &sysCapability{cap: capability}
	err := ioctl.Do(file.Fd(), uintptr(ioctlGetCap),
		uintptr(unsafe.Pointer(req)))
	if err != nil {
		return 0, err
	}
	return req.val, nil
}

// HasDumbBuffer reports whether the driver behind file can allocate
// dumb buffers.
func HasDumbBuffer(file *os.File) bool {
	val, err := getCap(file, CapDumbBuffer)
	return err == nil && val != 0
}
