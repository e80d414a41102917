package kms

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/NeowayLabs/kms/ioctl"
)

// Errors reported by this package. Kernel-reported failures keep the
// originating errno in the wrap chain, so callers can inspect it with
// ioctl.Errno after matching the sentinel with errors.Is.
var (
	// ErrNotFound reports a missing device path or kernel object.
	ErrNotFound = errors.New("kms: not found")

	// ErrPermissionDenied reports that the device node cannot be
	// opened read/write or that the process lacks mode-setting rights.
	ErrPermissionDenied = errors.New("kms: permission denied")

	// ErrUnsupportedCapability reports a device that cannot do atomic
	// mode-setting or dumb-buffer allocation.
	ErrUnsupportedCapability = errors.New("kms: unsupported capability")

	// ErrObjectVanished reports that a previously enumerated object no
	// longer exists, typically after a hot-unplug. The object is gone
	// for good; re-enumerate through a fresh Device.
	ErrObjectVanished = errors.New("kms: object vanished")

	// ErrUnknownProperty reports a property name the object does not
	// expose.
	ErrUnknownProperty = errors.New("kms: unknown property")

	// ErrTypeMismatch reports a value whose kind does not match the
	// property's type tag.
	ErrTypeMismatch = errors.New("kms: property type mismatch")

	// ErrOutOfRange reports a value outside the property's legal set.
	ErrOutOfRange = errors.New("kms: value out of range")

	// ErrBusy reports a commit that collided with another in-flight
	// commit. The whole transaction must be rebuilt and retried by the
	// caller; nothing was applied.
	ErrBusy = errors.New("kms: device busy")

	// ErrRejected reports a commit the kernel refused. Device state is
	// exactly as it was before the call.
	ErrRejected = errors.New("kms: commit rejected")

	// ErrOutOfMemory reports a failed buffer allocation.
	ErrOutOfMemory = errors.New("kms: out of memory")

	// ErrUnsupportedFormat reports a pixel format without a known
	// memory layout.
	ErrUnsupportedFormat = errors.New("kms: unsupported pixel format")

	// ErrStillInUse reports an attempt to destroy a framebuffer that
	// the last applied commit still scans out.
	ErrStillInUse = errors.New("kms: framebuffer still in use")

	// ErrSubmitted reports reuse of a transaction that already went
	// through its single commit attempt.
	ErrSubmitted = errors.New("kms: transaction already submitted")

	// ErrDeviceFailed reports a device invalidated by a transport
	// failure or by Close. All derived objects fail fast with it.
	ErrDeviceFailed = errors.New("kms: device failed")
)

// wrapSys classifies an errno from an object query or resource call.
// EBADF/EIO/ENODEV are transport failures that invalidate the Device;
// the caller is responsible for latching those via Device.fail.
func wrapSys(op string, err error) error {
	switch ioctl.Errno(err) {
	case 0:
		return fmt.Errorf("kms: %s: %w", op, err)
	case unix.ENOENT:
		return fmt.Errorf("%w: %s: %w", ErrObjectVanished, op, err)
	case unix.EPERM, unix.EACCES:
		return fmt.Errorf("%w: %s: %w", ErrPermissionDenied, op, err)
	case unix.EOPNOTSUPP:
		return fmt.Errorf("%w: %s: %w", ErrUnsupportedCapability, op, err)
	case unix.EBADF, unix.EIO, unix.ENODEV:
		return fmt.Errorf("%w: %s: %w", ErrDeviceFailed, op, err)
	default:
		return fmt.Errorf("kms: %s: %w", op, err)
	}
}

// isTransport reports whether err is fatal to the owning Device.
func isTransport(err error) bool {
	switch ioctl.Errno(err) {
	case unix.EBADF, unix.EIO, unix.ENODEV:
		return true
	}
	return false
}
