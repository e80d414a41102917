package kms

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/NeowayLabs/kms/ioctl"
)

func TestWrapSysClassification(t *testing.T) {
	for _, tc := range []struct {
		errno unix.Errno
		want  error
	}{
		{unix.ENOENT, ErrObjectVanished},
		{unix.EPERM, ErrPermissionDenied},
		{unix.EACCES, ErrPermissionDenied},
		{unix.EOPNOTSUPP, ErrUnsupportedCapability},
		{unix.EBADF, ErrDeviceFailed},
		{unix.EIO, ErrDeviceFailed},
		{unix.ENODEV, ErrDeviceFailed},
	} {
		err := wrapSys("test op", fmt.Errorf("ioctl: %w", tc.errno))
		assert.ErrorIs(t, err, tc.want, "errno %v", tc.errno)
		assert.Equal(t, tc.errno, ioctl.Errno(err),
			"errno must stay in the wrap chain")
	}
}

func TestWrapSysUnclassified(t *testing.T) {
	err := wrapSys("test op", fmt.Errorf("ioctl: %w", unix.EINVAL))
	assert.Equal(t, unix.EINVAL, ioctl.Errno(err))
	for _, sentinel := range []error{
		ErrObjectVanished, ErrPermissionDenied,
		ErrUnsupportedCapability, ErrDeviceFailed,
	} {
		assert.NotErrorIs(t, err, sentinel)
	}
}

func TestIsTransport(t *testing.T) {
	assert.True(t, isTransport(unix.EBADF))
	assert.True(t, isTransport(fmt.Errorf("wrapped: %w", unix.ENODEV)))
	assert.False(t, isTransport(unix.EINVAL))
	assert.False(t, isTransport(errors.New("no errno here")))
}

func TestDeviceFailFast(t *testing.T) {
	d := testDevice()
	d.failure = fmt.Errorf("%w: test latch", ErrDeviceFailed)
	crtc := &Crtc{dev: d, id: 41}

	_, err := d.Properties(crtc)
	assert.ErrorIs(t, err, ErrDeviceFailed)

	txn := d.NewTransaction()
	assert.ErrorIs(t, txn.Set(crtc, "ACTIVE", 1), ErrDeviceFailed)
	assert.ErrorIs(t, txn.Commit(CommitSynchronous), ErrDeviceFailed)
}
