package ioctl

import (
	"fmt"
	"strconv"
	"testing"

	"golang.org/x/sys/unix"
)

func getbits(n uint32) string {
	return strconv.FormatUint(uint64(n), 2)
}

func TestNewCode(t *testing.T) {
	code := NewCode(Read, 0x218, 'r', 1)
	expected := uint32(0x82187201)
	if code != expected {
		t.Errorf("Expected %s but got %s", getbits(expected),
			getbits(code))
		return
	}
}

func TestErrno(t *testing.T) {
	if got := Errno(nil); got != 0 {
		t.Errorf("nil error should carry no errno, got %d", got)
	}
	if got := Errno(unix.EBUSY); got != unix.EBUSY {
		t.Errorf("expected EBUSY, got %d", got)
	}
	wrapped := fmt.Errorf("atomic commit: %w", fmt.Errorf("ioctl: %w", unix.EINVAL))
	if got := Errno(wrapped); got != unix.EINVAL {
		t.Errorf("expected EINVAL through the chain, got %d", got)
	}
	if got := Errno(fmt.Errorf("no errno here")); got != 0 {
		t.Errorf("expected 0 for errno-less error, got %d", got)
	}
}
