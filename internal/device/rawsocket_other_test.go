//go:build !linux || baremetal

package device

import (
	"errors"
	"testing"
)

func TestOpenRawSocketUnsupported(t *testing.T) {
	_, err := OpenRawSocket("eth0")
	if !errors.Is(err, errors.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
