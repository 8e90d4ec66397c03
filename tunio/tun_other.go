//go:build !linux

package tunio

import (
	"errors"
	"time"
)

// Device stubs out tun access on platforms other than Linux.
type Device struct{}

func Open(name string) (*Device, error) {
	return nil, errors.ErrUnsupported
}

func (d *Device) Name() string { return "" }

func (d *Device) Read(buf []byte) (int, error) {
	return -1, errors.ErrUnsupported
}

func (d *Device) Write(buf []byte) (int, error) {
	return -1, errors.ErrUnsupported
}

func (d *Device) Close() error {
	return errors.ErrUnsupported
}

func (d *Device) SetReadDeadline(t time.Time) error {
	return errors.ErrUnsupported
}
