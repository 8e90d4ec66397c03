//go:build linux

// Package tunio opens and drives a Linux tun device: a point-to-point
// virtual network interface that presents raw IPv4 datagrams to userspace,
// the transport the rest of this module speaks TCP over.
package tunio

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Device is an open tun interface. Read returns one IPv4 datagram per call;
// Write accepts one IPv4 datagram per call. Device wraps an [os.File], which
// serializes concurrent Write calls, so the reader loop and the tick loop
// may both transmit through it.
type Device struct {
	f    *os.File
	name string
}

// Open creates (or attaches to) the named tun interface in IFF_TUN|IFF_NO_PI
// mode: no Ethernet framing, no per-packet info header, just raw IPv4/IPv6
// datagrams. name may be empty to let the kernel choose a name (tun0, tun1,
// ...); the chosen name is available afterwards via [Device.Name].
func Open(name string) (*Device, error) {
	f, err := os.OpenFile("/dev/net/tun", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tunio: open /dev/net/tun: %w", err)
	}
	req, err := unix.NewIfreq(name)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("tunio: ifreq: %w", err)
	}
	req.SetUint16(unix.IFF_TUN | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(int(f.Fd()), unix.TUNSETIFF, req); err != nil {
		f.Close()
		return nil, fmt.Errorf("tunio: TUNSETIFF: %w", err)
	}
	return &Device{f: f, name: req.Name()}, nil
}

// Name returns the kernel-assigned interface name, e.g. "tun0".
func (d *Device) Name() string { return d.name }

// Read blocks until one IPv4 datagram is available and copies it into buf.
func (d *Device) Read(buf []byte) (int, error) {
	return d.f.Read(buf)
}

// Write sends one IPv4 datagram.
func (d *Device) Write(buf []byte) (int, error) {
	return d.f.Write(buf)
}

// SetReadDeadline arranges for a blocked Read to return a timeout error
// after t, so a reader loop can periodically re-check for a shutdown
// request without spawning a second goroutine.
func (d *Device) SetReadDeadline(t time.Time) error {
	return d.f.SetReadDeadline(t)
}

// Close releases the tun file descriptor. A blocked Read unblocks with an
// error once the descriptor is closed from another goroutine.
func (d *Device) Close() error {
	return d.f.Close()
}
