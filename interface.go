package tuntcp

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"tuntcp/tcp"
	"tuntcp/tunio"
)

// device is the minimal surface an Interface needs from a tun handle; the
// real implementation is [tunio.Device], tests substitute a net.Pipe-backed
// fake so the Demultiplexer and Blocking Adapter can be exercised without a
// real /dev/net/tun.
type device interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Close() error
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

// Interface owns the tun device and the Connection Table, and runs the two
// background goroutines described in the concurrency model: a reader loop
// running the Demultiplexer, and a tick loop driving retransmission.
type Interface struct {
	dev   device
	table *table
	cfg   Config
	wg    sync.WaitGroup
}

// Open brings up the named tun interface (empty name lets the kernel
// choose one) and starts the reader and tick loops. Close must be called
// to release the device and join both goroutines.
func Open(name string, opts ...Option) (*Interface, error) {
	dev, err := tunio.Open(name)
	if err != nil {
		return nil, err
	}
	return newInterface(dev, NewConfig(opts...)), nil
}

func newInterface(dev device, cfg Config) *Interface {
	ifc := &Interface{dev: dev, table: newTable(), cfg: cfg}
	ifc.wg.Add(2)
	go ifc.readLoop()
	go ifc.tickLoop()
	return ifc
}

// Close requests shutdown: it sets the terminate flag (waking every blocked
// Accept/Read), closes the underlying device (unblocking a Read syscall in
// the reader loop), and waits for both background goroutines to exit.
func (ifc *Interface) Close() error {
	ifc.table.shutdown()
	err := ifc.dev.Close()
	ifc.wg.Wait()
	return err
}

func (ifc *Interface) log() logger { return logger{log: ifc.cfg.logger} }

func (ifc *Interface) readLoop() {
	defer ifc.wg.Done()
	buf := make([]byte, maxFrame)
	dl, hasDeadline := ifc.dev.(readDeadliner)
	for {
		if hasDeadline && ifc.cfg.recvTimeout > 0 {
			dl.SetReadDeadline(time.Now().Add(ifc.cfg.recvTimeout))
		}
		n, err := ifc.dev.Read(buf)
		if err != nil {
			if isTimeout(err) {
				ifc.table.mu.Lock()
				term := ifc.table.terminate
				ifc.table.mu.Unlock()
				if term {
					return
				}
				continue
			}
			ifc.log().error("tuntcp: reader loop exiting", slog.String("err", err.Error()))
			return
		}
		ifc.demux(buf[:n])
	}
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// demux implements the Demultiplexer: parse, route to an existing
// connection or accept a new one on a listening port, and (after the lock
// is released) wake whichever condition variables a new availability or a
// newly queued Quad requires.
func (ifc *Interface) demux(pkt []byte) {
	quad, seg, payload, ok := decodeSegment(pkt)
	if !ok {
		return
	}
	now := time.Now()
	t := ifc.table

	t.mu.Lock()
	conn, existing := t.connections[quad]
	var outs []tcp.Outbound
	var avail tcp.Availability
	accepted := false
	switch {
	case existing:
		outs, avail = conn.OnPacket(now, seg, payload)
	case t.listeners[quad.LocalPort] && seg.Flags.HasAny(tcp.FlagSYN):
		var out tcp.Outbound
		conn, out = tcp.Accept(now, quad, tcp.Value(0), seg.SEQ, seg.WND, ifc.cfg.logger)
		t.connections[quad] = conn
		t.pending[quad.LocalPort] = append(t.pending[quad.LocalPort], quad)
		outs = []tcp.Outbound{out}
		accepted = true
		ifc.log().quad(slog.LevelDebug, "tuntcp: accepted", quad)
	default:
		t.mu.Unlock()
		return // unknown 4-tuple, no listener on destination port: silently dropped
	}
	for _, o := range outs {
		ifc.transmit(quad, o)
	}
	t.mu.Unlock()

	if avail&tcp.AvailRead != 0 {
		t.readCond.Broadcast()
	}
	if accepted {
		t.pendingCond.Broadcast()
	}
}

type outJob struct {
	quad tcp.Quad
	out  tcp.Outbound
}

// tickLoop drives every open connection's timer tick at cfg.tickInterval,
// reaping connections that have both been locally closed and reached
// TIME-WAIT (approximating the "Stream dropped or TIME-WAIT expires"
// lifecycle from the data model; see DESIGN.md).
func (ifc *Interface) tickLoop() {
	defer ifc.wg.Done()
	ticker := time.NewTicker(ifc.cfg.tickInterval)
	defer ticker.Stop()
	for range ticker.C {
		t := ifc.table
		t.mu.Lock()
		if t.terminate {
			t.mu.Unlock()
			return
		}
		now := time.Now()
		var jobs []outJob
		var reap []tcp.Quad
		for quad, c := range t.connections {
			for _, o := range c.OnTick(now) {
				jobs = append(jobs, outJob{quad, o})
			}
			if c.Closed() && c.State() == tcp.StateTimeWait {
				reap = append(reap, quad)
			}
		}
		for _, q := range reap {
			delete(t.connections, q)
		}
		t.mu.Unlock()

		for _, j := range jobs {
			ifc.transmit(j.quad, j.out)
		}
	}
}

func (ifc *Interface) transmit(quad tcp.Quad, out tcp.Outbound) {
	buf := make([]byte, maxFrame)
	n, err := encodeSegment(buf, quad, out.Segment, out.Payload)
	if err != nil {
		ifc.log().error("tuntcp: encode segment", slog.String("quad", quad.String()), slog.String("err", err.Error()))
		return
	}
	if _, err := ifc.dev.Write(buf[:n]); err != nil {
		ifc.log().error("tuntcp: tun write", slog.String("err", err.Error()))
	}
}
