// Command tuntcp-echo opens a tun interface, listens on one TCP port, and
// echoes every byte it reads back to the peer that sent it. It exists to
// exercise the whole stack end to end over a real device.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"tuntcp"
	"tuntcp/internal"
	"tuntcp/tcp"
)

func main() {
	if err := run(); err != nil {
		log.Fatalln("tuntcp-echo:", err)
	}
}

func run() error {
	var (
		flagIface = flag.String("iface", "", "tun interface name, empty picks the next free tunN")
		flagPort  = flag.Uint("port", 9000, "local TCP port to listen on")
		flagDebug = flag.Bool("debug", false, "enable debug-level logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *flagDebug {
		level = slog.LevelDebug
	}
	slogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ifc, err := tuntcp.Open(*flagIface, tuntcp.WithLogger(slogger))
	if err != nil {
		return fmt.Errorf("opening tun device: %w", err)
	}
	defer ifc.Close()

	ln, err := ifc.Listen(uint16(*flagPort))
	if err != nil {
		return fmt.Errorf("listening on :%d: %w", *flagPort, err)
	}
	defer ln.Close()

	slogger.Info("listening", slog.Uint64("port", uint64(*flagPort)))
	for {
		stream, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		slogger.Info("accepted", slog.String("quad", stream.Quad().String()))
		go echo(slogger, stream)
	}
}

func echo(slogger *slog.Logger, s *tuntcp.Stream) {
	defer s.Close()
	buf := make([]byte, 4096)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			if _, werr := writeAll(s, buf[:n]); werr != nil {
				slogger.Error("write", slog.String("err", werr.Error()))
				return
			}
		}
		if err != nil {
			slogger.Error("read", slog.String("err", err.Error()))
			return
		}
		if n == 0 {
			slogger.Info("peer closed", slog.String("quad", s.Quad().String()))
			return
		}
	}
}

// writeAll retries on [tcp.ErrWouldBlock], since Stream.Write never blocks
// on a full send queue; a demo is willing to poll where a production
// caller would want a write-ready condition variable (see DESIGN.md). The
// poll interval backs off rather than retrying on a single fixed sleep.
func writeAll(s *tuntcp.Stream, buf []byte) (int, error) {
	total := 0
	backoff := internal.NewBackoff(internal.BackoffTCPConn)
	for total < len(buf) {
		n, err := s.Write(buf[total:])
		total += n
		if errors.Is(err, tcp.ErrWouldBlock) {
			backoff.Miss()
			continue
		}
		if err != nil {
			return total, err
		}
		backoff.Hit()
	}
	return total, nil
}
