// Copyright (C) 2014 Andreas Klauer <Andreas.Klauer@metamorpher.de>
// License: MIT

// Package nbd uses the Linux NBD layer to expose a blkcheck device as a
// kernel block device, so the kernel's NBD path can be put under test.
package nbd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/coreos/pkg/capnslog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coreos/blkcheck"
)

var clog = capnslog.NewPackageLogger("github.com/coreos/blkcheck", "nbd")

const (
	// Defined in <linux/nbd.h>:
	nbdSetSock       = 43776
	nbdSetBlksize    = 43777
	nbdSetSizeBlocks = 43783
	nbdDoIt          = 43779
	nbdClearSock     = 43780
	nbdClearQue      = 43781
	nbdDisconnect    = 43784
	nbdSetFlags      = 43786

	cmdRead  = 0
	cmdWrite = 1
	cmdDisc  = 2
	cmdFlush = 3
	cmdTrim  = 4

	// The upper 16 bits of the command type carry per-request flags.
	cmdMask = 0xffff

	flagHasFlags  = 1 << 0
	flagSendFlush = 1 << 2

	requestMagic = 0x25609513
	replyMagic   = 0x67446698

	requestSize = 4 + 4 + 8 + 8 + 4
	replySize   = 4 + 4 + 8

	errnoEIO    = 5
	errnoEINVAL = 22

	// maxRequest bounds the payload of a single request.
	maxRequest = 32 << 20
)

var promRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "blkcheck_nbd_requests_total",
	Help: "Number of NBD requests served, by command",
}, []string{"cmd"})

var promRequestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "blkcheck_nbd_request_errors_total",
	Help: "Number of NBD requests answered with an error, by command",
}, []string{"cmd"})

func init() {
	prometheus.MustRegister(promRequests)
	prometheus.MustRegister(promRequestErrors)
}

type request struct {
	magic  uint32
	typus  uint32
	handle uint64
	from   uint64
	len    uint32
}

func (r *request) decode(b []byte) {
	r.magic = binary.BigEndian.Uint32(b[0:4])
	r.typus = binary.BigEndian.Uint32(b[4:8])
	r.handle = binary.BigEndian.Uint64(b[8:16])
	r.from = binary.BigEndian.Uint64(b[16:24])
	r.len = binary.BigEndian.Uint32(b[24:28])
}

func cmdString(t uint32) string {
	switch t {
	case cmdRead:
		return "read"
	case cmdWrite:
		return "write"
	case cmdDisc:
		return "disconnect"
	case cmdFlush:
		return "flush"
	case cmdTrim:
		return "trim"
	}
	return "unknown"
}

// errUnsupported answers commands the export does not advertise.
var errUnsupported = errors.New("nbd: unsupported command")

type flusher interface {
	Flush() error
}

func errno(err error) uint32 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, blkcheck.ErrAlignment),
		errors.Is(err, blkcheck.ErrOutOfBounds),
		errors.Is(err, errUnsupported):
		return errnoEINVAL
	}
	return errnoEIO
}

// serveConn answers NBD transmission-phase requests read from conn against
// dev until the peer disconnects or the connection fails.
func serveConn(conn io.ReadWriter, dev blkcheck.Device) error {
	hdr := make([]byte, requestSize)
	reply := make([]byte, replySize)
	var buf []byte
	var x request

	defer func() {
		if f, ok := dev.(flusher); ok {
			if err := f.Flush(); err != nil {
				clog.Errorf("%s: flush error: %v", dev.Path(), err)
			}
		}
	}()

	for {
		if _, err := io.ReadFull(conn, hdr); err != nil {
			return err
		}
		x.decode(hdr)
		if x.magic != requestMagic {
			return fmt.Errorf("bad request magic: %#x", x.magic)
		}
		if x.len > maxRequest {
			return fmt.Errorf("request of %d bytes exceeds the %d byte limit", x.len, maxRequest)
		}
		cmd := x.typus & cmdMask
		name := cmdString(cmd)
		promRequests.WithLabelValues(name).Inc()
		if clog.LevelAt(capnslog.TRACE) {
			clog.Tracef("%s: %s %d bytes at %d", dev.Path(), name, x.len, x.from)
		}

		if cap(buf) < int(x.len) {
			buf = make([]byte, x.len)
		}
		data := buf[:x.len]

		binary.BigEndian.PutUint32(reply[0:4], replyMagic)
		binary.BigEndian.PutUint64(reply[8:16], x.handle)

		var err error
		switch cmd {
		case cmdRead:
			_, err = dev.ReadAlignedAt(data, x.from)
		case cmdWrite:
			if _, rerr := io.ReadFull(conn, data); rerr != nil {
				return rerr
			}
			_, err = dev.WriteAlignedAt(data, x.from)
		case cmdDisc:
			clog.Debugf("%s: disconnect requested", dev.Path())
			return nil
		case cmdFlush:
			if f, ok := dev.(flusher); ok {
				err = f.Flush()
			}
		default:
			err = fmt.Errorf("%w %d", errUnsupported, cmd)
		}

		if err != nil {
			clog.Errorf("%s: %s of %d bytes at %d: %v", dev.Path(), name, x.len, x.from, err)
			promRequestErrors.WithLabelValues(name).Inc()
		}
		binary.BigEndian.PutUint32(reply[4:8], errno(err))
		if _, werr := conn.Write(reply); werr != nil {
			return werr
		}
		if cmd == cmdRead && err == nil {
			if _, werr := conn.Write(data); werr != nil {
				return werr
			}
		}
	}
}
