// Copyright (C) 2014 Andreas Klauer <Andreas.Klauer@metamorpher.de>
// License: MIT

package nbd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/coreos/blkcheck"
)

// Export ties a blkcheck device to a kernel NBD device.
type Export struct {
	dev  blkcheck.Device
	nbd  *os.File
	sock *os.File // kernel end of the socket pair
	conn *os.File // our end
}

func NewExport(dev blkcheck.Device) *Export {
	return &Export{dev: dev}
}

// Path returns the kernel device the export is attached to.
func (e *Export) Path() string {
	if e.nbd == nil {
		return ""
	}
	return e.nbd.Name()
}

// Connect attaches the export to the kernel device at path, or to the first
// free /dev/nbdN when path is empty.
func (e *Export) Connect(path string) error {
	if e.dev.Alignment() > uint64(os.Getpagesize()) {
		return fmt.Errorf("%w: alignment %d exceeds the page size", blkcheck.ErrAlignment, e.dev.Alignment())
	}
	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return err
	}

	if path == "" {
		path, err = findFree()
		if err != nil {
			unix.Close(pair[0])
			unix.Close(pair[1])
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		unix.Close(pair[0])
		unix.Close(pair[1])
		return err
	}
	if err := unix.IoctlSetInt(int(f.Fd()), nbdSetSock, pair[0]); err != nil {
		f.Close()
		unix.Close(pair[0])
		unix.Close(pair[1])
		return &os.PathError{Op: "ioctl NBD_SET_SOCK", Path: path, Err: err}
	}
	e.nbd = f
	e.sock = os.NewFile(uintptr(pair[0]), "nbd-sock")
	e.conn = os.NewFile(uintptr(pair[1]), "nbd-conn")
	clog.Infof("attached %s to %s", e.dev.Path(), path)
	return nil
}

func findFree() (string, error) {
	for i := 0; ; i++ {
		dev := fmt.Sprintf("/dev/nbd%d", i)
		if _, err := os.Stat(dev); os.IsNotExist(err) {
			return "", fmt.Errorf("no free nbd device; is the nbd module loaded?")
		}
		if _, err := os.Stat(fmt.Sprintf("/sys/block/nbd%d/pid", i)); os.IsNotExist(err) {
			return dev, nil
		}
	}
}

func (e *Export) ioctl(name string, req uint, arg int) error {
	if err := unix.IoctlSetInt(int(e.nbd.Fd()), req, arg); err != nil {
		return &os.PathError{Op: "ioctl " + name, Path: e.nbd.Name(), Err: err}
	}
	return nil
}

// Serve configures the kernel device and answers its requests until ctx is
// cancelled or the kernel disconnects.
func (e *Export) Serve(ctx context.Context) error {
	if e.nbd == nil {
		return fmt.Errorf("nbd export of %s is not connected", e.dev.Path())
	}
	bs := e.dev.Alignment()
	if err := e.ioctl("NBD_SET_BLKSIZE", nbdSetBlksize, int(bs)); err != nil {
		return err
	}
	if err := e.ioctl("NBD_SET_SIZE_BLOCKS", nbdSetSizeBlocks, int(e.dev.Size()/bs)); err != nil {
		return err
	}
	if err := e.ioctl("NBD_SET_FLAGS", nbdSetFlags, flagHasFlags|flagSendFlush); err != nil {
		return err
	}

	served := make(chan error, 1)
	go func() {
		served <- serveConn(e.conn, e.dev)
	}()
	done := make(chan error, 1)
	go e.doIt(done)

	select {
	case <-ctx.Done():
		clog.Infof("disconnecting %s", e.nbd.Name())
		if err := e.ioctl("NBD_DISCONNECT", nbdDisconnect, 0); err != nil {
			// Hang up instead so NBD_DO_IT sees the connection drop.
			clog.Errorf("%v; closing the connection", err)
			e.conn.Close()
			<-done
			<-served
			return err
		}
		err := <-done
		<-served
		return err
	case err := <-done:
		return err
	}
}

func (e *Export) doIt(c chan error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// NBD_DO_IT does not return until disconnect
	err := e.ioctl("NBD_DO_IT", nbdDoIt, 0)
	if qerr := e.ioctl("NBD_CLEAR_QUE", nbdClearQue, 0); qerr != nil {
		clog.Errorf("%v", qerr)
	}
	if cerr := e.ioctl("NBD_CLEAR_SOCK", nbdClearSock, 0); err == nil {
		err = cerr
	}
	c <- err
}

// Close detaches from the kernel device. It does not close the backing
// device.
func (e *Export) Close() error {
	for _, f := range []**os.File{&e.conn, &e.sock} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
	if e.nbd == nil {
		return nil
	}
	err := e.nbd.Close()
	e.nbd = nil
	return err
}
