package nbd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/coreos/blkcheck"
	"github.com/coreos/blkcheck/storage"
)

func openTemp(t *testing.T, size uint64) blkcheck.Device {
	name := t.Name()
	if err := storage.CreateTempDevice(name, size); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { storage.DestroyTempDevice(name) })
	dev, err := blkcheck.OpenDevice(blkcheck.Config{DevicePath: name, Driver: "temp"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

type client struct {
	t    *testing.T
	conn net.Conn
}

func (c *client) send(typus uint32, handle, from uint64, length uint32, payload []byte) {
	req := make([]byte, requestSize)
	binary.BigEndian.PutUint32(req[0:4], requestMagic)
	binary.BigEndian.PutUint32(req[4:8], typus)
	binary.BigEndian.PutUint64(req[8:16], handle)
	binary.BigEndian.PutUint64(req[16:24], from)
	binary.BigEndian.PutUint32(req[24:28], length)
	if _, err := c.conn.Write(append(req, payload...)); err != nil {
		c.t.Fatal(err)
	}
}

func (c *client) reply(handle uint64) uint32 {
	rep := make([]byte, replySize)
	if _, err := io.ReadFull(c.conn, rep); err != nil {
		c.t.Fatal(err)
	}
	if m := binary.BigEndian.Uint32(rep[0:4]); m != replyMagic {
		c.t.Fatalf("bad reply magic %#x", m)
	}
	if h := binary.BigEndian.Uint64(rep[8:16]); h != handle {
		c.t.Fatalf("expected handle %d, got %d", handle, h)
	}
	return binary.BigEndian.Uint32(rep[4:8])
}

func serve(t *testing.T, dev blkcheck.Device) (*client, chan error) {
	server, conn := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- serveConn(server, dev)
		server.Close()
	}()
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}, done
}

func TestServeReadWrite(t *testing.T) {
	dev := openTemp(t, 1<<20)
	c, done := serve(t, dev)

	data := bytes.Repeat([]byte("blkcheck"), 1024)
	c.send(cmdWrite, 1, 8192, uint32(len(data)), data)
	if e := c.reply(1); e != 0 {
		t.Fatalf("write failed with errno %d", e)
	}

	c.send(cmdRead, 2, 8192, uint32(len(data)), nil)
	if e := c.reply(2); e != 0 {
		t.Fatalf("read failed with errno %d", e)
	}
	got := make([]byte, len(data))
	if _, err := io.ReadFull(c.conn, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("read back different data")
	}

	// The write reached the device itself.
	direct := make([]byte, len(data))
	if _, err := dev.ReadAlignedAt(direct, 8192); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(direct, data) {
		t.Error("device holds different data")
	}

	c.send(cmdFlush, 3, 0, 0, nil)
	if e := c.reply(3); e != 0 {
		t.Errorf("flush failed with errno %d", e)
	}

	c.send(cmdDisc, 4, 0, 0, nil)
	if err := <-done; err != nil {
		t.Errorf("expected a clean disconnect, got %v", err)
	}
}

// failingDevice fails every aligned read the way a dying disk does.
type failingDevice struct {
	blkcheck.Device
}

func (failingDevice) ReadAlignedAt(buf []byte, off uint64) (int, error) {
	return 0, fmt.Errorf("%w: read %d bytes at %d: input/output error", blkcheck.ErrIO, len(buf), off)
}

func TestServeDeviceFailure(t *testing.T) {
	c, done := serve(t, failingDevice{openTemp(t, 1<<20)})

	c.send(cmdRead, 1, 0, 4096, nil)
	if e := c.reply(1); e != errnoEIO {
		t.Errorf("failed read: expected EIO, got %d", e)
	}
	// Bounds are still checked by the device itself.
	data := make([]byte, 4096)
	c.send(cmdWrite, 2, 1<<20, 4096, data)
	if e := c.reply(2); e != errnoEINVAL {
		t.Errorf("write past the end: expected EINVAL, got %d", e)
	}

	c.send(cmdDisc, 3, 0, 0, nil)
	if err := <-done; err != nil {
		t.Errorf("expected a clean disconnect, got %v", err)
	}
}

func TestErrno(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want uint32
	}{
		{nil, 0},
		{fmt.Errorf("%w: 100 bytes", blkcheck.ErrAlignment), errnoEINVAL},
		{fmt.Errorf("%w: past the end", blkcheck.ErrOutOfBounds), errnoEINVAL},
		{fmt.Errorf("%w 4", errUnsupported), errnoEINVAL},
		{fmt.Errorf("%w: input/output error", blkcheck.ErrIO), errnoEIO},
		{blkcheck.ErrClosed, errnoEIO},
	} {
		if got := errno(tt.err); got != tt.want {
			t.Errorf("errno(%v): expected %d, got %d", tt.err, tt.want, got)
		}
	}
}

func TestServeErrors(t *testing.T) {
	dev := openTemp(t, 1<<20)
	c, done := serve(t, dev)

	// Misaligned read.
	c.send(cmdRead, 1, 100, 4096, nil)
	if e := c.reply(1); e != errnoEINVAL {
		t.Errorf("misaligned read: expected EINVAL, got %d", e)
	}
	// Write past the end.
	data := make([]byte, 4096)
	c.send(cmdWrite, 2, 1<<20, 4096, data)
	if e := c.reply(2); e != errnoEINVAL {
		t.Errorf("write past the end: expected EINVAL, got %d", e)
	}
	// Unadvertised command.
	c.send(cmdTrim, 3, 0, 4096, nil)
	if e := c.reply(3); e != errnoEINVAL {
		t.Errorf("trim: expected EINVAL, got %d", e)
	}

	// A bad magic ends the session.
	bad := make([]byte, requestSize)
	if _, err := c.conn.Write(bad); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err == nil {
		t.Error("expected an error for a bad request magic")
	}
}

func TestCommandFlags(t *testing.T) {
	dev := openTemp(t, 1<<20)
	c, _ := serve(t, dev)

	// A FUA write carries a flag in the upper half of the type.
	data := bytes.Repeat([]byte{7}, 4096)
	c.send(cmdWrite|1<<16, 1, 0, 4096, data)
	if e := c.reply(1); e != 0 {
		t.Errorf("flagged write failed with errno %d", e)
	}
	c.send(cmdDisc, 2, 0, 0, nil)
}
