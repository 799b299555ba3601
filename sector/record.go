// sector implements the self-describing 512 byte record written to every
// sector of a checked device.
package sector

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/coreos/blkcheck"
)

const (
	Size = 512 // bytes per sector record

	Magic   uint32 = 0x434653fb // "CFS"
	Version uint32 = 1

	// TextSize is the width of the timestamp and checksum text fields.
	TextSize = 68

	// HeaderSize is the checksum-covered prefix of a record.
	HeaderSize = Size - TextSize

	timeOffset     = 56
	reservedOffset = timeOffset + TextSize
	checksumOffset = HeaderSize

	// TimeLayout is the format of the local timestamp text.
	TimeLayout = "2006-01-02 15:04:05.000000000 -07:00"
)

// Config binds a record to its position on a device.
type Config struct {
	DiskSize    uint64
	ClusterSize uint64
	ClusterID   uint64
	SectorID    uint64
}

// Record is the decoded form of one sector.
type Record struct {
	Magic       uint32
	Version     uint32
	Flags       uint64
	ClusterID   uint64
	SectorID    uint64
	DiskSize    uint64
	ClusterSize uint64
	SectorSize  uint64
	LocalTime   string
	Reserved    string

	Checksum string
}

// New returns a record for the position described by cfg, stamped with the
// current local time. The checksum is not computed.
func New(cfg Config) *Record {
	return &Record{
		Magic:       Magic,
		Version:     Version,
		ClusterID:   cfg.ClusterID,
		SectorID:    cfg.SectorID,
		DiskSize:    cfg.DiskSize,
		ClusterSize: cfg.ClusterSize,
		SectorSize:  Size,
		LocalTime:   time.Now().Format(TimeLayout),
	}
}

// UpdateTime restamps the record with the current local time.
func (r *Record) UpdateTime() {
	r.LocalTime = time.Now().Format(TimeLayout)
}

// UpdateChecksum recomputes the checksum over the encoded header.
func (r *Record) UpdateChecksum() {
	var buf [HeaderSize]byte
	r.EncodeHeader(buf[:], 0)
	r.Checksum = digest(buf[:])
}

func digest(header []byte) string {
	sum := sha256.Sum256(header)
	return hex.EncodeToString(sum[:])
}

// EncodeHeader writes the checksum-covered part of the record into
// buf[pos:pos+HeaderSize]. The region is zeroed first so that the bytes on
// disk are exactly the bytes the checksum was computed over.
func (r *Record) EncodeHeader(buf []byte, pos int) {
	b := buf[pos : pos+HeaderSize]
	for i := range b {
		b[i] = 0
	}
	binary.BigEndian.PutUint32(b[0:4], r.Magic)
	binary.BigEndian.PutUint32(b[4:8], r.Version)
	binary.BigEndian.PutUint64(b[8:16], r.Flags)
	binary.BigEndian.PutUint64(b[16:24], r.ClusterID)
	binary.BigEndian.PutUint64(b[24:32], r.SectorID)
	binary.BigEndian.PutUint64(b[32:40], r.DiskSize)
	binary.BigEndian.PutUint64(b[40:48], r.ClusterSize)
	binary.BigEndian.PutUint64(b[48:56], r.SectorSize)
	copy(b[timeOffset:timeOffset+TextSize], r.LocalTime)
}

// Serialize writes the full record into buf[pos:pos+Size].
func (r *Record) Serialize(buf []byte, pos int) {
	r.EncodeHeader(buf, pos)
	tail := buf[pos+checksumOffset : pos+Size]
	for i := range tail {
		tail[i] = 0
	}
	copy(tail, r.Checksum)
}

// Deserialize decodes the record stored at buf[pos:pos+Size] into r.
func (r *Record) Deserialize(buf []byte, pos int) {
	b := buf[pos : pos+Size]
	r.Magic = binary.BigEndian.Uint32(b[0:4])
	r.Version = binary.BigEndian.Uint32(b[4:8])
	r.Flags = binary.BigEndian.Uint64(b[8:16])
	r.ClusterID = binary.BigEndian.Uint64(b[16:24])
	r.SectorID = binary.BigEndian.Uint64(b[24:32])
	r.DiskSize = binary.BigEndian.Uint64(b[32:40])
	r.ClusterSize = binary.BigEndian.Uint64(b[40:48])
	r.SectorSize = binary.BigEndian.Uint64(b[48:56])
	r.LocalTime = text(b[timeOffset : timeOffset+TextSize])
	r.Reserved = text(b[reservedOffset:checksumOffset])
	r.Checksum = text(b[checksumOffset:Size])
}

func text(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}

// Verify recomputes the checksum of the sector at buf[pos:] and compares it
// with the stored one. r is left holding the decoded sector either way, so a
// caller can inspect what a corrupted sector claims to be.
func (r *Record) Verify(buf []byte, pos int) bool {
	sum := digest(buf[pos : pos+HeaderSize])
	r.Deserialize(buf, pos)
	return r.Checksum == sum
}

// Validate is the strict form of Verify. Besides the checksum it rejects
// sectors whose magic or version is not the one this package writes.
func (r *Record) Validate(buf []byte, pos int) error {
	ok := r.Verify(buf, pos)
	switch {
	case r.Magic != Magic:
		return fmt.Errorf("%w: %#x", blkcheck.ErrBadMagic, r.Magic)
	case r.Version != Version:
		return fmt.Errorf("%w: %d", blkcheck.ErrBadVersion, r.Version)
	case !ok:
		return blkcheck.ErrChecksumMismatch
	}
	return nil
}

// Time parses the local timestamp text.
func (r *Record) Time() (time.Time, error) {
	return time.Parse(TimeLayout, r.LocalTime)
}

func (r *Record) String() string {
	return fmt.Sprintf("sector %d:%d magic %#x version %d disk %d cluster %d sector %d time %q sha256 %q",
		r.ClusterID, r.SectorID, r.Magic, r.Version, r.DiskSize, r.ClusterSize, r.SectorSize, r.LocalTime, r.Checksum)
}
