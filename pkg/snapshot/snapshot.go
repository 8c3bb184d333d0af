// Package snapshot frames sealed regions for disk or network transport.
// A frame carries a magic, format version, flags, a checkpoint ID, the
// uncompressed region length, the payload length, the (optionally
// zstd-compressed) region bytes and a trailing CRC32. The region itself stays opaque: framing
// knows nothing about the types sealed inside it.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/rawbytedev/relo/arena"
	"github.com/rawbytedev/relo/internal/common"
)

const (
	// Magic opens every frame.
	Magic = uint32(0x504E5352) // "RSNP" little-endian

	// Version of the frame layout.
	Version = uint16(1)

	// HeaderSize is the fixed prefix before the payload.
	HeaderSize = 32

	// FlagZstd marks a zstd-compressed payload.
	FlagZstd = uint16(1 << 0)
)

var (
	ErrBadMagic       = errors.New("snapshot: bad magic")
	ErrUnknownVersion = errors.New("snapshot: unknown version")
	ErrBadChecksum    = errors.New("snapshot: checksum mismatch")
)

// Header describes one frame.
type Header struct {
	Version uint16
	Flags   uint16
	ID      uuid.UUID // checkpoint identity, correlates files and logs
	RawLen  uint32    // uncompressed region length
}

// Options controls Write.
type Options struct {
	// Compress runs the region through zstd before framing.
	Compress bool
	// ID labels the checkpoint; the zero UUID draws a random one.
	ID uuid.UUID
}

// Write frames region into w and returns the header it wrote.
func Write(w io.Writer, region []byte, opts Options) (Header, error) {
	h := Header{
		Version: Version,
		ID:      opts.ID,
		RawLen:  uint32(len(region)),
	}
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}

	payload := region
	if opts.Compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return Header{}, err
		}
		payload = enc.EncodeAll(region, nil)
		enc.Close()
		h.Flags |= FlagZstd
	}

	hdr := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:], Magic)
	binary.LittleEndian.PutUint16(hdr[4:], h.Version)
	binary.LittleEndian.PutUint16(hdr[6:], h.Flags)
	copy(hdr[8:24], h.ID[:])
	binary.LittleEndian.PutUint32(hdr[24:], h.RawLen)
	binary.LittleEndian.PutUint32(hdr[28:], uint32(len(payload)))

	crc := crc32.ChecksumIEEE(hdr[4:])
	crc = crc32.Update(crc, crc32.IEEETable, payload)

	if _, err := w.Write(hdr); err != nil {
		return Header{}, err
	}
	if _, err := w.Write(payload); err != nil {
		return Header{}, err
	}
	var tail [4]byte
	binary.LittleEndian.PutUint32(tail[:], crc)
	if _, err := w.Write(tail[:]); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Read parses one frame from r. The returned region is freshly allocated
// and aligned for relo.UnsealFromBuffer.
func Read(r io.Reader) (Header, []byte, error) {
	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Header{}, nil, err
	}
	if binary.LittleEndian.Uint32(hdr[0:]) != Magic {
		return Header{}, nil, ErrBadMagic
	}
	h := Header{
		Version: binary.LittleEndian.Uint16(hdr[4:]),
		Flags:   binary.LittleEndian.Uint16(hdr[6:]),
		RawLen:  binary.LittleEndian.Uint32(hdr[24:]),
	}
	copy(h.ID[:], hdr[8:24])
	if h.Version != Version {
		return Header{}, nil, fmt.Errorf("%w: %d", ErrUnknownVersion, h.Version)
	}
	payloadLen := binary.LittleEndian.Uint32(hdr[28:])

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Header{}, nil, err
	}
	var tail [4]byte
	if _, err := io.ReadFull(r, tail[:]); err != nil {
		return Header{}, nil, err
	}
	crc := crc32.ChecksumIEEE(hdr[4:])
	crc = crc32.Update(crc, crc32.IEEETable, payload)
	if crc != binary.LittleEndian.Uint32(tail[:]) {
		return Header{}, nil, ErrBadChecksum
	}

	region := arena.AlignedBytes(int(h.RawLen), common.MaxAlign)
	if h.Flags&FlagZstd != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return Header{}, nil, err
		}
		out, err := dec.DecodeAll(payload, region[:0])
		dec.Close()
		if err != nil {
			return Header{}, nil, err
		}
		if len(out) != int(h.RawLen) {
			return Header{}, nil, ErrBadChecksum
		}
		// DecodeAll appends in place when capacity suffices; it does for
		// a correct RawLen, keeping the region aligned.
		region = out
	} else {
		if int(payloadLen) != int(h.RawLen) {
			return Header{}, nil, ErrBadChecksum
		}
		copy(region, payload)
	}
	return h, region, nil
}
