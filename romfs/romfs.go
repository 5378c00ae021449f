package romfs

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/src-d/go-errors.v1"
)

const (
	// Magic identifies a NeoROMFS image. It occupies the first eight
	// bytes of the header.
	Magic = "NeoROMFS"

	// HeaderSize is the encoded size of the image header: the magic,
	// four version bytes and the 32-bit total size.
	HeaderSize = len(Magic) + 4 + 4

	// MaxNameLen is the size of the name field in an entry header.
	// Shorter names are padded with NUL bytes; longer names do not fit.
	MaxNameLen = 14

	// EntryHeaderSize is the encoded size of one entry header: the name
	// field, the 32-bit file size and the packed timestamp.
	EntryHeaderSize = MaxNameLen + 4 + timestampSize
)

// Error kinds reported by this package. They all indicate malformed
// input or an invalid construction request; none of them is retryable.
var (
	ErrInvalidMagic             = errors.NewKind("invalid magic %q")
	ErrUnsupportedVersion       = errors.NewKind("unsupported format version % x")
	ErrTruncated                = errors.NewKind("truncated image: need %d bytes at offset %d, have %d")
	ErrSizeMismatch             = errors.NewKind("header declares %d bytes, buffer holds %d")
	ErrInvalidName              = errors.NewKind("invalid entry name %q")
	ErrNameTooLong              = errors.NewKind("entry name %q does not fit in %d bytes")
	ErrSizeOverflow             = errors.NewKind("size %d exceeds the 32-bit image limit")
	ErrTimestampOutOfRange      = errors.NewKind("timestamp %s %d out of range (max %d)")
	ErrTimestampUnrepresentable = errors.NewKind("year %d is outside 1970 through 2225")
	ErrEntryNotFound            = errors.NewKind("no entry named %q")
)

// Version identifies a revision of the image format.
type Version struct {
	Major, Minor, Patch uint8
}

// CurrentVersion is the only format revision this package reads and
// writes. Its wire encoding is a reserved zero byte followed by major,
// minor and patch.
var CurrentVersion = Version{Major: 1, Minor: 0, Patch: 0}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Header is the fixed preamble of every image.
type Header struct {
	Version Version

	// TotalSize is the length of the whole image in bytes, the header
	// itself included.
	TotalSize uint32
}

// DecodeHeader parses the first HeaderSize bytes of b. The declared
// total size is returned as-is: whether it matches the surrounding
// buffer is checked by NewReader, which sees the whole image.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrTruncated.New(HeaderSize, 0, len(b))
	}
	if string(b[:len(Magic)]) != Magic {
		return Header{}, ErrInvalidMagic.New(b[:len(Magic)])
	}
	if b[8] != 0 || b[9] != CurrentVersion.Major || b[10] != CurrentVersion.Minor || b[11] != CurrentVersion.Patch {
		return Header{}, ErrUnsupportedVersion.New(b[8:12])
	}
	return Header{
		Version:   Version{Major: b[9], Minor: b[10], Patch: b[11]},
		TotalSize: binary.BigEndian.Uint32(b[12:16]),
	}, nil
}

// EncodeHeader renders the header of an image totalSize bytes long,
// stamped with CurrentVersion.
func EncodeHeader(totalSize uint32) [HeaderSize]byte {
	var b [HeaderSize]byte
	copy(b[:], Magic)
	b[9] = CurrentVersion.Major
	b[10] = CurrentVersion.Minor
	b[11] = CurrentVersion.Patch
	binary.BigEndian.PutUint32(b[12:16], totalSize)
	return b
}
