package romfs

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode/utf8"
)

// EntryHeader is the metadata stored ahead of each packed file.
type EntryHeader struct {
	// Name of the packed file: at most MaxNameLen bytes of UTF-8,
	// without NUL bytes.
	Name string

	// Size of the file contents in bytes, the entry header excluded.
	Size uint32

	// ModTime is the modification time recorded for the file.
	ModTime Timestamp
}

// Entry is one packed file: its header plus a view of its contents.
//
// Content aliases the buffer the entry was parsed from. It stays valid
// only as long as that buffer does and must not be modified.
type Entry struct {
	EntryHeader
	Content []byte
}

// decodeEntryHeader parses the entry header starting at off in data and
// returns it together with the offset of the first content byte. The
// name is cut at its first NUL byte; only the part before it must be
// valid UTF-8.
func decodeEntryHeader(data []byte, off int) (EntryHeader, int, error) {
	if len(data)-off < EntryHeaderSize {
		return EntryHeader{}, 0, ErrTruncated.New(EntryHeaderSize, off, len(data)-off)
	}
	b := data[off : off+EntryHeaderSize]
	name := b[:MaxNameLen]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	if !utf8.Valid(name) {
		return EntryHeader{}, 0, ErrInvalidName.New(name)
	}
	ts, err := decodeTimestamp(b[MaxNameLen+4:])
	if err != nil {
		return EntryHeader{}, 0, err
	}
	return EntryHeader{
		Name:    string(name),
		Size:    binary.BigEndian.Uint32(b[MaxNameLen : MaxNameLen+4]),
		ModTime: ts,
	}, off + EntryHeaderSize, nil
}

// checkName reports whether name can be stored in an entry header. The
// length limit applies to the UTF-8 encoding, not the rune count.
func checkName(name string) error {
	if strings.IndexByte(name, 0) >= 0 {
		return ErrInvalidName.New(name)
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong.New(name, MaxNameLen)
	}
	return nil
}

// appendEntryHeader appends the canonical encoding of an entry header
// to dst. On failure dst is returned unchanged.
func appendEntryHeader(dst []byte, name string, size uint32, ts Timestamp) ([]byte, error) {
	if err := checkName(name); err != nil {
		return dst, err
	}
	if err := ts.validate(); err != nil {
		return dst, err
	}
	var b [EntryHeaderSize]byte
	copy(b[:MaxNameLen], name)
	binary.BigEndian.PutUint32(b[MaxNameLen:MaxNameLen+4], size)
	putTimestamp(b[MaxNameLen+4:], ts)
	return append(dst, b[:]...), nil
}
