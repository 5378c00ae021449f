package romfs

import (
	"math"

	"gopkg.in/src-d/go-errors.v1"
)

// File is one input to Build: a name, a modification time and the raw
// contents to pack.
type File struct {
	Name    string
	ModTime Timestamp
	Content []byte
}

// validate exercises the encode-time rules for one input file.
func (f File) validate() error {
	if err := checkName(f.Name); err != nil {
		return err
	}
	if err := f.ModTime.validate(); err != nil {
		return err
	}
	if int64(len(f.Content)) > math.MaxUint32 {
		return ErrSizeOverflow.New(int64(len(f.Content)))
	}
	return nil
}

// SizeRequired returns the number of bytes Build will produce for
// files: the image header plus one entry header and the contents per
// file. The result exceeding math.MaxUint32 means the image cannot be
// encoded.
func SizeRequired(files []File) int64 {
	total := int64(HeaderSize)
	for _, f := range files {
		total += int64(EntryHeaderSize) + int64(len(f.Content))
	}
	return total
}

// errEntry gives validation failures the input position they stem from.
var errEntry = errors.NewKind("entry %d (%q)")

// Build assembles an image from files, preserving their order.
// Duplicate names are not rejected: the format permits them and leaves
// uniqueness to its producers.
//
// Build is all-or-nothing. Every input is validated before the first
// output byte is written, so a failed Build never yields a partial
// image.
func Build(files []File) ([]byte, error) {
	for i, f := range files {
		if err := f.validate(); err != nil {
			return nil, errEntry.Wrap(err, i, f.Name)
		}
	}
	total := SizeRequired(files)
	if total > math.MaxUint32 {
		return nil, ErrSizeOverflow.New(total)
	}
	out := make([]byte, 0, total)
	hdr := EncodeHeader(uint32(total))
	out = append(out, hdr[:]...)
	for _, f := range files {
		// cannot fail, the loop above validated every file
		out, _ = appendEntryHeader(out, f.Name, uint32(len(f.Content)), f.ModTime)
		out = append(out, f.Content...)
	}
	return out, nil
}
