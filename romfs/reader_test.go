package romfs

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/src-d/go-errors.v1"
)

// Hand-assembled reference images, shared with the writer tests.
var (
	emptyImage = []byte{
		'N', 'e', 'o', 'R', 'O', 'M', 'F', 'S', // magic
		0x00, 0x01, 0x00, 0x00, // version 1.0.0
		0x00, 0x00, 0x00, 0x10, // total size, header included
	}

	oneFileImage = []byte{
		'N', 'e', 'o', 'R', 'O', 'M', 'F', 'S',
		0x00, 0x01, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x2C,
		'R', 'E', 'A', 'D', 'M', 'E', '.', 'T', 'X', 'T', 0, 0, 0, 0,
		0x00, 0x00, 0x00, 0x04,
		0x35, 0x0A, 0x0B, 0x14, 0x05, 0x10, // 2023-11-12T20:05:16
		0x12, 0x34, 0x56, 0x78,
	}

	twoFilesImage = []byte{
		'N', 'e', 'o', 'R', 'O', 'M', 'F', 'S',
		0x00, 0x01, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x47,
		'R', 'E', 'A', 'D', 'M', 'E', '.', 'T', 'X', 'T', 0, 0, 0, 0,
		0x00, 0x00, 0x00, 0x04,
		0x35, 0x0A, 0x0B, 0x14, 0x05, 0x10,
		0x12, 0x34, 0x56, 0x78,
		'H', 'E', 'L', 'L', 'O', '.', 'D', 'O', 'C', 0, 0, 0, 0, 0,
		0x00, 0x00, 0x00, 0x03,
		0x35, 0x0A, 0x0B, 0x14, 0x05, 0x11, // one second later
		0xAB, 0xCD, 0xEF,
	}

	readmeTime = Timestamp{YearsSince1970: 53, Month0: 10, Day0: 11, Hour: 20, Minute: 5, Second: 16}
	helloTime  = Timestamp{YearsSince1970: 53, Month0: 10, Day0: 11, Hour: 20, Minute: 5, Second: 17}
)

// testImage prefixes body with a header declaring the matching total
// size, so that NewReader accepts the result.
func testImage(body ...byte) []byte {
	hdr := EncodeHeader(uint32(HeaderSize + len(body)))
	return append(hdr[:], body...)
}

func TestDecodeHeader(t *testing.T) {
	t.Parallel()
	// Only the first HeaderSize bytes are read.
	got, err := DecodeHeader(oneFileImage)
	if err != nil {
		t.Fatal(err)
	}
	want := Header{Version: Version{Major: 1}, TotalSize: 0x2C}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeHeader: diff (-want +got):\n%s", diff)
	}
}

func TestEncodeHeader(t *testing.T) {
	t.Parallel()
	got := EncodeHeader(0x10)
	if diff := cmp.Diff(emptyImage, got[:]); diff != "" {
		t.Errorf("EncodeHeader: diff (-want +got):\n%s", diff)
	}
}

func TestVersionString(t *testing.T) {
	t.Parallel()
	if got, want := CurrentVersion.String(), "1.0.0"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestNewReader(t *testing.T) {
	t.Parallel()
	for _, tt := range []struct {
		desc      string
		data      []byte
		wantTotal uint32
	}{
		{desc: "empty image", data: emptyImage, wantTotal: 0x10},
		{desc: "one file", data: oneFileImage, wantTotal: 0x2C},
		{desc: "two files", data: twoFilesImage, wantTotal: 0x47},
	} {
		t.Run(tt.desc, func(t *testing.T) {
			r, err := NewReader(tt.data)
			if err != nil {
				t.Fatal(err)
			}
			if got, want := r.Header().TotalSize, tt.wantTotal; got != want {
				t.Errorf("TotalSize = %#x, want %#x", got, want)
			}
			if got, want := r.Header().Version, CurrentVersion; got != want {
				t.Errorf("Version = %v, want %v", got, want)
			}
		})
	}
}

func TestNewReaderErrors(t *testing.T) {
	t.Parallel()
	// corrupt returns a copy of data with data[i] replaced by v.
	corrupt := func(data []byte, i int, v byte) []byte {
		b := append([]byte(nil), data...)
		b[i] = v
		return b
	}
	for _, tt := range []struct {
		desc string
		data []byte
		want *errors.Kind
	}{
		{
			desc: "nil",
			data: nil,
			want: ErrTruncated,
		},

		{
			desc: "one byte short of a header",
			data: emptyImage[:HeaderSize-1],
			want: ErrTruncated,
		},

		{
			desc: "wrong magic",
			data: corrupt(emptyImage, 7, 'T'),
			want: ErrInvalidMagic,
		},

		{
			desc: "unsupported patch version",
			data: corrupt(emptyImage, 11, 0x01),
			want: ErrUnsupportedVersion,
		},

		{
			desc: "unsupported major version",
			data: corrupt(emptyImage, 9, 0x02),
			want: ErrUnsupportedVersion,
		},

		{
			desc: "reserved version byte set",
			data: corrupt(emptyImage, 8, 0x01),
			want: ErrUnsupportedVersion,
		},

		{
			// The magic is checked before the version bytes.
			desc: "wrong magic and wrong version",
			data: corrupt(corrupt(emptyImage, 7, 'T'), 11, 0x01),
			want: ErrInvalidMagic,
		},

		{
			// The version is checked before the size.
			desc: "wrong version and wrong size",
			data: corrupt(corrupt(emptyImage, 11, 0x01), 15, 0xFF),
			want: ErrUnsupportedVersion,
		},

		{
			desc: "declared size too small",
			data: corrupt(emptyImage, 15, 0x0F),
			want: ErrSizeMismatch,
		},

		{
			desc: "buffer longer than declared",
			data: append(append([]byte(nil), emptyImage...), 0x00),
			want: ErrSizeMismatch,
		},

		{
			desc: "content cut off",
			data: oneFileImage[:len(oneFileImage)-1],
			want: ErrSizeMismatch,
		},
	} {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := NewReader(tt.data)
			if !tt.want.Is(err) {
				t.Errorf("NewReader = %v, want kind %q", err, tt.want.Message)
			}
		})
	}
}

func TestEntries(t *testing.T) {
	t.Parallel()
	r, err := NewReader(twoFilesImage)
	if err != nil {
		t.Fatal(err)
	}
	var got []Entry
	it := r.Entries()
	for it.Next() {
		got = append(got, it.Entry())
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	want := []Entry{
		{
			EntryHeader: EntryHeader{Name: "README.TXT", Size: 4, ModTime: readmeTime},
			Content:     []byte{0x12, 0x34, 0x56, 0x78},
		},
		{
			EntryHeader: EntryHeader{Name: "HELLO.DOC", Size: 3, ModTime: helloTime},
			Content:     []byte{0xAB, 0xCD, 0xEF},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries: diff (-want +got):\n%s", diff)
	}
}

func TestEntriesFreshPass(t *testing.T) {
	t.Parallel()
	r, err := NewReader(twoFilesImage)
	if err != nil {
		t.Fatal(err)
	}
	// Iterators are forward-only, but a second Entries() call walks the
	// same image again with identical results.
	collect := func() []Entry {
		var entries []Entry
		it := r.Entries()
		for it.Next() {
			entries = append(entries, it.Entry())
		}
		if err := it.Err(); err != nil {
			t.Fatal(err)
		}
		return entries
	}
	first := collect()
	second := collect()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second pass: diff (-want +got):\n%s", diff)
	}
	if got, want := len(first), 2; got != want {
		t.Errorf("decoded %d entries, want %d", got, want)
	}
}

func TestEntriesEmptyImage(t *testing.T) {
	t.Parallel()
	r, err := NewReader(emptyImage)
	if err != nil {
		t.Fatal(err)
	}
	it := r.Entries()
	if it.Next() {
		t.Fatalf("Next() = true on an empty image, entry %+v", it.Entry())
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestEntriesContentIsNotCopied(t *testing.T) {
	t.Parallel()
	data := append([]byte(nil), oneFileImage...)
	r, err := NewReader(data)
	if err != nil {
		t.Fatal(err)
	}
	e, err := r.Find("README.TXT")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := &e.Content[0], &data[HeaderSize+EntryHeaderSize]; got != want {
		t.Error("Content does not alias the image buffer")
	}
}

func TestEntriesMalformed(t *testing.T) {
	t.Parallel()
	entry := func(name string, size uint32, content ...byte) []byte {
		b, err := appendEntryHeader(nil, name, size, Timestamp{})
		if err != nil {
			t.Fatal(err)
		}
		return append(b, content...)
	}
	for _, tt := range []struct {
		desc    string
		body    []byte
		wantOK  int // entries decoded before the error
		wantErr *errors.Kind
	}{
		{
			desc:    "entry header cut off",
			body:    bytes.Repeat([]byte{0}, EntryHeaderSize-10),
			wantErr: ErrTruncated,
		},

		{
			desc:    "content shorter than declared",
			body:    entry("A", 5, 0xAA, 0xBB),
			wantErr: ErrTruncated,
		},

		{
			desc:    "declared size reaches past 4 GiB",
			body:    entry("BIG", 0xFFFFFFFF),
			wantErr: ErrTruncated,
		},

		{
			desc: "second entry invalid name",
			body: append(
				entry("A", 1, 0xAA),
				0xFF, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // invalid UTF-8 name
				0x00, 0x00, 0x00, 0x00,
				0, 0, 0, 0, 0, 0,
			),
			wantOK:  1,
			wantErr: ErrInvalidName,
		},

		{
			desc: "second entry bad timestamp",
			body: append(
				entry("A", 1, 0xAA),
				'B', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
				0x00, 0x00, 0x00, 0x00,
				0, 0, 0, 24, 0, 0, // hour 24 is out of range
			),
			wantOK:  1,
			wantErr: ErrTimestampOutOfRange,
		},
	} {
		t.Run(tt.desc, func(t *testing.T) {
			r, err := NewReader(testImage(tt.body...))
			if err != nil {
				t.Fatal(err)
			}
			it := r.Entries()
			var n int
			for it.Next() {
				n++
			}
			if n != tt.wantOK {
				t.Errorf("decoded %d entries before the error, want %d", n, tt.wantOK)
			}
			if err := it.Err(); !tt.wantErr.Is(err) {
				t.Errorf("Err() = %v, want kind %q", err, tt.wantErr.Message)
			}
			// The error is final.
			if it.Next() {
				t.Error("Next() = true after an error")
			}
		})
	}
}

func TestFind(t *testing.T) {
	t.Parallel()
	r, err := NewReader(twoFilesImage)
	if err != nil {
		t.Fatal(err)
	}

	e, err := r.Find("HELLO.DOC")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := e.Content, []byte{0xAB, 0xCD, 0xEF}; !bytes.Equal(got, want) {
		t.Errorf("Content = % x, want % x", got, want)
	}
	if diff := cmp.Diff(helloTime, e.ModTime); diff != "" {
		t.Errorf("ModTime: diff (-want +got):\n%s", diff)
	}

	if _, err := r.Find("MISSING.TXT"); !ErrEntryNotFound.Is(err) {
		t.Errorf("Find(MISSING.TXT) = %v, want ErrEntryNotFound", err)
	}

	// Lookups are case-sensitive.
	if _, err := r.Find("hello.doc"); !ErrEntryNotFound.Is(err) {
		t.Errorf("Find(hello.doc) = %v, want ErrEntryNotFound", err)
	}
}

func TestFindMalformedImage(t *testing.T) {
	t.Parallel()
	// A good first entry followed by a truncated second one.
	body, err := appendEntryHeader(nil, "GOOD.TXT", 1, readmeTime)
	if err != nil {
		t.Fatal(err)
	}
	body = append(body, 0x42)
	body = append(body, bytes.Repeat([]byte{0}, 10)...)
	r, err := NewReader(testImage(body...))
	if err != nil {
		t.Fatal(err)
	}

	// A match before the malformed part is still returned.
	e, err := r.Find("GOOD.TXT")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := e.Content, []byte{0x42}; !bytes.Equal(got, want) {
		t.Errorf("Content = % x, want % x", got, want)
	}

	// A miss surfaces the structural error, not ErrEntryNotFound.
	if _, err := r.Find("MISSING.TXT"); !ErrTruncated.Is(err) {
		t.Errorf("Find(MISSING.TXT) = %v, want ErrTruncated", err)
	}
}
