package romfs

// Reader provides access to the entries of an image held in memory.
//
// The Reader borrows the buffer passed to NewReader: entry contents are
// sub-slices of it, so the buffer must stay alive and unmodified for as
// long as any Entry is in use.
type Reader struct {
	data   []byte
	header Header
}

// NewReader validates the header of data and prepares the image for
// iteration. Beyond the header checks it verifies that the declared
// total size matches len(data) exactly, so that neither a truncated nor
// an over-long buffer is silently accepted.
func NewReader(data []byte) (*Reader, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if int64(h.TotalSize) != int64(len(data)) {
		return nil, ErrSizeMismatch.New(h.TotalSize, len(data))
	}
	return &Reader{data: data, header: h}, nil
}

// Header returns the decoded image header.
func (r *Reader) Header() Header { return r.header }

// Entries returns an iterator over the image's entries in image order.
// Iteration is forward-only; call Entries again for a fresh pass.
func (r *Reader) Entries() *Entries {
	return &Entries{data: r.data, off: HeaderSize}
}

// Find returns the first entry named name, in image order. It fails
// with ErrEntryNotFound when no entry matches, and with the underlying
// structural error when the image turns out to be malformed before a
// match is found.
func (r *Reader) Find(name string) (Entry, error) {
	it := r.Entries()
	for it.Next() {
		if e := it.Entry(); e.Name == name {
			return e, nil
		}
	}
	if err := it.Err(); err != nil {
		return Entry{}, err
	}
	return Entry{}, ErrEntryNotFound.New(name)
}

// Entries iterates over the entries of an image, in the style of
// bufio.Scanner: Next advances, Entry returns the current entry and Err
// reports the structural error that ended iteration, if any. The first
// error is final; there is no resynchronization with later entries.
type Entries struct {
	data []byte
	off  int
	cur  Entry
	err  error
}

// Next advances to the next entry. It returns false when the image is
// exhausted or malformed; Err distinguishes the two.
func (it *Entries) Next() bool {
	if it.err != nil || it.off == len(it.data) {
		return false
	}
	hdr, contentStart, err := decodeEntryHeader(it.data, it.off)
	if err != nil {
		it.err = err
		return false
	}
	contentEnd := int64(contentStart) + int64(hdr.Size)
	if contentEnd > int64(len(it.data)) {
		it.err = ErrTruncated.New(hdr.Size, contentStart, len(it.data)-contentStart)
		return false
	}
	it.cur = Entry{
		EntryHeader: hdr,
		Content:     it.data[contentStart:contentEnd],
	}
	it.off = int(contentEnd)
	return true
}

// Entry returns the entry read by the most recent successful Next.
func (it *Entries) Entry() Entry { return it.cur }

// Err returns the error that ended iteration, if any.
func (it *Entries) Err() error { return it.err }
