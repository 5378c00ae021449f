// Package flashmap locates NeoROMFS images inside raw flash or SD card
// dumps. A dump can be a bare image, a partitioned disk with the image
// at a partition start, or a firmware blob with the image baked in at
// an erase-block boundary; Find tries the candidates in that order.
package flashmap

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/neoromfs/tools/romfs"
	"gopkg.in/src-d/go-errors.v1"
)

const sectorSize = 512

// scanStep is the fallback scan granularity. NOR flash erase blocks
// are 4 KiB, so a baked-in image starts on one of these boundaries.
const scanStep = 4096

// ErrImageNotFound means none of the candidate offsets held a valid
// image header.
var ErrImageNotFound = errors.NewKind("no image found in %d bytes")

// Sources of a Region, in decreasing order of confidence.
const (
	SourceDump = "dump"
	SourceMBR  = "mbr"
	SourceGPT  = "gpt"
)

// Region is a candidate byte range of a dump.
type Region struct {
	Offset int64
	Size   int64
	Source string
}

// mbrEntry is one of the four entries of a classical partition table,
// as laid out at byte offset 446 of the boot sector.
type mbrEntry struct {
	Status   uint8
	FirstCHS [3]byte
	Type     uint8
	LastCHS  [3]byte
	FirstLBA uint32
	Sectors  uint32
}

// gptEntry is one GPT partition entry, see Intel EFI specification,
// 5.3.3 GPT Partition Entry Array.
type gptEntry struct {
	TypeGUID   [16]byte
	GUID       [16]byte
	FirstLBA   uint64
	LastLBA    uint64
	Attributes uint64
	Name       [72]byte
}

// Regions returns the candidate regions of a dump of the given size:
// always the whole input, plus any partitions named by a boot sector,
// plus GPT partitions behind a protective MBR. Regions are clamped to
// the input; regions starting past its end are dropped.
func Regions(r io.ReaderAt, size int64) ([]Region, error) {
	regions := []Region{{Offset: 0, Size: size, Source: SourceDump}}
	if size < sectorSize {
		return regions, nil
	}
	sector := make([]byte, sectorSize)
	if err := readFullAt(r, sector, 0); err != nil {
		return nil, err
	}
	if sector[510] != 0x55 || sector[511] != 0xAA {
		return regions, nil
	}
	rd := bytes.NewReader(sector[446:510])
	for i := 0; i < 4; i++ {
		var e mbrEntry
		if err := binary.Read(rd, binary.LittleEndian, &e); err != nil {
			return nil, err
		}
		if e.Type == 0x00 || e.FirstLBA == 0 {
			continue
		}
		if e.Type == 0xEE {
			// Protective MBR: the real table is a GPT.
			gpt, err := gptRegions(r, size)
			if err != nil {
				return nil, err
			}
			regions = append(regions, gpt...)
			continue
		}
		reg := clamp(Region{
			Offset: int64(e.FirstLBA) * sectorSize,
			Size:   int64(e.Sectors) * sectorSize,
			Source: SourceMBR,
		}, size)
		if reg.Size > 0 {
			regions = append(regions, reg)
		}
	}
	return regions, nil
}

// gptRegions parses the GPT header in sector 1 and returns the
// declared partitions. A missing or unusable table yields no regions
// rather than an error: a protective MBR alone does not promise a
// valid GPT behind it.
func gptRegions(r io.ReaderAt, size int64) ([]Region, error) {
	if size < 2*sectorSize {
		return nil, nil
	}
	hdr := make([]byte, sectorSize)
	if err := readFullAt(r, hdr, sectorSize); err != nil {
		return nil, err
	}
	if string(hdr[:8]) != "EFI PART" {
		return nil, nil
	}
	var (
		entriesLBA = binary.LittleEndian.Uint64(hdr[72:80])
		numEntries = binary.LittleEndian.Uint32(hdr[80:84])
		entrySize  = binary.LittleEndian.Uint32(hdr[84:88])
	)
	if entrySize != 128 {
		return nil, nil
	}
	if numEntries > 128 {
		numEntries = 128
	}
	if entriesLBA > uint64(size/sectorSize) {
		return nil, nil
	}
	start := int64(entriesLBA) * sectorSize
	buf := make([]byte, int64(numEntries)*128)
	if start+int64(len(buf)) > size {
		return nil, nil
	}
	if err := readFullAt(r, buf, start); err != nil {
		return nil, err
	}
	rd := bytes.NewReader(buf)
	var regions []Region
	for i := uint32(0); i < numEntries; i++ {
		var e gptEntry
		if err := binary.Read(rd, binary.LittleEndian, &e); err != nil {
			return nil, err
		}
		if e.TypeGUID == ([16]byte{}) || e.LastLBA < e.FirstLBA {
			continue
		}
		if e.FirstLBA > uint64(size/sectorSize) {
			continue
		}
		reg := clamp(Region{
			Offset: int64(e.FirstLBA) * sectorSize,
			Size:   int64(e.LastLBA-e.FirstLBA+1) * sectorSize,
			Source: SourceGPT,
		}, size)
		if reg.Size > 0 {
			regions = append(regions, reg)
		}
	}
	return regions, nil
}

// clamp trims reg to the input bounds. A region fully outside them
// comes back with Size 0.
func clamp(reg Region, size int64) Region {
	if reg.Offset < 0 || reg.Offset >= size {
		return Region{}
	}
	if reg.Size < 0 || reg.Offset+reg.Size > size {
		reg.Size = size - reg.Offset
	}
	return reg
}

// Find returns the byte offset of the first valid image in a dump of
// the given size. Partition starts are probed first, then every
// scanStep bytes. It fails with ErrImageNotFound when nothing matched.
func Find(r io.ReaderAt, size int64) (int64, error) {
	regions, err := Regions(r, size)
	if err != nil {
		return 0, err
	}
	for _, reg := range regions {
		ok, err := validImageAt(r, size, reg.Offset)
		if err != nil {
			return 0, err
		}
		if ok {
			return reg.Offset, nil
		}
	}
	for off := int64(0); off+int64(romfs.HeaderSize) <= size; off += scanStep {
		ok, err := validImageAt(r, size, off)
		if err != nil {
			return 0, err
		}
		if ok {
			return off, nil
		}
	}
	return 0, ErrImageNotFound.New(size)
}

// ReadHeaderAt decodes the image header at byte offset off of r.
func ReadHeaderAt(r io.ReaderAt, off int64) (romfs.Header, error) {
	buf := make([]byte, romfs.HeaderSize)
	if err := readFullAt(r, buf, off); err != nil {
		return romfs.Header{}, err
	}
	return romfs.DecodeHeader(buf)
}

// validImageAt reports whether off holds an image header whose
// declared total size fits within the dump. Decode failures mean "no
// image here"; only real read errors are returned.
func validImageAt(r io.ReaderAt, size, off int64) (bool, error) {
	if off < 0 || off+int64(romfs.HeaderSize) > size {
		return false, nil
	}
	hdr, err := ReadHeaderAt(r, off)
	if romfs.ErrInvalidMagic.Is(err) || romfs.ErrUnsupportedVersion.Is(err) || romfs.ErrTruncated.Is(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if int64(hdr.TotalSize) < int64(romfs.HeaderSize) || off+int64(hdr.TotalSize) > size {
		return false, nil
	}
	return true, nil
}

// readFullAt is ReadAt with the at-end ambiguity removed: a full read
// right up to EOF counts as success.
func readFullAt(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if err == io.EOF && n == len(buf) {
		err = nil
	}
	return err
}
