// neoromfs-lsfs lists the entries of a NeoROMFS image. The input may
// be a bare image, a whole-flash dump or a block device; --offset,
// --device and --scan locate the image inside larger inputs. Naming an
// entry as the second argument extracts it.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/neoromfs/tools/deviceprofile"
	"github.com/neoromfs/tools/flashmap"
	"github.com/neoromfs/tools/humanize"
	"github.com/neoromfs/tools/romfs"
)

var (
	offset = pflag.Int64("offset", -1,
		"byte offset of the image inside the input (-1: start of input, or use --device/--scan)")

	device = pflag.String("device", "",
		"look for the image at this device profile's flash offset, e.g. pico")

	scan = pflag.Bool("scan", false,
		"search partition tables and erase-block-aligned offsets for the image")

	output = pflag.StringP("output", "o", "",
		"extraction destination (default: the entry name)")

	verbose = pflag.BoolP("verbose", "v", false,
		"log debug details")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <image-or-dump> [<name>]\n", filepath.Base(os.Args[0]))
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if pflag.NArg() < 1 || pflag.NArg() > 2 {
		pflag.Usage()
		os.Exit(1)
	}
	extract := pflag.Arg(1)

	f, err := os.Open(pflag.Arg(0))
	if err != nil {
		logrus.Fatal(err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		logrus.Fatal(err)
	}
	size := fi.Size()
	if size == 0 {
		// Block devices report a zero Stat size.
		size, err = f.Seek(0, io.SeekEnd)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	var off int64
	switch {
	case *offset >= 0:
		off = *offset
	case *device != "":
		profile, ok := deviceprofile.Get(*device)
		if !ok {
			logrus.Fatalf("unknown device %q (known: %s)",
				*device, strings.Join(deviceprofile.Slugs(), ", "))
		}
		off = profile.ImageOffset
	case *scan:
		off, err = flashmap.Find(f, size)
		if err != nil {
			logrus.Error(err)
			os.Exit(2)
		}
	}
	logrus.Debugf("reading image at offset %#x", off)

	hdr, err := flashmap.ReadHeaderAt(f, off)
	if err != nil {
		logrus.Errorf("reading image header at offset %#x: %v", off, err)
		os.Exit(2)
	}
	if off+int64(hdr.TotalSize) > size {
		logrus.Errorf("image at offset %#x claims %s, input only holds %s past that offset",
			off, humanize.Bytes(uint64(hdr.TotalSize)), humanize.Bytes(uint64(size-off)))
		os.Exit(2)
	}
	buf := make([]byte, hdr.TotalSize)
	if _, err := f.ReadAt(buf, off); err != nil {
		logrus.Fatal(err)
	}
	r, err := romfs.NewReader(buf)
	if err != nil {
		logrus.Error(err)
		os.Exit(2)
	}
	logrus.Debugf("image: format version %s, %s total",
		r.Header().Version, humanize.Bytes(uint64(r.Header().TotalSize)))

	extracted := false
	it := r.Entries()
	for it.Next() {
		e := it.Entry()
		fmt.Printf("Found name=%q, ctime=%s, size=%d\n", e.Name, e.ModTime, e.Size)
		if extract != "" && e.Name == extract {
			dest := *output
			if dest == "" {
				dest = e.Name
			}
			if err := os.WriteFile(dest, e.Content, 0644); err != nil {
				logrus.Fatal(err)
			}
			logrus.Infof("extracted %q to %s", e.Name, dest)
			extracted = true
		}
	}
	if err := it.Err(); err != nil {
		logrus.Error(err)
		os.Exit(2)
	}
	if extract != "" && !extracted {
		logrus.Error(romfs.ErrEntryNotFound.New(extract))
		os.Exit(2)
	}
}
