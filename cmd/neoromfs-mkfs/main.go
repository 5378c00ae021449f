// neoromfs-mkfs builds a NeoROMFS image from the files named on the
// command line.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/neoromfs/tools/deviceprofile"
	"github.com/neoromfs/tools/humanize"
	"github.com/neoromfs/tools/romfs"
)

var (
	output = pflag.StringP("output", "o", "",
		"write the image to this path instead of stdout")

	device = pflag.String("device", "",
		"reject images that do not fit this device profile, e.g. pico")

	verbose = pflag.BoolP("verbose", "v", false,
		"log debug details")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <file>...\n", filepath.Base(os.Args[0]))
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	override, err := sourceDateEpoch()
	if err != nil {
		logrus.Fatal(err)
	}

	files := make([]romfs.File, 0, pflag.NArg())
	for _, path := range pflag.Args() {
		logrus.Debugf("loading %s", path)
		fi, err := os.Stat(path)
		if err != nil {
			logrus.Fatal(err)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			logrus.Fatal(err)
		}
		mtime := fi.ModTime()
		if override != nil {
			mtime = *override
		}
		ts, err := romfs.TimestampOf(mtime)
		if err != nil {
			logrus.Errorf("%s: %v", path, err)
			os.Exit(2)
		}
		files = append(files, romfs.File{
			Name:    filepath.Base(path),
			ModTime: ts,
			Content: content,
		})
	}

	img, err := romfs.Build(files)
	if err != nil {
		logrus.Error(err)
		os.Exit(2)
	}

	if *device != "" {
		profile, ok := deviceprofile.Get(*device)
		if !ok {
			logrus.Fatalf("unknown device %q (known: %s)",
				*device, strings.Join(deviceprofile.Slugs(), ", "))
		}
		if err := profile.CheckImageSize(int64(len(img))); err != nil {
			logrus.Error(err)
			os.Exit(2)
		}
	}

	dest := "<stdout>"
	if *output == "" {
		if _, err := os.Stdout.Write(img); err != nil {
			logrus.Fatal(err)
		}
	} else {
		dest = *output
		if err := os.WriteFile(*output, img, 0644); err != nil {
			logrus.Fatal(err)
		}
	}
	logrus.Infof("wrote %s: %d entries, %s",
		dest, len(files), humanize.Bytes(uint64(len(img))))
}

// sourceDateEpoch returns the timestamp all entries should carry for
// reproducible builds, or nil to use each file's modification time.
// https://reproducible-builds.org/docs/source-date-epoch/
func sourceDateEpoch() (*time.Time, error) {
	v := os.Getenv("SOURCE_DATE_EPOCH")
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SOURCE_DATE_EPOCH %q: %v", v, err)
	}
	t := time.Unix(n, 0).UTC()
	return &t, nil
}
