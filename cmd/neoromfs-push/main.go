// neoromfs-push streams a NeoROMFS image to a device's update
// endpoint, verifying the device's checksum of what it received.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/neoromfs/tools/deviceflag"
	"github.com/neoromfs/tools/deviceprofile"
	"github.com/neoromfs/tools/httpclient"
	"github.com/neoromfs/tools/humanize"
	"github.com/neoromfs/tools/progress"
	"github.com/neoromfs/tools/romfs"
	"github.com/neoromfs/tools/updater"
)

var (
	reboot = pflag.Bool("reboot", false,
		"reboot the device after a successful update")

	compress = pflag.Bool("compress", false,
		"zstd-compress the upload when the device supports it")

	verbose = pflag.BoolP("verbose", "v", false,
		"log debug details")
)

func main() {
	deviceflag.RegisterPflags(pflag.CommandLine)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <image>\n", filepath.Base(os.Args[0]))
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(1)
	}

	img, err := os.ReadFile(pflag.Arg(0))
	if err != nil {
		logrus.Fatal(err)
	}
	// Validate before streaming: a device should never receive an
	// image its parser will reject.
	r, err := romfs.NewReader(img)
	if err != nil {
		logrus.Error(err)
		os.Exit(2)
	}
	entries := 0
	it := r.Entries()
	for it.Next() {
		entries++
	}
	if err := it.Err(); err != nil {
		logrus.Error(err)
		os.Exit(2)
	}

	device := deviceflag.Device()
	if device == "" {
		logrus.Fatal("no device selected, use --device or set NEOROMFS_DEVICE")
	}
	if deviceflag.Update() == "" {
		deviceflag.SetUpdate("yes")
	}
	if profile, ok := deviceprofile.Get(device); ok {
		if err := profile.CheckImageSize(int64(len(img))); err != nil {
			logrus.Error(err)
			os.Exit(2)
		}
	}

	client, baseURL, err := httpclient.ForDevice(device)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.Debugf("update endpoint: %s", baseURL.Redacted())
	target, err := updater.NewTarget(baseURL.String(), client)
	if err != nil {
		logrus.Fatal(err)
	}
	target.Compress = *compress

	logrus.Infof("pushing %s to %s: %d entries, %s",
		filepath.Base(pflag.Arg(0)), device, entries, humanize.Bytes(uint64(len(img))))

	progress.Reset()
	var reporter progress.Reporter
	reporter.SetStatus(fmt.Sprintf("pushing to %s", device))
	reporter.SetTotal(uint64(len(img)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reporter.Report(ctx)

	err = target.StreamTo("romfs", io.TeeReader(bytes.NewReader(img), progress.Writer{}))
	cancel()
	if errors.Is(err, updater.ErrUpdateHandlerNotImplemented) {
		logrus.Fatalf("device %s does not implement the update handler, maybe its firmware is too old?", device)
	}
	if err != nil {
		logrus.Fatal(err)
	}

	if *reboot {
		if err := target.Reboot(); err != nil {
			logrus.Fatal(err)
		}
		logrus.Infof("device %s is rebooting into the new image", device)
	}
}
