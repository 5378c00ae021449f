// Package deviceprofile contains the device-specific flash layouts the
// tools know about.
package deviceprofile

import (
	"fmt"
	"sort"
)

// Profile describes where a NeoROMFS image lives in a device's flash.
type Profile struct {
	// Model is the human-readable device name.
	Model string
	// Slug is a unique, short string the tools accept as --device.
	Slug string
	// FlashSize is the total size of the device's flash chip.
	FlashSize int64
	// ImageOffset is the byte offset of the image within flash; the
	// firmware occupies [0, ImageOffset). Must be erase-block aligned.
	ImageOffset int64
	// MaxImageSize is the largest image the device accepts.
	// [ImageOffset, ImageOffset+MaxImageSize) must stay inside flash.
	MaxImageSize int64
}

const (
	kib = 1024
	mib = 1024 * kib
)

// Profiles maps device model to its flash layout.
var Profiles = map[string]Profile{
	// Raspberry Pi Pico carrier board, RP2040 with 2 MiB QSPI flash:
	// 512 KiB firmware, the rest holds the ROMFS.
	"Neotron Pico": {
		Model:        "Neotron Pico",
		Slug:         "pico",
		FlashSize:    2 * mib,
		ImageOffset:  512 * kib,
		MaxImageSize: 1536 * kib,
	},

	// Pico 2 carrier board, RP2350 with 4 MiB QSPI flash and a larger
	// firmware window.
	"Neotron Pico 2": {
		Model:        "Neotron Pico 2",
		Slug:         "pico2",
		FlashSize:    4 * mib,
		ImageOffset:  1 * mib,
		MaxImageSize: 3 * mib,
	},

	// Emulated flash: the image sits at the start and can use all of
	// it, handy for OS development.
	"QEMU testing": {
		Model:        "QEMU testing",
		Slug:         "qemu",
		FlashSize:    16 * mib,
		ImageOffset:  0,
		MaxImageSize: 16 * mib,
	},
}

// Get returns the profile identified by its --device slug.
func Get(slug string) (Profile, bool) {
	for _, p := range Profiles {
		if p.Slug == slug {
			return p, true
		}
	}

	return Profile{}, false
}

// Slugs returns all known --device values, sorted, for usage messages.
func Slugs() []string {
	slugs := make([]string, 0, len(Profiles))
	for _, p := range Profiles {
		slugs = append(slugs, p.Slug)
	}
	sort.Strings(slugs)
	return slugs
}

// CheckImageSize reports whether an image of n bytes fits the device's
// image window.
func (p Profile) CheckImageSize(n int64) error {
	if n > p.MaxImageSize {
		return fmt.Errorf("image is %d bytes, but %s accepts at most %d", n, p.Model, p.MaxImageSize)
	}
	return nil
}
