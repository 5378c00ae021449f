// Package romfs implements reading and writing NeoROMFS images, the
// read-only flat filing system that is baked into flash storage next to
// the firmware of Neotron-style embedded devices.
//
// An image is a 16-byte header followed by the packed files, each of
// which is a 24-byte entry header plus its raw contents. There are no
// directories, no alignment padding and no compression, and multi-byte
// integers are big-endian. The 32-bit size fields limit both a single
// file and the whole image to 4 GiB.
//
// File names are restricted to 14 bytes of UTF-8.
package romfs
