// Package humanize formats byte counts and transfer rates for the
// status output of the tools.
package humanize

import "fmt"

// BPS formats a transfer rate in the largest fitting binary unit.
func BPS(bps uint64) string {
	switch {
	case bps > (1024 * 1024 * 1024):
		return fmt.Sprintf("%.1f GiB/s", float64(bps)/1024/1024/1024)
	case bps > (1024 * 1024):
		return fmt.Sprintf("%.f MiB/s", float64(bps)/1024/1024)
	case bps > 1024:
		return fmt.Sprintf("%.f KiB/s", float64(bps)/1024)
	default:
		return fmt.Sprintf("%d B/s", bps)
	}
}

// Bytes formats a byte count in the largest fitting binary unit. Image
// sizes go up to 4 GiB, hence the GiB tier.
func Bytes(bytes uint64) string {
	switch {
	case bytes > (1024 * 1024 * 1024):
		return fmt.Sprintf("%.1f GiB", float64(bytes)/1024/1024/1024)
	case bytes > (1024 * 1024):
		return fmt.Sprintf("%.f MiB", float64(bytes)/1024/1024)
	case bytes > 1024:
		return fmt.Sprintf("%.f KiB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
