package progress

import "golang.org/x/sys/unix"

// isTerminal reports whether fd is connected to a terminal.
func isTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}
