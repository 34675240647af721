//go:build linux

package main

import "errors"

// errNoClipboard is returned where the system clipboard cannot be reached.
var errNoClipboard = errors.New("clipboard not available on this platform (Linux without X11)")

func writeClipboard(string) error {
	return errNoClipboard
}
