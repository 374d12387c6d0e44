//go:build !darwin

package main

import (
	"fmt"
	"io"
)

func checkMetal(w io.Writer, _ string) error {
	fmt.Fprintln(w, "\ngo-metal import: only available on macOS")
	return nil
}
