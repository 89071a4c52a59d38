//go:build !windows

package sasl

import (
	"os"
	"strconv"
)

// identity returns the calling process's UID in decimal, the Unix
// credential EXTERNAL asserts.
func identity() (string, error) {
	return strconv.Itoa(os.Getuid()), nil
}
