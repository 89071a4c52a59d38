//go:build windows

package sasl

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// identity returns the calling process's SID in its string form
// (e.g. "S-1-5-21-..."), the Windows analogue of a Unix UID for the
// EXTERNAL mechanism.
func identity() (string, error) {
	token := windows.GetCurrentProcessToken()
	user, err := token.GetTokenUser()
	if err != nil {
		return "", fmt.Errorf("sasl: looking up process token user: %w", err)
	}
	sid, err := user.User.Sid.String()
	if err != nil {
		return "", fmt.Errorf("sasl: formatting SID: %w", err)
	}
	return sid, nil
}
