package gadget

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// DefaultUDCClassDir is where the kernel enumerates USB device controllers.
const DefaultUDCClassDir = "/sys/class/udc"

var (
	// ErrNoUDC means the host has no USB device controller at all.
	ErrNoUDC = errors.New("no USB device controller found")

	// ErrAmbiguousUDC means more than one controller exists and the
	// config must name one explicitly.
	ErrAmbiguousUDC = errors.New("multiple USB device controllers found")
)

// DiscoverUDC returns the name of the sole controller enumerated under
// classDir. Discovery keeps the tool portable across boards, but it
// refuses to guess when the host exposes more than one controller.
func DiscoverUDC(classDir string) (string, error) {
	entries, err := os.ReadDir(classDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoUDC
		}
		return "", fmt.Errorf("failed to read %s: %w", classDir, err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}

	switch len(names) {
	case 0:
		return "", ErrNoUDC
	case 1:
		return names[0], nil
	default:
		return "", fmt.Errorf("%w: %v", ErrAmbiguousUDC, names)
	}
}

// ResolveUDC maps the configured controller setting to a concrete name:
// "auto" (or empty) discovers, anything else is taken verbatim.
func ResolveUDC(configured, classDir string) (string, error) {
	if configured != "" && configured != "auto" {
		return configured, nil
	}
	return DiscoverUDC(classDir)
}

// ListUDCs returns all controller names under classDir, for display.
func ListUDCs(classDir string) ([]string, error) {
	entries, err := os.ReadDir(classDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", classDir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
