package storage

import (
	"fmt"
	"os"
)

// Stale reports whether the derived artifact is missing or older than its source,
// in which case it needs to be recomputed.
func Stale(source, derived string) (bool, error) {
	src, err := os.Stat(source)
	if err != nil {
		return false, fmt.Errorf("could not stat source '%s': %w", source, err)
	}
	der, err := os.Stat(derived)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not stat derived '%s': %w", derived, err)
	}
	return der.ModTime().Before(src.ModTime()), nil
}
