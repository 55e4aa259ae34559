// Package conv provides overflow-checked integer conversions, used
// wherever a row count or offset crosses an int/uint32/uint64 boundary
// (mmap offsets, sidecar fields, inverted-list lengths).
package conv

import (
	"fmt"
	"math"
)

// IntToUint32 converts an int to a uint32, failing on negative or
// out-of-range values.
func IntToUint32(v int) (uint32, error) {
	if v < 0 {
		return 0, fmt.Errorf("conv: %d cannot be converted to uint32 (negative)", v)
	}
	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("conv: %d cannot be converted to uint32 (too large)", v)
	}
	return uint32(v), nil
}

// IntToUint64 converts a non-negative int to a uint64.
func IntToUint64(v int) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("conv: %d cannot be converted to uint64 (negative)", v)
	}
	return uint64(v), nil
}

// Uint64ToInt converts a uint64 to an int, failing if it overflows int.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, fmt.Errorf("conv: %d cannot be converted to int (too large)", v)
	}
	return int(v), nil
}

// Uint32ToInt converts a uint32 to an int.
func Uint32ToInt(v uint32) (int, error) {
	if uint64(v) > uint64(math.MaxInt) {
		return 0, fmt.Errorf("conv: %d cannot be converted to int (too large)", v)
	}
	return int(v), nil
}
