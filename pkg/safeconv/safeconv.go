// Package safeconv provides integer conversions that panic when the value
// does not fit the target type.
package safeconv

import (
	"fmt"
	"math"
)

// MustIntToUint32 converts int to uint32, panics on bounds violation.
// Use only when bounds violations are logically impossible.
func MustIntToUint32(v int) uint32 {
	if v < 0 || uint64(v) > math.MaxUint32 {
		panic(fmt.Sprintf("safeconv: int %d out of uint32 range", v))
	}

	return uint32(v)
}

// MustInt64ToUint64 converts int64 to uint64, panics if negative.
func MustInt64ToUint64(v int64) uint64 {
	if v < 0 {
		panic(fmt.Sprintf("safeconv: negative int64 %d to uint64 conversion", v))
	}

	return uint64(v)
}
