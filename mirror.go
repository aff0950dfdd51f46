package sanlvm

import "math"

// mirrorRegionThreshold is the mirrored-volume size, in tebibytes, above
// which lvcreate's default region size becomes too small and an explicit
// one is passed instead.
const mirrorRegionThreshold = 1.5

// MirrorRegionSize computes the mirror region size to pass to lvcreate
// for a mirrored volume of the given size in tebibytes. Volumes below the
// threshold use the tool default and get (0, false). Above it the region
// size is the next power of two >= the size; an exact power of two is
// returned as-is.
func MirrorRegionSize(terabytes float64) (int, bool) {
	if terabytes < mirrorRegionThreshold {
		return 0, false
	}

	return 1 << uint(math.Ceil(math.Log2(terabytes))), true
}
