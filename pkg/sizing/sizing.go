// Package sizing maps capture quality tiers onto the picture sizes a sensor
// reports as supported.
package sizing

import (
	"fmt"
	"math"
	"sort"

	"github.com/menta2k/camera-capture/pkg/types"
)

// Target resolutions for the fixed-height tiers. 480p aims for 16:9 but
// falls back to any supported size with at least the same area.
var (
	Resolution480p  = types.Size{Width: 853, Height: 480}
	Resolution720p  = types.Size{Width: 1280, Height: 720}
	Resolution1080p = types.Size{Width: 1920, Height: 1080}
)

// unbounded is the desired size used for the preview tier
var unbounded = types.Size{Width: math.MaxInt32, Height: math.MaxInt32}

// Sort returns a copy of sizes ordered by ascending area. Sizes with equal
// area are ordered by width.
func Sort(sizes []types.Size) []types.Size {
	out := make([]types.Size, len(sizes))
	copy(out, sizes)
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].Area(), out[j].Area()
		if ai != aj {
			return ai < aj
		}
		return out[i].Width < out[j].Width
	})
	return out
}

// Select returns the supported size for a quality tier
func Select(supported []types.Size, tier types.QualityTier) (types.Size, error) {
	if len(supported) == 0 {
		return types.Size{}, fmt.Errorf("%w: no supported picture sizes", types.ErrInvalidState)
	}
	sizes := Sort(supported)

	switch tier {
	case types.QualityLow:
		return sizes[0], nil
	case types.QualityMedium:
		return sizes[len(sizes)/2], nil
	case types.QualityHigh, types.QualityPhoto:
		return sizes[len(sizes)-1], nil
	case types.QualityPreview:
		return closest(sizes, best(sizes, unbounded)), nil
	case types.Quality480p:
		return best(sizes, Resolution480p), nil
	case types.Quality720p:
		return best(sizes, Resolution720p), nil
	case types.Quality1080p:
		return best(sizes, Resolution1080p), nil
	}
	return types.Size{}, fmt.Errorf("%w: invalid capture quality: %s", types.ErrInvalidArgument, tier)
}

// Best returns the smallest supported size whose area is at least the
// desired area, or the largest supported size when none qualifies.
func Best(supported []types.Size, desired types.Size) (types.Size, error) {
	if len(supported) == 0 {
		return types.Size{}, fmt.Errorf("%w: no supported picture sizes", types.ErrInvalidState)
	}
	return best(Sort(supported), desired), nil
}

// Closest returns the supported size minimizing |dw|*|dh| against match.
// The first size wins ties.
func Closest(supported []types.Size, match types.Size) (types.Size, error) {
	if len(supported) == 0 {
		return types.Size{}, fmt.Errorf("%w: no supported picture sizes", types.ErrInvalidState)
	}
	return closest(Sort(supported), match), nil
}

func best(sizes []types.Size, desired types.Size) types.Size {
	minimum := desired.Area()
	for _, size := range sizes {
		if size.Area() >= minimum {
			return size
		}
	}
	return sizes[len(sizes)-1]
}

func closest(sizes []types.Size, match types.Size) types.Size {
	result := sizes[0]
	resultDelta := delta(result, match)
	for _, size := range sizes[1:] {
		if d := delta(size, match); d < resultDelta {
			result = size
			resultDelta = d
		}
	}
	return result
}

// delta is an area-delta heuristic, not a geometric distance
func delta(size, match types.Size) int64 {
	return abs(int64(size.Width)-int64(match.Width)) * abs(int64(size.Height)-int64(match.Height))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
