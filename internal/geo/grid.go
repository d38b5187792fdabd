// Package geo quantises coordinates into heatmap buckets and provides the
// great-circle helpers used by matching and surge ranking.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"drivepulse/internal/types"
)

// Precision is the number of decimals kept per coordinate (~100 m cells).
// Changing it changes heatmap resolution everywhere.
const Precision = 3

const keySep = ":"

// BucketKey truncates both coordinates toward zero to precision decimals and
// joins them. Locations whose truncated coordinates match share a key.
func BucketKey(loc types.Location, precision int) string {
	return formatTruncated(loc.Lat, precision) + keySep + formatTruncated(loc.Lng, precision)
}

func formatTruncated(v float64, precision int) string {
	if precision < 0 {
		precision = 0
	}
	scale := math.Pow10(precision)
	// the nudge absorbs binary representation error (40.001*1000 = 40000.99999...)
	t := math.Trunc(v*scale+math.Copysign(1e-9, v)) / scale
	if t == 0 {
		t = 0
	}
	return strconv.FormatFloat(t, 'f', precision, 64)
}

// Centroid returns the centre of the cell a bucket key names.
func Centroid(key string) (types.Location, error) {
	parts := strings.Split(key, keySep)
	if len(parts) != 2 {
		return types.Location{}, fmt.Errorf("geo: malformed bucket key %q", key)
	}
	lat, err := cellCenter(parts[0])
	if err != nil {
		return types.Location{}, fmt.Errorf("geo: bucket key %q: %w", key, err)
	}
	lng, err := cellCenter(parts[1])
	if err != nil {
		return types.Location{}, fmt.Errorf("geo: bucket key %q: %w", key, err)
	}
	return types.Location{Lat: lat, Lng: lng}, nil
}

func cellCenter(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	precision := 0
	if i := strings.IndexByte(s, '.'); i >= 0 {
		precision = len(s) - i - 1
	}
	half := math.Pow10(-precision) / 2
	switch {
	case v > 0:
		return v + half, nil
	case v < 0:
		return v - half, nil
	default:
		// truncation folds (-step, step) into zero, so the cell is centred on it
		return 0, nil
	}
}
