package engine

import "time"

// ComputeWindow maps a point in time onto the canonical round window for the
// given duration: bucketStart = floor(now / duration) * duration. Any two
// callers inside the same duration-aligned window get identical boundaries,
// which is what lets round creation be idempotent by key alone.
// durationSeconds must be positive; the game catalog enforces that at load.
func ComputeWindow(now time.Time, durationSeconds int64) (bucketStart, bucketEnd int64) {
	bucketStart = now.Unix() / durationSeconds * durationSeconds
	bucketEnd = bucketStart + durationSeconds
	return bucketStart, bucketEnd
}
