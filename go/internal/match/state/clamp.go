package state

import "math"

// ClampScore limits a score to 0..MaxInt32.
func ClampScore(v int) int { return clampNonNegative(v) }

// ClampDown limits a down to 1..4.
func ClampDown(v int) int {
	if v < MinDowns {
		return MinDowns
	}
	if v > MaxDowns {
		return MaxDowns
	}
	return v
}

// WrapDown advances past the fourth down back to the first.
func WrapDown(v int) int {
	if v < MinDowns {
		return MinDowns
	}
	return (v-1)%MaxDowns + 1
}

// ClampRotation limits the mandatory rotation counter to 0..2.
func ClampRotation(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxRotation {
		return MaxRotation
	}
	return v
}

// ClampTeam limits an index to the two sides.
func ClampTeam(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampCount limits a counter or a number of seconds to 0..MaxInt32, the
// range every snapshot field decodes into.
func ClampCount(v int) int { return clampNonNegative(v) }

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return v
}
