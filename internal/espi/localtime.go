package espi

import "time"

// transitionWindow bounds the search for zone offsets around a wall-clock time.
// Real offsets stay within ±14h, so sampling a day either side brackets any
// transition that can affect the result.
const transitionWindow = 24 * 60 * 60

// LocalToUTC converts an epoch-shaped wall-clock reading in loc to the UTC
// epoch of the same instant.
//
// The raw value's civil fields (read as if it were UTC) are the wall clock
// shown in loc. Resolution is deterministic around DST transitions:
//   - a wall time that occurs twice resolves to the earlier occurrence
//     (the larger, pre-transition offset)
//   - a wall time inside a spring-forward gap is moved forward by the gap
//     length, i.e. it is read with the pre-transition offset
func LocalToUTC(raw int64, loc *time.Location) int64 {
	if loc == nil || loc == time.UTC {
		return raw
	}

	before := offsetAt(raw-transitionWindow, loc)
	after := offsetAt(raw+transitionWindow, loc)

	if before == after {
		// No transition nearby: a single offset applies.
		if off := offsetAt(raw-before, loc); off == before {
			return raw - before
		}
		// Transitions on both sides of the window (rare double shifts);
		// fall back to the offset in effect at the naive instant.
		return raw - offsetAt(raw-before, loc)
	}

	validBefore := offsetAt(raw-before, loc) == before
	validAfter := offsetAt(raw-after, loc) == after

	switch {
	case validBefore && validAfter:
		// Ambiguous: pick the earlier instant, which uses the larger offset.
		return raw - max(before, after)
	case validBefore:
		return raw - before
	case validAfter:
		return raw - after
	default:
		// Gap: keep the pre-transition offset, which lands the wall clock
		// gap-length past the requested time.
		return raw - before
	}
}

// offsetAt returns loc's UTC offset in seconds at the given instant.
func offsetAt(epoch int64, loc *time.Location) int64 {
	_, off := time.Unix(epoch, 0).In(loc).Zone()
	return int64(off)
}
