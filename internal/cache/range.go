package cache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// epochMillisCutover is the smallest value treated as epoch milliseconds
// rather than epoch seconds when a bare number arrives from the wire.
// 1e12 ms is 2001-09-09; 1e12 s is the year 33658. No POS transaction lives
// on either side of that ambiguity.
const epochMillisCutover = 1e12

// Range is a closed time window of interest, e.g. "today" or "this month".
// Two ranges are the same window iff their boundaries resolve to the same
// epoch instants, regardless of how each boundary was originally encoded.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewRange builds a Range from two instants. No ordering is enforced;
// callers own the semantics of inverted windows.
func NewRange(start, end time.Time) Range {
	return Range{Start: start, End: end}
}

// Today returns the calendar-day window containing now, in now's location.
// It is the default active window after a cold start.
func Today(now time.Time) Range {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return Range{Start: start, End: start.Add(24*time.Hour - time.Millisecond)}
}

// Equal reports whether both windows denote the same instant pair.
// Comparison happens on epoch milliseconds, never on the in-memory
// representation, so a range parsed from an ISO string equals one built
// from time.Date.
func (r Range) Equal(o Range) bool {
	return r.Start.UnixMilli() == o.Start.UnixMilli() &&
		r.End.UnixMilli() == o.End.UnixMilli()
}

// Contains reports whether t falls inside the closed window.
func (r Range) Contains(t time.Time) bool {
	ms := t.UnixMilli()
	return ms >= r.Start.UnixMilli() && ms <= r.End.UnixMilli()
}

// IsZero reports whether the range has not been populated.
func (r Range) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

func (r Range) String() string {
	return fmt.Sprintf("%s..%s",
		r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
}

// Fingerprint is the deterministic identity of a window, derived from its
// boundary instants. It keys every bucket and doubles as a cheap
// "has the window changed" comparator.
type Fingerprint uint64

// Fingerprint hashes the window's boundaries normalized to epoch
// milliseconds. Equal windows always collide; distinct windows collide with
// xxhash64 probability, which is negligible against the handful of windows a
// session ever visits.
func (r Range) Fingerprint() Fingerprint {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.Start.UnixMilli()))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.End.UnixMilli()))
	return Fingerprint(xxhash.Sum64(buf[:]))
}

func (f Fingerprint) String() string {
	return strconv.FormatUint(uint64(f), 16)
}

// instantLayouts are the textual encodings accepted by ParseInstant, in
// probe order. The backing service emits RFC3339; persisted snapshots emit
// RFC3339Nano; date-only values come from hand-edited config.
var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseInstant normalizes a dynamically typed value to a time instant.
// Accepted representations: time.Time (returned as-is), textual timestamps
// in any of the instantLayouts, and epoch numbers (json.Number, float64,
// int64, int) in seconds or milliseconds. Anything else fails with
// ErrBadInstant.
func ParseInstant(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		for _, layout := range instantLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, nil
			}
		}
		// Numbers arriving as text, e.g. re-serialized epoch values.
		if n, err := strconv.ParseFloat(x, 64); err == nil {
			return fromEpochNumber(n), nil
		}
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadInstant, x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrBadInstant, x.String())
		}
		return fromEpochNumber(n), nil
	case float64:
		return fromEpochNumber(x), nil
	case int64:
		return fromEpochNumber(float64(x)), nil
	case int:
		return fromEpochNumber(float64(x)), nil
	case nil:
		return time.Time{}, fmt.Errorf("%w: nil", ErrBadInstant)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrBadInstant, v)
	}
}

// fromEpochNumber interprets a bare number as epoch seconds or epoch
// milliseconds depending on magnitude.
func fromEpochNumber(n float64) time.Time {
	if math.Abs(n) >= epochMillisCutover {
		return time.UnixMilli(int64(n))
	}
	// Seconds, possibly fractional.
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// rangeWire is the serialized shape of a Range. Boundaries are emitted as
// RFC3339Nano strings but accepted in any ParseInstant representation, so a
// snapshot written by an older build (or by hand) still restores real
// time.Time values.
type rangeWire struct {
	Start any `json:"start"`
	End   any `json:"end"`
}

// MarshalJSON encodes both boundaries as RFC3339Nano text.
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"start": r.Start.Format(time.RFC3339Nano),
		"end":   r.End.Format(time.RFC3339Nano),
	})
}

// UnmarshalJSON restores both boundaries through ParseInstant, repairing the
// date-versus-text distinction that generic serialization erases.
func (r *Range) UnmarshalJSON(data []byte) error {
	var wire rangeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode range: %w", err)
	}

	start, err := ParseInstant(wire.Start)
	if err != nil {
		return fmt.Errorf("decode range start: %w", err)
	}
	end, err := ParseInstant(wire.End)
	if err != nil {
		return fmt.Errorf("decode range end: %w", err)
	}

	r.Start = start
	r.End = end
	return nil
}
