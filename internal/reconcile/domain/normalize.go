package reconcile

import (
	"fmt"
	"strings"
	"time"
)

// TimestampKind tags the shape of a raw API timestamp. The classification
// happens once at parse time so normalization has a single unambiguous
// input contract.
type TimestampKind int

const (
	// TimestampBareLocal is a timestamp without any zone marker, assumed
	// to already be in local time.
	TimestampBareLocal TimestampKind = iota
	// TimestampOffsetBearing carries an explicit UTC offset (or Z).
	TimestampOffsetBearing
)

// RawTimestamp is a classified but not yet parsed API timestamp.
type RawTimestamp struct {
	Value string
	Kind  TimestampKind
}

// ParseRawTimestamp classifies a raw timestamp string. It fails with
// ErrMalformedTimestamp for empty input; actual parse failures surface
// from Normalizer.Normalize.
func ParseRawTimestamp(value string) (RawTimestamp, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return RawTimestamp{}, fmt.Errorf("%w: empty value", ErrMalformedTimestamp)
	}
	raw := RawTimestamp{Value: trimmed, Kind: TimestampBareLocal}

	// Only inspect the clock part: the date part always contains dashes.
	clock := trimmed
	if idx := strings.IndexAny(trimmed, "T "); idx >= 0 {
		clock = trimmed[idx+1:]
	}
	if strings.ContainsAny(clock, "+Z") || strings.Contains(clock, "-") {
		raw.Kind = TimestampOffsetBearing
	}
	return raw, nil
}

var (
	offsetLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
	}
	bareLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}
)

// Normalizer converts raw API timestamps into canonical local instants.
// The local offset is fixed, not DST-aware, matching how the remote
// schedule anchors its day boundaries.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer constructs a Normalizer for a fixed UTC offset in hours.
func NewNormalizer(offsetHours int) Normalizer {
	name := fmt.Sprintf("UTC%+d", offsetHours)
	return Normalizer{loc: time.FixedZone(name, offsetHours*3600)}
}

// Location returns the fixed local zone used for ordering and
// date-bucketing.
func (n Normalizer) Location() *time.Location {
	if n.loc == nil {
		return time.UTC
	}
	return n.loc
}

// Normalize converts a classified raw timestamp into a local instant.
// Offset-bearing values are converted into the configured local zone;
// bare values are interpreted as already local. This must run before any
// comparison against a local baseline: an event logged at UTC 01:31 with
// a +8 local offset is local 09:31, not earlier than an 08:00 baseline.
func (n Normalizer) Normalize(raw RawTimestamp) (time.Time, error) {
	loc := n.Location()
	switch raw.Kind {
	case TimestampOffsetBearing:
		for _, layout := range offsetLayouts {
			if t, err := time.Parse(layout, raw.Value); err == nil {
				return t.In(loc), nil
			}
		}
	case TimestampBareLocal:
		for _, layout := range bareLayouts {
			if t, err := time.ParseInLocation(layout, raw.Value, loc); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, raw.Value)
}

// NormalizeString classifies and normalizes in one step.
func (n Normalizer) NormalizeString(value string) (time.Time, error) {
	raw, err := ParseRawTimestamp(value)
	if err != nil {
		return time.Time{}, err
	}
	return n.Normalize(raw)
}
