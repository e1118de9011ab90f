package finledger

import "time"

// maxDateSetInstants bounds the worst-case query cost of any analytic view
// driven off a date set, per spec §4.D/§5.
const maxDateSetInstants = 366

// Granularity is the step unit a DateRange advances by.
type Granularity int

const (
	GranularityDays Granularity = iota
	GranularityMonths
	GranularityYears
)

// DateSet is either a contiguous DateRange or an explicit DateValues list.
// Both expose the same read surface: the enumerated instants (capped), the
// earliest, and the latest.
type DateSet interface {
	Instants() []time.Time
	Earliest() time.Time
	Latest() time.Time
}

// DateRange is a half-open-at-top contiguous span [Start, End) stepped at
// Granularity, grounded on original_source/dates.rs's DateRange.
type DateRange struct {
	Start       time.Time
	End         time.Time
	Granularity Granularity
}

func stepDate(t time.Time, g Granularity, n int) time.Time {
	switch g {
	case GranularityMonths:
		return t.AddDate(0, n, 0)
	case GranularityYears:
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

// Instants enumerates every step in [Start, End), capped at
// maxDateSetInstants.
func (r DateRange) Instants() []time.Time {
	var out []time.Time
	for t := r.Start; t.Before(r.End) && len(out) < maxDateSetInstants; t = stepDate(t, r.Granularity, 1) {
		out = append(out, t)
	}
	return out
}

func (r DateRange) Earliest() time.Time { return r.Start }

// Latest returns the last enumerated instant, not the exclusive End bound.
func (r DateRange) Latest() time.Time {
	instants := r.Instants()
	if len(instants) == 0 {
		return r.Start
	}
	return instants[len(instants)-1]
}

// Extend grows each end by prior/after granularity steps, per spec §4.D and
// §4.G.2's smoothing-window preparation.
func (r DateRange) Extend(prior, after int) DateRange {
	return DateRange{
		Start:       stepDate(r.Start, r.Granularity, -prior),
		End:         stepDate(r.End, r.Granularity, after),
		Granularity: r.Granularity,
	}
}

// RestrictToSplits clips Start/End to the actual post_ts range of splits
// (including scheduled expansions) visible under scenario/occurrences, per
// spec §4.D. It never widens the range, only narrows it.
func (r DateRange) RestrictToSplits(s *Store, scenario int64, occurrences Occurrences) (DateRange, error) {
	stream, err := s.SplitStream(r, scenario, occurrences)
	if err != nil {
		return r, err
	}
	if len(stream) == 0 {
		return r, nil
	}
	min, max := stream[0].PostTS, stream[0].PostTS
	for _, e := range stream[1:] {
		if e.PostTS.Before(min) {
			min = e.PostTS
		}
		if e.PostTS.After(max) {
			max = e.PostTS
		}
	}
	out := r
	if min.After(out.Start) {
		out.Start = min
	}
	if max.Before(out.End) {
		out.End = max
	}
	return out, nil
}

// DateValues is an explicit ordered list of instants, e.g. the snapshot
// dates passed to the §6 balance() command.
type DateValues struct {
	Dates []time.Time
}

// Instants returns the list as-is, capped at maxDateSetInstants.
func (v DateValues) Instants() []time.Time {
	if len(v.Dates) <= maxDateSetInstants {
		return v.Dates
	}
	return v.Dates[:maxDateSetInstants]
}

func (v DateValues) Earliest() time.Time {
	if len(v.Dates) == 0 {
		return time.Time{}
	}
	min := v.Dates[0]
	for _, d := range v.Dates[1:] {
		if d.Before(min) {
			min = d
		}
	}
	return min
}

func (v DateValues) Latest() time.Time {
	if len(v.Dates) == 0 {
		return time.Time{}
	}
	max := v.Dates[0]
	for _, d := range v.Dates[1:] {
		if d.After(max) {
			max = d
		}
	}
	return max
}
