package models

import "math"

// Direction of a profile: dive (depth increasing) or climb.
type Direction int

const (
	DirectionDive  Direction = 1
	DirectionClimb Direction = -1
)

func (d Direction) String() string {
	switch d {
	case DirectionDive:
		return "dive"
	case DirectionClimb:
		return "climb"
	}
	return "unknown"
}

// ProfileRecord summarises one contiguous dive or climb.
type ProfileRecord struct {
	Index      int
	Direction  Direction
	StartTime  float64 // epoch seconds
	EndTime    float64
	StartDepth float64 // metres, NaN when the profile carries no valid depth
	EndDepth   float64
	Samples    int // 0 for summaries loaded from storage
}

// Duration returns EndTime - StartTime in seconds.
func (p ProfileRecord) Duration() float64 { return p.EndTime - p.StartTime }

// Contains reports whether t lies in the closed interval [StartTime, EndTime].
func (p ProfileRecord) Contains(t float64) bool {
	return t >= p.StartTime && t <= p.EndTime
}

func (ProfileRecord) CSVHeader() []string {
	return []string{
		"profile_index", "profile_direction",
		"start_time", "end_time", "start_depth", "end_depth",
	}
}

func (p ProfileRecord) CSVRow() []string {
	return []string{
		itoa(p.Index),
		itoa(int(p.Direction)),
		ttoa(p.StartTime),
		ttoa(p.EndTime),
		ftoa(p.StartDepth, 3),
		ftoa(p.EndDepth, 3),
	}
}

// ProfileSummary is the ordered list of profiles of one dataset.
type ProfileSummary []ProfileRecord

// Dives counts the dive profiles.
func (s ProfileSummary) Dives() int {
	n := 0
	for _, p := range s {
		if p.Direction == DirectionDive {
			n++
		}
	}
	return n
}

// MaxIndex returns the largest profile index, or 0 for an empty summary.
func (s ProfileSummary) MaxIndex() int {
	m := 0
	for _, p := range s {
		if p.Index > m {
			m = p.Index
		}
	}
	return m
}

// Span returns the first start and last end time of the summary.
func (s ProfileSummary) Span() (start, end float64) {
	if len(s) == 0 {
		return math.NaN(), math.NaN()
	}
	return s[0].StartTime, s[len(s)-1].EndTime
}
