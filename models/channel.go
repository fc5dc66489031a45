package models

import "fmt"

// Group identifies which instrument computer clocked a channel.
type Group string

const (
	GroupEngineering Group = "eng" // flight computer, m_present_time
	GroupScience     Group = "sci" // science computer, sci_m_present_time
)

// Valid reports whether g is one of the two known time bases.
func (g Group) Valid() bool {
	return g == GroupEngineering || g == GroupScience
}

// ChannelSpec describes one configured channel of a deployment.
type ChannelSpec struct {
	Name        string
	Source      string // sensor name as emitted by the decoder, e.g. m_depth
	Group       Group
	NonNegative bool // concentrations, turbidity, ...: negatives are not physical
}

// ChannelTable is the per-deployment channel lookup. It is built once from
// configuration and never modified afterwards.
type ChannelTable struct {
	specs    []ChannelSpec
	byName   map[string]int
	bySource map[string]int
}

// NewChannelTable validates specs and indexes them by name and by source.
func NewChannelTable(specs []ChannelSpec) (*ChannelTable, error) {
	t := &ChannelTable{
		specs:    make([]ChannelSpec, len(specs)),
		byName:   make(map[string]int, len(specs)),
		bySource: make(map[string]int, len(specs)),
	}
	copy(t.specs, specs)

	for i, s := range t.specs {
		if s.Name == "" || s.Source == "" {
			return nil, fmt.Errorf("channel %d: name and source are required", i)
		}
		if !s.Group.Valid() {
			return nil, fmt.Errorf("channel %s: unknown group %q (want eng or sci)", s.Name, s.Group)
		}
		if _, dup := t.byName[s.Name]; dup {
			return nil, fmt.Errorf("channel %s: duplicate name", s.Name)
		}
		if _, dup := t.bySource[s.Source]; dup {
			return nil, fmt.Errorf("channel %s: duplicate source %s", s.Name, s.Source)
		}
		t.byName[s.Name] = i
		t.bySource[s.Source] = i
	}
	return t, nil
}

// Lookup returns the spec registered under a channel name.
func (t *ChannelTable) Lookup(name string) (ChannelSpec, bool) {
	if t == nil {
		return ChannelSpec{}, false
	}
	i, ok := t.byName[name]
	if !ok {
		return ChannelSpec{}, false
	}
	return t.specs[i], true
}

// BySource returns the spec whose decoder sensor name is src.
func (t *ChannelTable) BySource(src string) (ChannelSpec, bool) {
	if t == nil {
		return ChannelSpec{}, false
	}
	i, ok := t.bySource[src]
	if !ok {
		return ChannelSpec{}, false
	}
	return t.specs[i], true
}

// Specs returns a copy of every spec in configuration order.
func (t *ChannelTable) Specs() []ChannelSpec {
	if t == nil {
		return nil
	}
	out := make([]ChannelSpec, len(t.specs))
	copy(out, t.specs)
	return out
}

// Names returns the channel names belonging to group, in configuration order.
func (t *ChannelTable) Names(group Group) []string {
	if t == nil {
		return nil
	}
	var out []string
	for _, s := range t.specs {
		if s.Group == group {
			out = append(out, s.Name)
		}
	}
	return out
}

// Source is one decoded instrument group: a single time base and the
// channels sampled on it.
type Source struct {
	Group    Group
	Time     []float64
	Channels []*Channel
}

// Len returns the number of samples of the group.
func (s Source) Len() int { return len(s.Time) }
