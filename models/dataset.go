package models

import (
	"fmt"
	"math"
)

// Variant names one dataset derived from a deployment.
type Variant string

const (
	VariantRaw         Variant = "raw" // merged, uninterpolated
	VariantEngineering Variant = "eng"
	VariantScience     Variant = "sci"
)

// Reserved channel names added by segmentation and propagation.
const (
	ProfileIndexName     = "profile_index"
	ProfileDirectionName = "profile_direction"
)

// MethodLinearFill is the method attribute of interpolated channels.
const MethodLinearFill = "linear fill"

// Channel is one named column of a Dataset.
type Channel struct {
	Name   string
	Group  Group
	Values []float64
	Attrs  map[string]string
}

// Dataset is a time-indexed collection of channels.
//
// A Dataset is a snapshot: once built, neither Time nor any channel's Values
// are modified. Every transformation returns a new Dataset, which may share
// unchanged columns with its input.
type Dataset struct {
	Deployment string
	Variant    Variant
	Time       []float64 // seconds since the Unix epoch

	channels []*Channel
	index    map[string]int
}

// NewDataset creates an empty dataset over the given time axis.
func NewDataset(deployment string, variant Variant, time []float64) *Dataset {
	return &Dataset{
		Deployment: deployment,
		Variant:    variant,
		Time:       time,
		index:      make(map[string]int),
	}
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.Time) }

// AddChannel appends a column while a dataset is being built.
func (d *Dataset) AddChannel(c *Channel) error {
	if len(c.Values) != len(d.Time) {
		return fmt.Errorf("channel %s: %d values for %d timestamps", c.Name, len(c.Values), len(d.Time))
	}
	if _, dup := d.index[c.Name]; dup {
		return fmt.Errorf("channel %s already present", c.Name)
	}
	d.index[c.Name] = len(d.channels)
	d.channels = append(d.channels, c)
	return nil
}

// Channel returns the named column.
func (d *Dataset) Channel(name string) (*Channel, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.channels[i], true
}

// Values returns the named column's values, or nil when absent.
func (d *Dataset) Values(name string) []float64 {
	c, ok := d.Channel(name)
	if !ok {
		return nil
	}
	return c.Values
}

// Channels returns the columns in insertion order.
func (d *Dataset) Channels() []*Channel {
	out := make([]*Channel, len(d.channels))
	copy(out, d.channels)
	return out
}

// ChannelNames returns the column names in insertion order.
func (d *Dataset) ChannelNames() []string {
	out := make([]string, len(d.channels))
	for i, c := range d.channels {
		out[i] = c.Name
	}
	return out
}

// DataChannels returns every column except the profile assignment columns.
func (d *Dataset) DataChannels() []*Channel {
	var out []*Channel
	for _, c := range d.channels {
		if c.Name == ProfileIndexName || c.Name == ProfileDirectionName {
			continue
		}
		out = append(out, c)
	}
	return out
}

// derive returns a dataset sharing every column with d.
func (d *Dataset) derive() *Dataset {
	out := &Dataset{
		Deployment: d.Deployment,
		Variant:    d.Variant,
		Time:       d.Time,
		channels:   make([]*Channel, len(d.channels)),
		index:      make(map[string]int, len(d.index)),
	}
	copy(out.channels, d.channels)
	for k, v := range d.index {
		out.index[k] = v
	}
	return out
}

// WithVariant returns a snapshot relabelled as another variant.
func (d *Dataset) WithVariant(v Variant) *Dataset {
	out := d.derive()
	out.Variant = v
	return out
}

// WithChannel returns a snapshot where c replaces the column of the same
// name, or is appended when no such column exists.
func (d *Dataset) WithChannel(c *Channel) (*Dataset, error) {
	if len(c.Values) != len(d.Time) {
		return nil, fmt.Errorf("channel %s: %d values for %d timestamps", c.Name, len(c.Values), len(d.Time))
	}
	out := d.derive()
	if i, ok := out.index[c.Name]; ok {
		out.channels[i] = c
		return out, nil
	}
	out.index[c.Name] = len(out.channels)
	out.channels = append(out.channels, c)
	return out, nil
}

// Only returns a snapshot restricted to the named columns, in the given
// order. Unknown names are skipped.
func (d *Dataset) Only(names ...string) *Dataset {
	out := NewDataset(d.Deployment, d.Variant, d.Time)
	for _, n := range names {
		if c, ok := d.Channel(n); ok {
			if _, dup := out.index[n]; dup {
				continue
			}
			out.index[n] = len(out.channels)
			out.channels = append(out.channels, c)
		}
	}
	return out
}

// Select returns a new dataset holding only the records at the given
// positions, in that order.
func (d *Dataset) Select(rows []int) *Dataset {
	t := make([]float64, len(rows))
	for i, r := range rows {
		t[i] = d.Time[r]
	}
	out := NewDataset(d.Deployment, d.Variant, t)
	for _, c := range d.channels {
		nc := &Channel{Name: c.Name, Group: c.Group, Attrs: c.Attrs, Values: make([]float64, len(rows))}
		for i, r := range rows {
			nc.Values[i] = c.Values[r]
		}
		out.index[nc.Name] = len(out.channels)
		out.channels = append(out.channels, nc)
	}
	return out
}

// Row returns the values of every column at record i, in column order.
func (d *Dataset) Row(i int) []float64 {
	row := make([]float64, len(d.channels))
	for j, c := range d.channels {
		row[j] = c.Values[i]
	}
	return row
}

// MissingAt reports whether every listed column is missing at record i.
// With no names, every data column is considered.
func (d *Dataset) MissingAt(i int, names ...string) bool {
	if len(names) == 0 {
		for _, c := range d.DataChannels() {
			if !math.IsNaN(c.Values[i]) {
				return false
			}
		}
		return true
	}
	for _, n := range names {
		if v := d.Values(n); v != nil && !math.IsNaN(v[i]) {
			return false
		}
	}
	return true
}
