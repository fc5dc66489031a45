package models

import (
	"errors"
	"fmt"
	"math"
)

// TimeRange is a closed interval of epoch seconds. Start == End denotes a
// single instant.
type TimeRange struct {
	Start float64
	End   float64
}

// Contains reports whether t lies in [Start, End].
func (r TimeRange) Contains(t float64) bool { return t >= r.Start && t <= r.End }

// DeploymentContext holds the immutable parameters of one processing run.
// It is built once from configuration and passed explicitly to every stage.
type DeploymentContext struct {
	Name                string
	MinValidTime        float64 // epoch seconds; earlier records are dropped
	MaxGapSeconds       float64
	DepthChannel        string // segmentation depth of the raw and eng variants
	ScienceDepthChannel string // CTD depth carried by the sci variant
	MinDepthExcursion   float64
	MinProfileDuration  float64
	DropRanges          []TimeRange
	RequiredScience     []string // sci rows missing any of these are dropped
	Channels            *ChannelTable
}

// Validate checks the invariants every stage relies on.
func (c *DeploymentContext) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if math.IsNaN(c.MinValidTime) || math.IsInf(c.MinValidTime, 0) {
		errs = append(errs, errors.New("min valid time must be finite"))
	}
	if !(c.MaxGapSeconds > 0) {
		errs = append(errs, fmt.Errorf("max gap must be positive, got %v", c.MaxGapSeconds))
	}
	if !(c.MinDepthExcursion > 0) {
		errs = append(errs, fmt.Errorf("min depth excursion must be > 0, got %v", c.MinDepthExcursion))
	}
	if c.MinProfileDuration < 0 {
		errs = append(errs, fmt.Errorf("min profile duration must be >= 0, got %v", c.MinProfileDuration))
	}
	if c.Channels == nil {
		errs = append(errs, errors.New("channel table is required"))
	} else {
		if _, ok := c.Channels.Lookup(c.DepthChannel); !ok {
			errs = append(errs, fmt.Errorf("depth channel %q not in channel table", c.DepthChannel))
		}
		if c.ScienceDepthChannel != "" {
			if s, ok := c.Channels.Lookup(c.ScienceDepthChannel); !ok || s.Group != GroupScience {
				errs = append(errs, fmt.Errorf("science depth channel %q is not a sci channel", c.ScienceDepthChannel))
			}
		}
		for _, n := range c.RequiredScience {
			if s, ok := c.Channels.Lookup(n); !ok || s.Group != GroupScience {
				errs = append(errs, fmt.Errorf("required channel %q is not a sci channel", n))
			}
		}
	}
	for i, r := range c.DropRanges {
		if r.End < r.Start {
			errs = append(errs, fmt.Errorf("drop range %d ends before it starts", i))
		}
	}
	return errors.Join(errs...)
}
