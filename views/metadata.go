package views

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"glider-processor/models"
)

// ChannelMeta is the per-channel entry of a dataset side file.
type ChannelMeta struct {
	Name   string            `yaml:"name"`
	Group  string            `yaml:"group,omitempty"`
	Attrs  map[string]string `yaml:"attrs,omitempty"`
	Values int               `yaml:"valid_values"`
}

// DatasetMeta is written next to every committed dataset file as
// <deployment>-<variant>.meta.yaml.
type DatasetMeta struct {
	RunID           string        `yaml:"run_id"`
	Deployment      string        `yaml:"deployment"`
	Variant         string        `yaml:"variant"`
	ProcessedAt     string        `yaml:"processed_at"`
	Processing      string        `yaml:"processing"`
	DeploymentStart string        `yaml:"deployment_start"`
	DeploymentEnd   string        `yaml:"deployment_end"`
	Records         int           `yaml:"records"`
	Profiles        int           `yaml:"profiles"`
	Channels        []ChannelMeta `yaml:"channels"`
}

// BuildMeta describes ds for its side file.
func BuildMeta(runID string, ds *models.Dataset, summary models.ProfileSummary, processing, processedAt string) DatasetMeta {
	m := DatasetMeta{
		RunID:       runID,
		Deployment:  ds.Deployment,
		Variant:     string(ds.Variant),
		ProcessedAt: processedAt,
		Processing:  processing,
		Records:     ds.Len(),
		Profiles:    len(summary),
	}
	if ds.Len() > 0 {
		m.DeploymentStart = models.FormatTime(ds.Time[0])
		m.DeploymentEnd = models.FormatTime(ds.Time[ds.Len()-1])
	}
	for _, c := range ds.Channels() {
		cm := ChannelMeta{Name: c.Name, Group: string(c.Group)}
		if len(c.Attrs) > 0 {
			cm.Attrs = make(map[string]string, len(c.Attrs))
			for k, v := range c.Attrs {
				cm.Attrs[k] = v
			}
		}
		for _, v := range c.Values {
			if !math.IsNaN(v) {
				cm.Values++
			}
		}
		m.Channels = append(m.Channels, cm)
	}
	return m
}

// WriteMeta writes m to path through a part file, renaming on success.
func WriteMeta(path string, m DatasetMeta) error {
	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := os.WriteFile(path+partSuffix, data, 0644); err != nil {
		return fmt.Errorf("write meta %s: %w", path, err)
	}
	if err := os.Rename(path+partSuffix, path); err != nil {
		os.Remove(path + partSuffix)
		return fmt.Errorf("commit meta %s: %w", path, err)
	}
	return nil
}

// ReadMeta loads a side file.
func ReadMeta(path string) (DatasetMeta, error) {
	var m DatasetMeta
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read meta: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse meta %s: %w", path, err)
	}
	return m, nil
}
