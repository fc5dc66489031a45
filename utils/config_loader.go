package utils

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"glider-processor/models"
)

// Defaults applied when deployment.yaml leaves a field out.
const (
	DefaultMaxGapSeconds       = 60.0
	DefaultMinDepthExcursion   = 3.0
	DefaultMinProfileDuration  = 60.0
	DefaultScienceDepthChannel = "depth_ctd"
)

// ─── Deployment configs ─────────────────────────────────────────────────

type ChannelConfig struct {
	Name        string `yaml:"name"`
	Source      string `yaml:"source"`
	Group       string `yaml:"group"` // "eng" or "sci"
	NonNegative bool   `yaml:"non_negative"`
}

type DropRangeConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"` // empty: single instant at Start
}

type SegmentationConfig struct {
	DepthChannel       string   `yaml:"depth_channel"`
	MinDepthExcursion  *float64 `yaml:"min_depth_excursion"`
	MinProfileDuration *float64 `yaml:"min_profile_duration"`
}

type SimulationConfig struct {
	Enabled         bool    `yaml:"enabled"`
	DurationSeconds int     `yaml:"duration_seconds"`
	Start           string  `yaml:"start"`
	EngPeriodSec    float64 `yaml:"eng_period_seconds"`
	SciPeriodSec    float64 `yaml:"sci_period_seconds"`
	MaxDepth        float64 `yaml:"max_depth"`
	VerticalSpeed   float64 `yaml:"vertical_speed"`
	Seed            int64   `yaml:"seed"`
}

type DeploymentSection struct {
	Name                string             `yaml:"name"`
	MinValidDatetime    string             `yaml:"min_valid_datetime"`
	MaxGapSeconds       *float64           `yaml:"max_gap_seconds"`
	ScienceDepthChannel string             `yaml:"science_depth_channel"`
	RequiredScience     []string           `yaml:"required_science"`
	DropRanges          []DropRangeConfig  `yaml:"drop_ranges"`
	Segmentation        SegmentationConfig `yaml:"segmentation"`
}

// DeploymentConfig is the top-level structure for deployment.yaml.
type DeploymentConfig struct {
	Deployment DeploymentSection `yaml:"deployment"`
	Channels   []ChannelConfig   `yaml:"channels"`
	Simulation SimulationConfig  `yaml:"simulation"`
}

// ─── Storage configs ────────────────────────────────────────────────────

type CSVStorageConfig struct {
	BufferSizeKB int  `yaml:"buffer_size_kb"`
	WriteHeader  bool `yaml:"write_header"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // empty disables the summary database
}

type BucketConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
}

type StorageConfig struct {
	Storage struct {
		BaseDir   string           `yaml:"base_dir"`
		CSV       CSVStorageConfig `yaml:"csv"`
		Database  DatabaseConfig   `yaml:"database"`
		Bucket    BucketConfig     `yaml:"bucket"`
		Overwrite bool             `yaml:"overwrite"`
	} `yaml:"storage"`
}

// ─── Loaders ────────────────────────────────────────────────────────────

// decodeStrict rejects fields the config structs do not declare.
func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// LoadDeploymentConfig reads, parses and validates deployment.yaml.
func LoadDeploymentConfig(path string) (*DeploymentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deployment config: %w", err)
	}
	var cfg DeploymentConfig
	if err := decodeStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse deployment config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deployment config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadStorageConfig reads and parses storage.yaml, then applies bucket
// credentials from the environment.
func LoadStorageConfig(path string) (*StorageConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storage config: %w", err)
	}
	var cfg StorageConfig
	if err := decodeStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse storage config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadEnv loads a .env file into the process environment. A missing file
// is not an error: the OS environment is used as is.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			L().Debug("no env file at %s, using OS environment", path)
			return nil
		}
		return fmt.Errorf("load env %s: %w", path, err)
	}
	return nil
}

// ─── Defaults & validation ──────────────────────────────────────────────

func (c *DeploymentConfig) applyDefaults() {
	d := &c.Deployment
	if d.MaxGapSeconds == nil {
		v := DefaultMaxGapSeconds
		d.MaxGapSeconds = &v
	}
	if d.ScienceDepthChannel == "" {
		d.ScienceDepthChannel = DefaultScienceDepthChannel
	}
	if d.Segmentation.MinDepthExcursion == nil {
		v := DefaultMinDepthExcursion
		d.Segmentation.MinDepthExcursion = &v
	}
	if d.Segmentation.MinProfileDuration == nil {
		v := DefaultMinProfileDuration
		d.Segmentation.MinProfileDuration = &v
	}
}

// Validate reports every missing required field and bad value at once.
func (c *DeploymentConfig) Validate() error {
	var errs []error
	d := c.Deployment
	if d.Name == "" {
		errs = append(errs, errors.New("deployment.name is required"))
	}
	if d.MinValidDatetime == "" {
		errs = append(errs, errors.New("deployment.min_valid_datetime is required"))
	} else if _, err := ParseEpoch(d.MinValidDatetime); err != nil {
		errs = append(errs, fmt.Errorf("deployment.min_valid_datetime: %w", err))
	}
	if d.Segmentation.DepthChannel == "" {
		errs = append(errs, errors.New("deployment.segmentation.depth_channel is required"))
	}
	if len(c.Channels) == 0 {
		errs = append(errs, errors.New("channels: at least one channel is required"))
	}
	for i, r := range d.DropRanges {
		if _, err := parseRange(r); err != nil {
			errs = append(errs, fmt.Errorf("deployment.drop_ranges[%d]: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	// the remaining checks need a fully built context
	if _, err := c.Context(); err != nil {
		return err
	}
	return nil
}

// Context builds the immutable deployment context handed to the pipeline.
func (c *DeploymentConfig) Context() (*models.DeploymentContext, error) {
	specs := make([]models.ChannelSpec, len(c.Channels))
	for i, ch := range c.Channels {
		specs[i] = models.ChannelSpec{
			Name:        ch.Name,
			Source:      ch.Source,
			Group:       models.Group(ch.Group),
			NonNegative: ch.NonNegative,
		}
	}
	table, err := models.NewChannelTable(specs)
	if err != nil {
		return nil, fmt.Errorf("channels: %w", err)
	}

	d := c.Deployment
	minValid, err := ParseEpoch(d.MinValidDatetime)
	if err != nil {
		return nil, fmt.Errorf("deployment.min_valid_datetime: %w", err)
	}
	ranges := make([]models.TimeRange, 0, len(d.DropRanges))
	for i, r := range d.DropRanges {
		tr, err := parseRange(r)
		if err != nil {
			return nil, fmt.Errorf("deployment.drop_ranges[%d]: %w", i, err)
		}
		ranges = append(ranges, tr)
	}

	ctx := &models.DeploymentContext{
		Name:                d.Name,
		MinValidTime:        minValid,
		MaxGapSeconds:       deref(d.MaxGapSeconds, DefaultMaxGapSeconds),
		DepthChannel:        d.Segmentation.DepthChannel,
		ScienceDepthChannel: d.ScienceDepthChannel,
		MinDepthExcursion:   deref(d.Segmentation.MinDepthExcursion, DefaultMinDepthExcursion),
		MinProfileDuration:  deref(d.Segmentation.MinProfileDuration, DefaultMinProfileDuration),
		DropRanges:          ranges,
		RequiredScience:     append([]string(nil), d.RequiredScience...),
		Channels:            table,
	}
	if _, ok := table.Lookup(ctx.ScienceDepthChannel); !ok && d.ScienceDepthChannel == DefaultScienceDepthChannel {
		// default not configured for this glider: no science depth cross-check
		ctx.ScienceDepthChannel = ""
	}
	if err := ctx.Validate(); err != nil {
		return nil, err
	}
	return ctx, nil
}

func parseRange(r DropRangeConfig) (models.TimeRange, error) {
	start, err := ParseEpoch(r.Start)
	if err != nil {
		return models.TimeRange{}, fmt.Errorf("start: %w", err)
	}
	end := start
	if r.End != "" {
		if end, err = ParseEpoch(r.End); err != nil {
			return models.TimeRange{}, fmt.Errorf("end: %w", err)
		}
	}
	if end < start {
		return models.TimeRange{}, fmt.Errorf("end %s before start %s", r.End, r.Start)
	}
	return models.TimeRange{Start: start, End: end}, nil
}

func deref(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// Environment variables overriding storage.bucket.
const (
	EnvS3Endpoint  = "GLIDER_S3_ENDPOINT"
	EnvS3AccessKey = "GLIDER_S3_ACCESS_KEY"
	EnvS3SecretKey = "GLIDER_S3_SECRET_KEY"
	EnvS3Bucket    = "GLIDER_S3_BUCKET"
)

// ApplyEnv overrides bucket settings with any non-empty environment value.
func (c *StorageConfig) ApplyEnv() {
	b := &c.Storage.Bucket
	for env, dst := range map[string]*string{
		EnvS3Endpoint:  &b.Endpoint,
		EnvS3AccessKey: &b.AccessKey,
		EnvS3SecretKey: &b.SecretKey,
		EnvS3Bucket:    &b.Bucket,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

// Validate checks the fields needed by the enabled outputs.
func (c *StorageConfig) Validate() error {
	var errs []error
	s := c.Storage
	if s.BaseDir == "" {
		errs = append(errs, errors.New("storage.base_dir is required"))
	}
	if s.CSV.BufferSizeKB < 0 {
		errs = append(errs, errors.New("storage.csv.buffer_size_kb must be >= 0"))
	}
	if s.Bucket.Enabled {
		if s.Bucket.Endpoint == "" {
			errs = append(errs, fmt.Errorf("storage.bucket.endpoint (or %s) is required", EnvS3Endpoint))
		}
		if s.Bucket.Bucket == "" {
			errs = append(errs, fmt.Errorf("storage.bucket.bucket (or %s) is required", EnvS3Bucket))
		}
		if s.Bucket.AccessKey == "" || s.Bucket.SecretKey == "" {
			errs = append(errs, fmt.Errorf("bucket credentials missing (%s / %s)", EnvS3AccessKey, EnvS3SecretKey))
		}
	}
	return errors.Join(errs...)
}
