package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalDeployment = `
deployment:
  name: unit-01
  min_valid_datetime: "2017-01-01"
  required_science: [pressure]
  segmentation:
    depth_channel: depth
channels:
  - { name: depth,    source: m_depth,            group: eng }
  - { name: pressure, source: sci_water_pressure, group: sci }
`

func TestLoadDeploymentConfigDefaults(t *testing.T) {
	cfg, err := LoadDeploymentConfig(writeFile(t, "deployment.yaml", minimalDeployment))
	if err != nil {
		t.Fatalf("LoadDeploymentConfig: %v", err)
	}
	ctx, err := cfg.Context()
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if ctx.MaxGapSeconds != DefaultMaxGapSeconds || ctx.MinDepthExcursion != 3 || ctx.MinProfileDuration != 60 {
		t.Errorf("defaults not applied: %+v", ctx)
	}
	// depth_ctd is the default but this glider does not carry it
	if ctx.ScienceDepthChannel != "" {
		t.Errorf("science depth channel = %q", ctx.ScienceDepthChannel)
	}
	if ctx.MinValidTime != 1483228800 {
		t.Errorf("min valid time = %v", ctx.MinValidTime)
	}
}

func TestLoadDeploymentConfigShippedFile(t *testing.T) {
	cfg, err := LoadDeploymentConfig(filepath.Join("..", "config", "deployment.yaml"))
	if err != nil {
		t.Fatalf("LoadDeploymentConfig: %v", err)
	}
	ctx, err := cfg.Context()
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if ctx.ScienceDepthChannel != "depth_ctd" || len(ctx.DropRanges) != 1 {
		t.Errorf("context = %+v", ctx)
	}
}

func TestLoadDeploymentConfigRejectsUnknownField(t *testing.T) {
	body := strings.Replace(minimalDeployment, "  required_science", "  max_gap: 30\n  required_science", 1)
	if _, err := LoadDeploymentConfig(writeFile(t, "deployment.yaml", body)); err == nil {
		t.Fatal("want error for unknown field")
	}
}

func TestLoadDeploymentConfigReportsEveryProblem(t *testing.T) {
	body := `
deployment:
  segmentation: {}
channels: []
`
	_, err := LoadDeploymentConfig(writeFile(t, "deployment.yaml", body))
	if err == nil {
		t.Fatal("want error")
	}
	for _, want := range []string{"deployment.name", "min_valid_datetime", "depth_channel", "at least one channel"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("%q lacks %q", err.Error(), want)
		}
	}
}

func TestLoadDeploymentConfigChecksChannelRefs(t *testing.T) {
	body := strings.Replace(minimalDeployment, "[pressure]", "[salinity]", 1)
	_, err := LoadDeploymentConfig(writeFile(t, "deployment.yaml", body))
	if err == nil || !strings.Contains(err.Error(), "salinity") {
		t.Fatalf("err = %v", err)
	}
}

func TestStorageConfigEnvOverride(t *testing.T) {
	body := `
storage:
  base_dir: ./out
  bucket:
    enabled: true
    endpoint: localhost:9000
    bucket: gliders
`
	path := writeFile(t, "storage.yaml", body)
	if _, err := LoadStorageConfig(path); err == nil {
		t.Fatal("want error for missing credentials")
	}

	t.Setenv(EnvS3AccessKey, "key")
	t.Setenv(EnvS3SecretKey, "secret")
	t.Setenv(EnvS3Bucket, "other")
	cfg, err := LoadStorageConfig(path)
	if err != nil {
		t.Fatalf("LoadStorageConfig: %v", err)
	}
	b := cfg.Storage.Bucket
	if b.AccessKey != "key" || b.Bucket != "other" || b.Endpoint != "localhost:9000" {
		t.Errorf("bucket = %+v", b)
	}
}

func TestLoadEnv(t *testing.T) {
	const key = "GLIDER_UTILS_TEST_VALUE"
	t.Cleanup(func() { os.Unsetenv(key) })

	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if err := LoadEnv(writeFile(t, ".env", key+"=from-file\n")); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Errorf("%s = %q", key, got)
	}
}

func TestParseEpoch(t *testing.T) {
	cases := map[string]float64{
		"1659528000":                1659528000,
		"1659528000.5":              1659528000.5,
		"2022-08-03T12:00:00Z":      1659528000,
		"2022-08-03T14:00:00+02:00": 1659528000,
		"2022-08-03T12:00:00":       1659528000,
		"2022-08-03 12:00:00":       1659528000,
		"2022-08-03":                1659484800,
	}
	for in, want := range cases {
		got, err := ParseEpoch(in)
		if err != nil || got != want {
			t.Errorf("ParseEpoch(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "yesterday", "2022-13-01"} {
		if _, err := ParseEpoch(bad); err == nil {
			t.Errorf("ParseEpoch(%q): want error", bad)
		}
	}
	if OutputName("sea063", "sci") != "sea063-sci" {
		t.Error("OutputName")
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"debug": DEBUG, "INFO": INFO, "warning": WARN, "Error": ERROR} {
		if got, err := ParseLevel(in); err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud): want error")
	}
}

func TestLoggerScopes(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger(INFO, &buf)
	scoped := root.With("deployment=unit").With("variant=sci")

	scoped.Debug("hidden")
	scoped.Info("wrote %d rows", 12)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line below level: %q", out)
	}
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "deployment=unit variant=sci  wrote 12 rows") {
		t.Errorf("output = %q", out)
	}
}
