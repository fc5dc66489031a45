package views

// Column layouts of every CSV file the pipeline reads or writes. The profile
// summary layout is consumed by downstream tools and must not change.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"glider-processor/models"
)

// TimeColumn is the first column of dataset and decoded-sample files, in
// epoch seconds.
const TimeColumn = "time"

// SummaryColumns is the stable profile summary schema.
var SummaryColumns = models.ProfileRecord{}.CSVHeader()

// DatasetHeader returns the column list of a dataset file.
func DatasetHeader(ds *models.Dataset) []string {
	return append([]string{TimeColumn}, ds.ChannelNames()...)
}

// DatasetRow renders record i of ds. Missing values are empty cells.
func DatasetRow(ds *models.Dataset, i int) []string {
	row := make([]string, 0, len(ds.Channels())+1)
	row = append(row, strconv.FormatFloat(ds.Time[i], 'f', 6, 64))
	for _, v := range ds.Row(i) {
		if math.IsNaN(v) {
			row = append(row, "")
			continue
		}
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return row
}

// ParseValue reads one numeric cell. Empty cells and "nan" are missing.
func ParseValue(s string) (float64, error) {
	if s == "" || s == "nan" || s == "NaN" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ─── profile summary codec ──────────────────────────────────────────────

// ReadSummary parses a profile summary file. The header must match
// SummaryColumns exactly.
func ReadSummary(r io.Reader) (models.ProfileSummary, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(SummaryColumns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("summary header: %w", err)
	}
	for i, col := range SummaryColumns {
		if header[i] != col {
			return nil, fmt.Errorf("summary header column %d: got %q, want %q", i, header[i], col)
		}
	}

	var out models.ProfileSummary
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("summary line %d: %w", line, err)
		}
		p, err := parseSummaryRow(rec)
		if err != nil {
			return nil, fmt.Errorf("summary line %d: %w", line, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadSummary reads a profile summary from path.
func LoadSummary(path string) (models.ProfileSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open summary: %w", err)
	}
	defer f.Close()
	return ReadSummary(f)
}

func parseSummaryRow(rec []string) (models.ProfileRecord, error) {
	var p models.ProfileRecord
	idx, err := strconv.Atoi(rec[0])
	if err != nil {
		return p, fmt.Errorf("profile_index: %w", err)
	}
	dir, err := strconv.Atoi(rec[1])
	if err != nil {
		return p, fmt.Errorf("profile_direction: %w", err)
	}
	p.Index = idx
	p.Direction = models.Direction(dir)

	if p.StartTime, err = parseTime(rec[2]); err != nil {
		return p, fmt.Errorf("start_time: %w", err)
	}
	if p.EndTime, err = parseTime(rec[3]); err != nil {
		return p, fmt.Errorf("end_time: %w", err)
	}
	if p.StartDepth, err = ParseValue(rec[4]); err != nil {
		return p, fmt.Errorf("start_depth: %w", err)
	}
	if p.EndDepth, err = ParseValue(rec[5]); err != nil {
		return p, fmt.Errorf("end_depth: %w", err)
	}
	return p, nil
}

func parseTime(s string) (float64, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return math.NaN(), err
	}
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9, nil
}
