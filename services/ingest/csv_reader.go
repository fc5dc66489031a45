package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"

	"glider-processor/models"
	"glider-processor/utils"
	"glider-processor/views"
)

// CSVReader loads one decoded group file: a "time" column in epoch seconds
// followed by one column per decoder sensor. Columns are mapped to channels
// through the channel table, by source sensor name or by channel name.
// Columns the table does not know, or that belong to the other group, are
// skipped and reported.
type CSVReader struct {
	path  string
	group models.Group
	table *models.ChannelTable

	skipped []string
	rows    uint64
	bad     uint64
}

func NewCSVReader(path string, group models.Group, table *models.ChannelTable) *CSVReader {
	return &CSVReader{path: path, group: group, table: table}
}

// Read parses the whole file into a Source. Unparsable cells become NaN and
// are counted.
func (r *CSVReader) Read(ctx context.Context) (models.Source, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return models.Source{}, fmt.Errorf("open %s: %w", r.path, err)
	}
	defer f.Close()

	src, err := r.decode(ctx, f)
	if err != nil {
		return models.Source{}, fmt.Errorf("read %s: %w", r.path, err)
	}
	utils.L().Info("csv reader loaded      (group=%s, file=%s, rows=%d, channels=%d, skipped=%d, bad_cells=%d)",
		r.group, r.path, len(src.Time), len(src.Channels), len(r.skipped), atomic.LoadUint64(&r.bad))
	return src, nil
}

func (r *CSVReader) decode(ctx context.Context, in io.Reader) (models.Source, error) {
	cr := csv.NewReader(in)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return models.Source{}, fmt.Errorf("header: %w", err)
	}
	if len(header) == 0 || header[0] != views.TimeColumn {
		return models.Source{}, fmt.Errorf("first column must be %q", views.TimeColumn)
	}

	type column struct {
		pos int
		ch  *models.Channel
	}
	var cols []column
	for pos, name := range header[1:] {
		spec, ok := r.table.BySource(name)
		if !ok {
			spec, ok = r.table.Lookup(name)
		}
		if !ok || spec.Group != r.group {
			r.skipped = append(r.skipped, name)
			continue
		}
		cols = append(cols, column{pos: pos + 1, ch: &models.Channel{Name: spec.Name, Group: r.group}})
	}
	if len(r.skipped) > 0 {
		utils.L().Warn("csv reader %s: skipping %d unknown sensor(s): %v", r.path, len(r.skipped), r.skipped)
	}

	src := models.Source{Group: r.group}
	for line := 2; ; line++ {
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return models.Source{}, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.Source{}, fmt.Errorf("line %d: %w", line, err)
		}
		src.Time = append(src.Time, r.cell(rec[0]))
		for _, c := range cols {
			c.ch.Values = append(c.ch.Values, r.cell(rec[c.pos]))
		}
		atomic.AddUint64(&r.rows, 1)
	}

	for _, c := range cols {
		src.Channels = append(src.Channels, c.ch)
	}
	return src, nil
}

func (r *CSVReader) cell(s string) float64 {
	v, err := views.ParseValue(s)
	if err != nil {
		atomic.AddUint64(&r.bad, 1)
		return math.NaN()
	}
	return v
}

// Skipped returns the header names that did not map to a channel of the
// reader's group.
func (r *CSVReader) Skipped() []string {
	return append([]string(nil), r.skipped...)
}

// Stats returns the rows read and the unparsable cells seen.
func (r *CSVReader) Stats() (uint64, uint64) {
	return atomic.LoadUint64(&r.rows), atomic.LoadUint64(&r.bad)
}
