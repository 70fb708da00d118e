// Package csvfile loads daily bars from local CSV files, one file per symbol,
// in the common export layout: Date,Open,High,Low,Close,Volume.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/quantbt/internal/core"
)

const dateLayout = "2006-01-02"

// CSVFile serves histories from <dir>/<SYMBOL>.csv.
type CSVFile struct {
	dir string
}

// New creates a provider rooted at dir.
func New(dir string) *CSVFile {
	return &CSVFile{dir: dir}
}

func (c *CSVFile) Name() string {
	return "csvfile"
}

// FetchHistory reads the symbol's file and returns bars inside [start, end].
// Rows are expected in ascending date order; the series validator catches
// files that are not.
func (c *CSVFile) FetchHistory(ctx context.Context, symbol string, start, end time.Time) (core.PriceSeries, error) {
	path := filepath.Join(c.dir, symbol+".csv")

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return core.PriceSeries{}, core.WrapError(core.ErrSymbolNotFound,
				fmt.Errorf("no data file for %s at %s", symbol, path))
		}
		return core.PriceSeries{}, core.WrapError(core.ErrStorageFailed, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return core.PriceSeries{}, core.WrapError(core.ErrDataIntegrity,
			fmt.Errorf("reading header of %s: %w", path, err))
	}
	cols, err := mapColumns(header)
	if err != nil {
		return core.PriceSeries{}, core.WrapError(core.ErrDataIntegrity,
			fmt.Errorf("%s: %w", path, err))
	}

	var bars []core.Bar
	line := 1
	for {
		select {
		case <-ctx.Done():
			return core.PriceSeries{}, ctx.Err()
		default:
		}

		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return core.PriceSeries{}, core.WrapError(core.ErrDataIntegrity,
				fmt.Errorf("reading %s line %d: %w", path, line+1, err))
		}
		line++

		bar, err := parseBar(symbol, record, cols)
		if err != nil {
			return core.PriceSeries{}, core.WrapError(core.ErrDataIntegrity,
				fmt.Errorf("%s line %d: %w", path, line, err))
		}

		if bar.Time.Before(start) || bar.Time.After(end) {
			continue
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return core.PriceSeries{}, core.WrapError(core.ErrNoData,
			fmt.Errorf("%s has no bars in requested range", path))
	}

	return core.PriceSeries{Symbol: symbol, Bars: bars}, nil
}

// columns holds the index of each required field in the file's header.
type columns struct {
	date, open, high, low, closepx, volume int
}

func mapColumns(header []string) (columns, error) {
	idx := map[string]int{}
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}

	cols := columns{date: -1, open: -1, high: -1, low: -1, closepx: -1, volume: -1}
	lookup := map[string]*int{
		"date":   &cols.date,
		"open":   &cols.open,
		"high":   &cols.high,
		"low":    &cols.low,
		"close":  &cols.closepx,
		"volume": &cols.volume,
	}
	for name, dst := range lookup {
		i, ok := idx[name]
		if !ok {
			return columns{}, fmt.Errorf("missing column %q", name)
		}
		*dst = i
	}
	return cols, nil
}

func parseBar(symbol string, record []string, cols columns) (core.Bar, error) {
	t, err := time.ParseInLocation(dateLayout, record[cols.date], time.UTC)
	if err != nil {
		return core.Bar{}, fmt.Errorf("bad date %q: %w", record[cols.date], err)
	}

	field := func(i int, name string) (float64, error) {
		v, err := strconv.ParseFloat(record[i], 64)
		if err != nil {
			return 0, fmt.Errorf("bad %s %q: %w", name, record[i], err)
		}
		return v, nil
	}

	open, err := field(cols.open, "open")
	if err != nil {
		return core.Bar{}, err
	}
	high, err := field(cols.high, "high")
	if err != nil {
		return core.Bar{}, err
	}
	low, err := field(cols.low, "low")
	if err != nil {
		return core.Bar{}, err
	}
	closepx, err := field(cols.closepx, "close")
	if err != nil {
		return core.Bar{}, err
	}
	volume, err := strconv.ParseInt(record[cols.volume], 10, 64)
	if err != nil {
		return core.Bar{}, fmt.Errorf("bad volume %q: %w", record[cols.volume], err)
	}

	return core.Bar{
		Symbol: symbol,
		Time:   t,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closepx,
		Volume: volume,
	}, nil
}
