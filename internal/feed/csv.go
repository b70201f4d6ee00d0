// Package feed loads bar history from CSV files.
//
// Accepted layouts, by column count when there is no header:
//
//	close
//	ts,close
//	ts,open,high,low,close
//	ts,open,high,low,close,volume
//
// With a header row the columns may come in any order and are matched by
// name (ts/time/timestamp/date, open/o, high/h, low/l, close/c/price,
// volume/vol/v). Timestamps may be unix seconds, unix milliseconds or
// RFC3339; prices are parsed as exact decimals.
package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"ta-core/internal/core"
	"ta-core/internal/model"
)

const (
	colTS = iota
	colOpen
	colHigh
	colLow
	colClose
	colVolume
	numCols
)

var headerNames = map[string]int{
	"ts": colTS, "time": colTS, "timestamp": colTS, "date": colTS, "datetime": colTS,
	"open": colOpen, "o": colOpen,
	"high": colHigh, "h": colHigh,
	"low": colLow, "l": colLow,
	"close": colClose, "c": colClose, "price": colClose,
	"volume": colVolume, "vol": colVolume, "v": colVolume,
}

// layout maps a column kind to its index in the record, -1 when absent.
type layout [numCols]int

func positional(n int) (layout, error) {
	l := layout{-1, -1, -1, -1, -1, -1}
	switch n {
	case 1:
		l[colClose] = 0
	case 2:
		l[colTS], l[colClose] = 0, 1
	case 5, 6:
		l[colTS], l[colOpen], l[colHigh], l[colLow], l[colClose] = 0, 1, 2, 3, 4
		if n == 6 {
			l[colVolume] = 5
		}
	default:
		return l, fmt.Errorf("unsupported column count %d", n)
	}
	return l, nil
}

// fromHeader builds a layout from a header row. ok is false when the row
// does not look like a header.
func fromHeader(rec []string) (layout, bool, error) {
	l := layout{-1, -1, -1, -1, -1, -1}
	matched := 0
	for i, name := range rec {
		kind, known := headerNames[strings.ToLower(strings.TrimSpace(name))]
		if !known {
			continue
		}
		if l[kind] >= 0 {
			return l, true, fmt.Errorf("duplicate column %q", name)
		}
		l[kind] = i
		matched++
	}
	if matched == 0 {
		return l, false, nil
	}
	if l[colClose] < 0 {
		return l, true, errors.New("header has no close column")
	}
	ohlc := 0
	for _, k := range []int{colOpen, colHigh, colLow} {
		if l[k] >= 0 {
			ohlc++
		}
	}
	if ohlc != 0 && ohlc != 3 {
		return l, true, errors.New("header must name all of open, high, low or none")
	}
	return l, true, nil
}

func parseErr(line int, err error) error {
	return core.WrapError(core.ErrParse, fmt.Errorf("line %d: %w", line, err))
}

// Read parses bars from CSV. Blank lines are skipped; any malformed field
// fails the whole read with core.ErrParse naming the line.
func Read(r io.Reader) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var (
		bars []model.Bar
		l    layout
		have bool
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.WrapError(core.ErrParse, err)
		}
		line, _ := cr.FieldPos(0)

		if !have {
			hl, isHeader, err := fromHeader(rec)
			if err != nil {
				return nil, parseErr(line, err)
			}
			if isHeader {
				l, have = hl, true
				continue
			}
			if l, err = positional(len(rec)); err != nil {
				return nil, parseErr(line, err)
			}
			have = true
		}

		b, err := parseRecord(rec, l)
		if err != nil {
			return nil, parseErr(line, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseRecord(rec []string, l layout) (model.Bar, error) {
	var b model.Bar
	field := func(kind int) (string, error) {
		idx := l[kind]
		if idx >= len(rec) {
			return "", fmt.Errorf("missing column %d", idx+1)
		}
		return rec[idx], nil
	}

	price := func(kind int, dst *float64) error {
		if l[kind] < 0 {
			return nil
		}
		s, err := field(kind)
		if err != nil {
			return err
		}
		*dst, err = model.ParsePrice(s)
		return err
	}

	for _, k := range []struct {
		kind int
		dst  *float64
	}{
		{colClose, &b.Close}, {colOpen, &b.Open}, {colHigh, &b.High}, {colLow, &b.Low}, {colVolume, &b.Volume},
	} {
		if err := price(k.kind, k.dst); err != nil {
			return b, err
		}
	}
	if l[colOpen] < 0 {
		b.Open, b.High, b.Low = b.Close, b.Close, b.Close
	}
	if b.High < b.Low {
		return b, fmt.Errorf("high %v below low %v", b.High, b.Low)
	}

	if l[colTS] >= 0 {
		s, err := field(colTS)
		if err != nil {
			return b, err
		}
		if b.TS, err = ParseTimestamp(s); err != nil {
			return b, err
		}
	}
	return b, nil
}

// unix seconds stay below this until the year 5138; anything larger is
// taken as milliseconds.
const msThreshold = 1e11

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp converts unix seconds, unix milliseconds or an RFC3339
// (or plain date/datetime, taken as UTC) string to unix milliseconds.
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative timestamp %d", n)
		}
		if n < msThreshold {
			return n * 1000, nil
		}
		return n, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", s)
}

// LoadFile reads bars from a CSV file.
func LoadFile(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	bars, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// ToTFBars tags bars with an instrument and timeframe.
func ToTFBars(bars []model.Bar, exchange, symbol string, tf int) []model.TFBar {
	out := make([]model.TFBar, len(bars))
	for i, b := range bars {
		out[i] = model.TFBar{Symbol: symbol, Exchange: exchange, TF: tf, Bar: b}
	}
	return out
}
