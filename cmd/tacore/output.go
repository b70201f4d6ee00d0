package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"ta-core/internal/batch"
	"ta-core/internal/model"
)

// writeSeries renders compute output. csv has one row per bar: ts, then a
// value column per series followed by one "name.field" column per field.
func writeSeries(w io.Writer, format string, bars []model.Bar, series []batch.Series) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(series)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(series); err != nil {
			return err
		}
		return enc.Close()
	case "csv":
		return writeCSV(w, bars, series)
	default:
		return fmt.Errorf("unknown format %q (want json, csv or yaml)", format)
	}
}

func writeCSV(w io.Writer, bars []model.Bar, series []batch.Series) error {
	fieldNames := make([][]string, len(series))
	header := []string{"ts"}
	for i, s := range series {
		set := make(map[string]struct{})
		for _, p := range s.Points {
			for k := range p.Fields {
				set[k] = struct{}{}
			}
		}
		for k := range set {
			fieldNames[i] = append(fieldNames[i], k)
		}
		sort.Strings(fieldNames[i])

		header = append(header, s.Name)
		for _, f := range fieldNames[i] {
			header = append(header, s.Name+"."+f)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, b := range bars {
		row = row[:0]
		row = append(row, strconv.FormatInt(b.TS, 10))
		for j, s := range series {
			p := s.Points[i]
			if p.Value != nil {
				row = append(row, formatFloat(*p.Value))
			} else {
				row = append(row, "")
			}
			for _, f := range fieldNames[j] {
				if v, ok := p.Fields[f]; ok {
					row = append(row, formatFloat(v))
				} else {
					row = append(row, "")
				}
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatFloat renders a csv cell, with --precision decimals when set.
func formatFloat(v float64) string {
	if computePrecision >= 0 {
		return model.FormatPrice(v, int32(computePrecision))
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
