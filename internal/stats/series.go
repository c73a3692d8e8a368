package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"predictivelab/internal/model"
)

var seriesHeader = []string{"tick", "time", "precision", "noise", "load", "error", "confidence", "balance", "regime"}

// WriteCSV writes one row per sample under a fixed header.
func WriteCSV(w io.Writer, samples []model.SignalSample) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(seriesHeader); err != nil {
		return err
	}
	for _, s := range samples {
		if err := writer.Write([]string{
			strconv.Itoa(s.Tick),
			formatFloat(s.Time),
			formatFloat(s.Precision),
			formatFloat(s.Noise),
			formatFloat(s.Load),
			formatFloat(s.Error),
			formatFloat(s.Confidence),
			formatFloat(s.Balance),
			s.Regime,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSV parses a series written by WriteCSV.
func ReadCSV(r io.Reader) ([]model.SignalSample, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.SignalSample{}, nil
		}
		return nil, err
	}
	if len(header) != len(seriesHeader) {
		return nil, fmt.Errorf("series header must have %d columns, got %d", len(seriesHeader), len(header))
	}

	samples := make([]model.SignalSample, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		sample, err := parseRow(record)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func parseRow(record []string) (model.SignalSample, error) {
	tick, err := strconv.Atoi(record[0])
	if err != nil {
		return model.SignalSample{}, fmt.Errorf("parse tick %q: %w", record[0], err)
	}
	values := make([]float64, 7)
	for i := range values {
		v, err := strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return model.SignalSample{}, fmt.Errorf("parse %s %q: %w", seriesHeader[i+1], record[i+1], err)
		}
		values[i] = v
	}
	return model.SignalSample{
		Tick:   tick,
		Time:   values[0],
		Regime: record[8],
		Signals: model.Signals{
			Precision:  values[1],
			Noise:      values[2],
			Load:       values[3],
			Error:      values[4],
			Confidence: values[5],
			Balance:    values[6],
		},
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
