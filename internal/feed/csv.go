// Package feed provides file-backed price sources for deterministic runs.
package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"intraday-botv1/internal/model"
)

// ErrExhausted is returned when every row of the file has been served.
var ErrExhausted = errors.New("feed: price file exhausted")

// CSVSource replays price samples from a CSV file, one row per fetch, in
// file order. Rows are `time,price` or `time,price,high,low,close` with an
// RFC 3339 timestamp; a header row is detected and skipped.
type CSVSource struct {
	mu      sync.Mutex
	samples []model.PriceSample
	next    int
}

// OpenCSV loads the whole file up front so fetches never touch the disk.
func OpenCSV(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var samples []model.PriceSample
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: %s: %w", path, err)
		}
		line++

		s, err := parseRow(rec)
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("feed: %s line %d: %w", path, line, err)
		}
		samples = append(samples, s)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("feed: %s holds no samples", path)
	}
	return &CSVSource{samples: samples}, nil
}

func parseRow(rec []string) (model.PriceSample, error) {
	if len(rec) != 2 && len(rec) != 5 {
		return model.PriceSample{}, fmt.Errorf("want 2 or 5 fields, got %d", len(rec))
	}
	ts, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return model.PriceSample{}, err
	}
	price, err := strconv.ParseFloat(rec[1], 64)
	if err != nil {
		return model.PriceSample{}, err
	}
	s := model.PriceSample{Time: ts, Price: price}
	if len(rec) == 5 {
		for i, dst := range []*float64{&s.High, &s.Low, &s.Close} {
			v, err := strconv.ParseFloat(rec[2+i], 64)
			if err != nil {
				return model.PriceSample{}, err
			}
			*dst = v
		}
	}
	return s, nil
}

// FetchPrice serves the next row. Returns ErrExhausted past the last row.
func (s *CSVSource) FetchPrice(ctx context.Context, c model.Contract) (model.PriceSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.samples) {
		return model.PriceSample{}, ErrExhausted
	}
	out := s.samples[s.next]
	s.next++
	return out, nil
}

// Len returns the number of samples loaded.
func (s *CSVSource) Len() int { return len(s.samples) }

// Start returns the timestamp of the first sample.
func (s *CSVSource) Start() time.Time { return s.samples[0].Time }

// Remaining returns how many samples are still unserved.
func (s *CSVSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples) - s.next
}
