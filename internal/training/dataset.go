package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bobby-s-dev/firerisk/internal/features"
	"github.com/bobby-s-dev/firerisk/internal/models"
)

var ErrNoLabelColumn = errors.New("dataset has neither a fire nor an area column")

// Dataset is a labeled feature matrix in features.Names order.
type Dataset struct {
	Name string
	X    [][]float64
	Y    []int
}

func (d *Dataset) Len() int { return len(d.Y) }

func (d *Dataset) Positives() int {
	var n int
	for _, y := range d.Y {
		n += y
	}
	return n
}

// SampleHeader is the column layout of a built training CSV.
var SampleHeader = []string{
	"latitude", "longitude", "date",
	"temp", "RH", "wind", "rain",
	"FFMC", "DMC", "DC", "ISI",
	"fire",
}

// LoadCSV reads a dataset from path. See ReadCSV.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, filepath.Base(path))
}

// ReadCSV reads any CSV that carries the eight feature columns by name.
// The label is the "fire" column when present, else "area" > 0 (the UCI
// forest fires layout). Other columns are ignored.
func ReadCSV(r io.Reader, name string) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}

	var featureIdx [features.Size]int
	for j, n := range features.Names {
		i, ok := col[n]
		if !ok {
			return nil, fmt.Errorf("dataset is missing column %q", n)
		}
		featureIdx[j] = i
	}

	labelIdx, fireLabel := col["fire"]
	if !fireLabel {
		var ok bool
		if labelIdx, ok = col["area"]; !ok {
			return nil, ErrNoLabelColumn
		}
	}

	ds := &Dataset{Name: name}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := make([]float64, features.Size)
		for j, i := range featureIdx {
			if row[j], err = strconv.ParseFloat(rec[i], 64); err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, features.Names[j], err)
			}
		}

		v, err := strconv.ParseFloat(rec[labelIdx], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d label: %w", line, err)
		}
		label := 0
		if (fireLabel && v == 1) || (!fireLabel && v > 0) {
			label = 1
		}

		ds.X = append(ds.X, row)
		ds.Y = append(ds.Y, label)
	}

	if ds.Len() == 0 {
		return nil, fmt.Errorf("dataset %s has no rows", name)
	}
	return ds, nil
}

// FromSamples converts built samples into a Dataset.
func FromSamples(name string, samples []models.Sample) *Dataset {
	ds := &Dataset{
		Name: name,
		X:    make([][]float64, len(samples)),
		Y:    make([]int, len(samples)),
	}
	for i, s := range samples {
		ds.X[i] = features.Assemble(s.Indices, s.Observation).Slice()
		ds.Y[i] = s.Fire
	}
	return ds
}

// WriteSamples writes samples in SampleHeader layout.
func WriteSamples(w io.Writer, samples []models.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SampleHeader); err != nil {
		return err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, s := range samples {
		rec := []string{
			f(s.Latitude), f(s.Longitude), s.Date,
			f(s.Observation.Temperature), f(s.Observation.Humidity), f(s.Observation.WindSpeed), f(s.Observation.Rain),
			f(s.Indices.FFMC), f(s.Indices.DMC), f(s.Indices.DC), f(s.Indices.ISI),
			strconv.Itoa(s.Fire),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func SaveSamples(path string, samples []models.Sample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteSamples(f, samples); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// LoadFires reads a FIRMS CSV as written by cmd/firms.
func LoadFires(path string) ([]models.FireDetection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fires: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read fires header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	latIdx, ok1 := col["latitude"]
	lonIdx, ok2 := col["longitude"]
	dateIdx, ok3 := col["acq_date"]
	if !ok1 || !ok2 || !ok3 {
		return nil, errors.New("fires file needs latitude, longitude and acq_date columns")
	}

	var out []models.FireDetection
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		lat, err1 := strconv.ParseFloat(rec[latIdx], 64)
		lon, err2 := strconv.ParseFloat(rec[lonIdx], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		d := models.FireDetection{Latitude: lat, Longitude: lon, AcqDate: rec[dateIdx]}
		if i, ok := col["confidence"]; ok {
			d.Confidence, _ = strconv.ParseFloat(rec[i], 64)
		}
		if i, ok := col["brightness"]; ok {
			d.Brightness, _ = strconv.ParseFloat(rec[i], 64)
		}
		out = append(out, d)
	}
	return out, nil
}

// SaveFires writes detections with the columns LoadFires expects.
func SaveFires(path string, fires []models.FireDetection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(f)
	cw.Write([]string{"latitude", "longitude", "brightness", "acq_date", "confidence"})
	for _, d := range fires {
		cw.Write([]string{
			strconv.FormatFloat(d.Latitude, 'f', -1, 64),
			strconv.FormatFloat(d.Longitude, 'f', -1, 64),
			strconv.FormatFloat(d.Brightness, 'f', -1, 64),
			d.AcqDate,
			strconv.FormatFloat(d.Confidence, 'f', -1, 64),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
