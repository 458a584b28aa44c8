package client

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bobby-s-dev/firerisk/internal/models"
	"go.uber.org/zap"
)

const DefaultFIRMSURL = "https://firms.modaps.eosdis.nasa.gov"

var ErrUnexpectedFIRMSResponse = errors.New("unexpected FIRMS response")

// FIRMSClient downloads hotspot detections from the NASA FIRMS area API.
type FIRMSClient struct {
	*BaseClient
	mapKey  string
	baseURL string
}

type AreaQuery struct {
	Source   string // MODIS_SP, MODIS_NRT, VIIRS_SNPP_SP, ...
	BBox     string // west,south,east,north
	DayRange int
	Date     string // YYYY-MM-DD
}

func NewFIRMSClient(mapKey, baseURL string, config ClientConfig, logger *zap.Logger) *FIRMSClient {
	if baseURL == "" {
		baseURL = DefaultFIRMSURL
	}
	return &FIRMSClient{
		BaseClient: NewBaseClient("firms", config, logger),
		mapKey:     mapKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Area returns detections for the query window.
func (c *FIRMSClient) Area(ctx context.Context, q AreaQuery) ([]models.FireDetection, error) {
	u := fmt.Sprintf("%s/api/area/csv/%s/%s/%s/%d/%s",
		c.baseURL, c.mapKey, q.Source, q.BBox, q.DayRange, q.Date)

	body, err := c.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch FIRMS area: %w", err)
	}
	return ParseFIRMSCSV(bytes.NewReader(body))
}

// ParseFIRMSCSV reads a FIRMS area CSV. VIIRS letter confidences are mapped
// onto the MODIS 0-100 scale.
func ParseFIRMSCSV(r io.Reader) ([]models.FireDetection, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedFIRMSResponse, err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	latIdx, okLat := col["latitude"]
	lonIdx, okLon := col["longitude"]
	if !okLat || !okLon {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedFIRMSResponse, strings.Join(header, ","))
	}
	brightIdx, okBright := col["brightness"]
	if !okBright {
		brightIdx, okBright = col["bright_ti4"]
	}
	confIdx, okConf := col["confidence"]
	dateIdx, okDate := col["acq_date"]

	var out []models.FireDetection
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedFIRMSResponse, err)
		}
		if len(rec) <= latIdx || len(rec) <= lonIdx {
			continue
		}

		lat, err1 := strconv.ParseFloat(rec[latIdx], 64)
		lon, err2 := strconv.ParseFloat(rec[lonIdx], 64)
		if err1 != nil || err2 != nil {
			continue
		}

		d := models.FireDetection{Latitude: lat, Longitude: lon}
		if okBright && brightIdx < len(rec) {
			d.Brightness, _ = strconv.ParseFloat(rec[brightIdx], 64)
		}
		if okConf && confIdx < len(rec) {
			d.Confidence = parseConfidence(rec[confIdx])
		}
		if okDate && dateIdx < len(rec) {
			d.AcqDate = rec[dateIdx]
		}
		out = append(out, d)
	}
	return out, nil
}

func parseConfidence(s string) float64 {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "low":
		return 0
	case "n", "nominal":
		return 50
	case "h", "high":
		return 100
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// FilterConfidence keeps detections at or above threshold.
func FilterConfidence(in []models.FireDetection, threshold float64) []models.FireDetection {
	out := in[:0:0]
	for _, d := range in {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}
