package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/bobby-s-dev/firerisk/internal/models"
	"go.uber.org/zap"
)

const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5"

type OpenWeatherClient struct {
	*BaseClient
	apiKey  string
	baseURL string
}

type OpenWeatherCurrentResponse struct {
	Coord struct {
		Lon float64 `json:"lon"`
		Lat float64 `json:"lat"`
	} `json:"coord"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain *struct {
		OneHour float64 `json:"1h"`
	} `json:"rain,omitempty"`
	Dt   int64  `json:"dt"`
	Name string `json:"name"`
}

func NewOpenWeatherClient(apiKey, baseURL string, config ClientConfig, logger *zap.Logger) *OpenWeatherClient {
	if baseURL == "" {
		baseURL = DefaultOpenWeatherURL
	}
	return &OpenWeatherClient{
		BaseClient: NewBaseClient("openweathermap", config, logger),
		apiKey:     apiKey,
		baseURL:    baseURL,
	}
}

func (c *OpenWeatherClient) Name() string { return "openweathermap" }

// CurrentByName looks up current conditions for a free-text place name.
func (c *OpenWeatherClient) CurrentByName(ctx context.Context, name string) (*models.Reading, error) {
	q := url.Values{}
	q.Set("q", name)
	reading, err := c.current(ctx, q)
	if err != nil {
		return nil, err
	}
	if reading.Place == "" {
		reading.Place = name
	}
	return reading, nil
}

// CurrentByCoordinates looks up current conditions at a point.
func (c *OpenWeatherClient) CurrentByCoordinates(ctx context.Context, lat, lon float64) (*models.Reading, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	return c.current(ctx, q)
}

func (c *OpenWeatherClient) current(ctx context.Context, q url.Values) (*models.Reading, error) {
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	body, err := c.Get(ctx, c.baseURL+"/weather?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current weather: %w", err)
	}

	var resp OpenWeatherCurrentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return resp.toReading(), nil
}

func (r *OpenWeatherCurrentResponse) toReading() *models.Reading {
	obs := models.Observation{
		Temperature: r.Main.Temp,
		Humidity:    r.Main.Humidity,
		WindSpeed:   r.Wind.Speed,
	}
	if r.Rain != nil {
		obs.Rain = r.Rain.OneHour
	}

	ts := time.Now().UTC()
	if r.Dt > 0 {
		ts = time.Unix(r.Dt, 0).UTC()
	}

	return &models.Reading{
		Place:       r.Name,
		Coordinates: &models.Coordinates{Latitude: r.Coord.Lat, Longitude: r.Coord.Lon},
		Observation: obs,
		Source:      "openweathermap",
		Timestamp:   ts,
	}
}
