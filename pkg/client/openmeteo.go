package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/bobby-s-dev/firerisk/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultOpenMeteoURL          = "https://api.open-meteo.com/v1"
	DefaultOpenMeteoGeocodingURL = "https://geocoding-api.open-meteo.com/v1"
)

// ErrPlaceNotFound is returned when geocoding yields no match.
var ErrPlaceNotFound = errors.New("place not found")

type OpenMeteoClient struct {
	*BaseClient
	baseURL      string
	geocodingURL string
}

type OpenMeteoCurrentResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Current   struct {
		Time               string  `json:"time"`
		Temperature2M      float64 `json:"temperature_2m"`
		RelativeHumidity2M float64 `json:"relative_humidity_2m"`
		WindSpeed10M       float64 `json:"wind_speed_10m"`
		Precipitation      float64 `json:"precipitation"`
	} `json:"current"`
}

type OpenMeteoGeocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
	} `json:"results"`
}

func NewOpenMeteoClient(baseURL, geocodingURL string, config ClientConfig, logger *zap.Logger) *OpenMeteoClient {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	if geocodingURL == "" {
		geocodingURL = DefaultOpenMeteoGeocodingURL
	}
	return &OpenMeteoClient{
		BaseClient:   NewBaseClient("openmeteo", config, logger),
		baseURL:      baseURL,
		geocodingURL: geocodingURL,
	}
}

func (c *OpenMeteoClient) Name() string { return "openmeteo" }

// CurrentByName geocodes the name and then fetches current conditions.
func (c *OpenMeteoClient) CurrentByName(ctx context.Context, name string) (*models.Reading, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("count", "1")

	body, err := c.Get(ctx, c.geocodingURL+"/search?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to geocode %q: %w", name, err)
	}

	var geo OpenMeteoGeocodingResponse
	if err := json.Unmarshal(body, &geo); err != nil {
		return nil, fmt.Errorf("failed to parse geocoding response: %w", err)
	}
	if len(geo.Results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPlaceNotFound, name)
	}

	match := geo.Results[0]
	reading, err := c.CurrentByCoordinates(ctx, match.Latitude, match.Longitude)
	if err != nil {
		return nil, err
	}
	reading.Place = match.Name
	if match.Country != "" {
		reading.Place += ", " + match.Country
	}
	return reading, nil
}

// CurrentByCoordinates fetches current conditions at a point. Wind speed is
// requested in m/s to match OpenWeatherMap's metric units.
func (c *OpenMeteoClient) CurrentByCoordinates(ctx context.Context, lat, lon float64) (*models.Reading, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,wind_speed_10m,precipitation")
	q.Set("wind_speed_unit", "ms")
	q.Set("timezone", "UTC")

	body, err := c.Get(ctx, c.baseURL+"/forecast?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current weather: %w", err)
	}

	var resp OpenMeteoCurrentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	ts, err := time.Parse("2006-01-02T15:04", resp.Current.Time)
	if err != nil {
		ts = time.Now().UTC()
	}

	return &models.Reading{
		Coordinates: &models.Coordinates{Latitude: resp.Latitude, Longitude: resp.Longitude},
		Observation: models.Observation{
			Temperature: resp.Current.Temperature2M,
			Humidity:    resp.Current.RelativeHumidity2M,
			WindSpeed:   resp.Current.WindSpeed10M,
			Rain:        resp.Current.Precipitation,
		},
		Source:    "openmeteo",
		Timestamp: ts,
	}, nil
}
