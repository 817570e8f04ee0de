// Package weather wraps the external forecast provider consumed by the
// weather risk monitor.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrCityNotFound is returned when the provider does not recognize a city
// name. The caller treats it as an isolated, non-fatal failure.
var ErrCityNotFound = errors.New("city not found")

// Sample is one forecast data point.
type Sample struct {
	Timestamp time.Time
	WillRain  bool
}

// Provider answers "what is the forecast for this city".
type Provider interface {
	Forecast(ctx context.Context, city string) ([]Sample, error)
}

const (
	openWeatherBaseURL = "https://api.openweathermap.org/data/2.5/forecast"
	requestTimeout     = 10 * time.Second
)

// OpenWeather is a Provider backed by the OpenWeatherMap 5-day/3-hour
// forecast API.
type OpenWeather struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewOpenWeather builds an OpenWeatherMap provider with a sane client timeout.
func NewOpenWeather(apiKey string) *OpenWeather {
	return &OpenWeather{
		APIKey:  apiKey,
		BaseURL: openWeatherBaseURL,
		Client:  &http.Client{Timeout: requestTimeout},
	}
}

type openWeatherResponse struct {
	List []struct {
		Dt      int64 `json:"dt"`
		Weather []struct {
			Main string `json:"main"`
		} `json:"weather"`
	} `json:"list"`
}

// Forecast fetches the city's upcoming 3-hourly samples, oldest first.
func (ow *OpenWeather) Forecast(ctx context.Context, city string) ([]Sample, error) {
	base := ow.BaseURL
	if base == "" {
		base = openWeatherBaseURL
	}
	u := fmt.Sprintf("%s?q=%s&appid=%s", base, url.QueryEscape(city), ow.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	client := ow.Client
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request for %q: %w", city, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("forecast for %q: %w", city, ErrCityNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast for %q: unexpected status %d", city, resp.StatusCode)
	}

	var body openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode forecast for %q: %w", city, err)
	}

	samples := make([]Sample, 0, len(body.List))
	for _, f := range body.List {
		rain := false
		for _, w := range f.Weather {
			if strings.Contains(strings.ToLower(w.Main), "rain") {
				rain = true
				break
			}
		}
		samples = append(samples, Sample{
			Timestamp: time.Unix(f.Dt, 0).UTC(),
			WillRain:  rain,
		})
	}
	return samples, nil
}

// RainExpected reports whether any of the first n samples indicates rain.
func RainExpected(samples []Sample, n int) bool {
	if n > len(samples) {
		n = len(samples)
	}
	for _, s := range samples[:n] {
		if s.WillRain {
			return true
		}
	}
	return false
}
