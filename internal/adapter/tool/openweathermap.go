package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"parley/internal/infra/config"
)

const maxWeatherBodySize = 256 * 1024 // 256KB

// openWeatherResponse models the relevant portion of the OpenWeatherMap
// current-weather JSON response.
type openWeatherResponse struct {
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// OpenWeatherMapBackend fetches current conditions from the OpenWeatherMap
// /data/2.5/weather endpoint, metric units.
type OpenWeatherMapBackend struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewOpenWeatherMapBackend creates the backend. An empty API key is allowed;
// lookups then fail with ErrWeatherNoAPIKey so the tool can degrade cleanly.
func NewOpenWeatherMapBackend(cfg config.ToolsConfig, logger *slog.Logger) *OpenWeatherMapBackend {
	baseURL := strings.TrimRight(cfg.WeatherBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	timeout := cfg.WeatherTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenWeatherMapBackend{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  cfg.WeatherAPIKey,
		logger:  logger,
	}
}

func (b *OpenWeatherMapBackend) Current(ctx context.Context, lat, lon float64) (*WeatherReport, error) {
	if b.apiKey == "" {
		return nil, ErrWeatherNoAPIKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("appid", b.apiKey)
	q.Set("units", "metric")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWeatherBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrWeatherUnauthorized
	case http.StatusNotFound:
		return nil, ErrWeatherNotFound
	default:
		return nil, fmt.Errorf("weather request failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var owm openWeatherResponse
	if err := json.Unmarshal(body, &owm); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(owm.Weather) == 0 {
		return nil, fmt.Errorf("parse response: missing weather block")
	}

	// The API omits a place name for open-sea coordinates.
	location := strings.TrimSpace(owm.Name)
	if location == "" {
		location = fmt.Sprintf("lat %v, lon %v", lat, lon)
	}

	report := &WeatherReport{
		Location:    location,
		Description: owm.Weather[0].Description,
		Temperature: owm.Main.Temp,
		FeelsLike:   owm.Main.FeelsLike,
		Humidity:    owm.Main.Humidity,
		WindSpeed:   owm.Wind.Speed,
	}
	b.logger.Debug("weather fetched", "location", report.Location)
	return report, nil
}
