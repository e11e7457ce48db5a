package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"parley/internal/domain"
	"parley/internal/infra/tracer"
)

// WeatherReport is the payload the weather tool hands back to the model.
type WeatherReport struct {
	Location    string  `json:"location"`
	Description string  `json:"description"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
}

// Weather backend failure modes. The tool maps each to a degraded payload;
// none of them ever fail the turn.
var (
	ErrWeatherNoAPIKey     = errors.New("weather api key not configured")
	ErrWeatherUnauthorized = errors.New("weather api key rejected")
	ErrWeatherNotFound     = errors.New("weather location not found")
)

// WeatherBackend abstracts the upstream weather service.
type WeatherBackend interface {
	Current(ctx context.Context, lat, lon float64) (*WeatherReport, error)
}

// WeatherTool reports current conditions for a coordinate pair.
type WeatherTool struct {
	backend WeatherBackend
	logger  *slog.Logger
}

// NewWeatherTool creates a weather tool backed by the given WeatherBackend.
func NewWeatherTool(backend WeatherBackend, logger *slog.Logger) *WeatherTool {
	return &WeatherTool{backend: backend, logger: logger}
}

func (t *WeatherTool) Name() string { return "get_current_weather" }

func (t *WeatherTool) Description() string {
	return "Get the current weather for a location given its latitude and longitude"
}

func (t *WeatherTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"latitude": {"type": "number", "description": "Latitude of the location, -90 to 90"},
				"longitude": {"type": "number", "description": "Longitude of the location, -180 to 180"}
			},
			"required": ["latitude", "longitude"]
		}`),
	}
}

type weatherParams struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (t *WeatherTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_current_weather", t.logger, params,
		func(ctx context.Context, span trace.Span, p weatherParams) (any, error) {
			span.SetAttributes(
				tracer.StringAttr("weather.coords", fmt.Sprintf("%.4f,%.4f", p.Latitude, p.Longitude)),
			)

			if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
				return Errorf("invalid coordinates (%v, %v)", p.Latitude, p.Longitude), nil
			}

			report, err := t.backend.Current(ctx, p.Latitude, p.Longitude)
			if err != nil {
				t.logger.Warn("weather lookup degraded", "error", err)
				switch {
				case errors.Is(err, ErrWeatherNoAPIKey):
					return Errorf("weather API key is not configured"), nil
				case errors.Is(err, ErrWeatherUnauthorized):
					return Errorf("weather API key is invalid"), nil
				case errors.Is(err, ErrWeatherNotFound):
					return Errorf("no weather data for coordinates (%v, %v)", p.Latitude, p.Longitude), nil
				default:
					return Errorf("failed to fetch weather data"), nil
				}
			}

			t.logger.Debug("weather lookup completed",
				"location", report.Location,
				"temperature", report.Temperature,
			)
			return report, nil
		},
	)
}
