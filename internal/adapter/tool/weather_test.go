package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"parley/internal/domain"
)

// --- test backend ---

type testWeatherBackend struct {
	report *WeatherReport
	err    error

	lastLat, lastLon float64
	calls            int
}

func (b *testWeatherBackend) Current(_ context.Context, lat, lon float64) (*WeatherReport, error) {
	b.calls++
	b.lastLat, b.lastLon = lat, lon
	if b.err != nil {
		return nil, b.err
	}
	return b.report, nil
}

func newTestWeatherTool() (*WeatherTool, *testWeatherBackend) {
	backend := &testWeatherBackend{
		report: &WeatherReport{
			Location:    "Seoul",
			Description: "clear sky",
			Temperature: 21.5,
			FeelsLike:   20.9,
			Humidity:    40,
			WindSpeed:   3.2,
		},
	}
	return NewWeatherTool(backend, newTestLogger()), backend
}

func execWeather(t *testing.T, tool *WeatherTool, params any) *domain.ToolResult {
	t.Helper()
	data, _ := json.Marshal(params)
	result, err := tool.Execute(context.Background(), data)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return result
}

// --- metadata ---

func TestWeatherToolName(t *testing.T) {
	tool, _ := newTestWeatherTool()
	if tool.Name() != "get_current_weather" {
		t.Errorf("got %q, want %q", tool.Name(), "get_current_weather")
	}
}

func TestWeatherToolSchema(t *testing.T) {
	tool, _ := newTestWeatherTool()
	schema := tool.Schema()
	if schema.Name != "get_current_weather" {
		t.Errorf("schema name: got %q", schema.Name)
	}
	var params map[string]any
	if err := json.Unmarshal(schema.Parameters, &params); err != nil {
		t.Fatalf("invalid schema JSON: %v", err)
	}
	props, _ := params["properties"].(map[string]any)
	for _, field := range []string{"latitude", "longitude"} {
		if _, ok := props[field]; !ok {
			t.Errorf("schema missing property %q", field)
		}
	}
}

// --- success path ---

func TestWeatherToolSuccess(t *testing.T) {
	tool, backend := newTestWeatherTool()
	result := execWeather(t, tool, map[string]any{"latitude": 37.57, "longitude": 126.98})
	if result.IsError {
		t.Fatalf("expected success: %s", result.Content)
	}

	var report WeatherReport
	if err := json.Unmarshal([]byte(result.Content), &report); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if report.Location != "Seoul" || report.Temperature != 21.5 {
		t.Errorf("unexpected report: %+v", report)
	}
	if backend.lastLat != 37.57 || backend.lastLon != 126.98 {
		t.Errorf("backend got coords (%v, %v)", backend.lastLat, backend.lastLon)
	}
}

// --- degraded payloads ---

func TestWeatherToolCoordinateRange(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
	}{
		{"latitude too high", 91, 0},
		{"latitude too low", -91, 0},
		{"longitude too high", 0, 181},
		{"longitude too low", 0, -181},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, backend := newTestWeatherTool()
			result := execWeather(t, tool, map[string]any{"latitude": tt.lat, "longitude": tt.lon})
			if !strings.Contains(result.Content, "invalid coordinates") {
				t.Errorf("expected degraded payload: %s", result.Content)
			}
			if backend.calls != 0 {
				t.Error("backend should not be called for out-of-range coordinates")
			}
		})
	}
}

func TestWeatherToolBackendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"missing key", ErrWeatherNoAPIKey, "weather API key is not configured"},
		{"unauthorized", ErrWeatherUnauthorized, "weather API key is invalid"},
		{"not found", ErrWeatherNotFound, "no weather data for coordinates"},
		{"other failure", context.DeadlineExceeded, "failed to fetch weather data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, backend := newTestWeatherTool()
			backend.err = tt.err

			result := execWeather(t, tool, map[string]any{"latitude": 37.57, "longitude": 126.98})

			var payload ErrorPayload
			if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
				t.Fatalf("degraded result not JSON: %v", err)
			}
			if !strings.Contains(payload.Error, tt.want) {
				t.Errorf("got %q, want substring %q", payload.Error, tt.want)
			}
		})
	}
}

func TestWeatherToolInvalidParams(t *testing.T) {
	tool, _ := newTestWeatherTool()
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"latitude": "north"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Errorf("expected error result for non-numeric latitude: %s", result.Content)
	}
}
