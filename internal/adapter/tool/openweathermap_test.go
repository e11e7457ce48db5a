package tool

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"parley/internal/infra/config"
)

func newTestOWMBackend(t *testing.T, apiKey string, handler http.HandlerFunc) *OpenWeatherMapBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenWeatherMapBackend(config.ToolsConfig{
		WeatherAPIKey:  apiKey,
		WeatherBaseURL: srv.URL,
	}, newTestLogger())
}

func TestOWMBackendSuccess(t *testing.T) {
	var gotQuery string
	backend := newTestOWMBackend(t, "key-123", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{
			"name": "Seoul",
			"weather": [{"description": "light rain"}],
			"main": {"temp": 18.2, "feels_like": 17.8, "humidity": 72},
			"wind": {"speed": 4.1}
		}`))
	})

	report, err := backend.Current(context.Background(), 37.57, 126.98)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if report.Location != "Seoul" || report.Description != "light rain" {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Temperature != 18.2 || report.Humidity != 72 {
		t.Errorf("unexpected readings: %+v", report)
	}
	for _, part := range []string{"appid=key-123", "units=metric", "lat=37.57", "lon=126.98"} {
		if !strings.Contains(gotQuery, part) {
			t.Errorf("query %q missing %q", gotQuery, part)
		}
	}
}

func TestOWMBackendMissingKey(t *testing.T) {
	backend := newTestOWMBackend(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the API without a key")
	})

	_, err := backend.Current(context.Background(), 0, 0)
	if !errors.Is(err, ErrWeatherNoAPIKey) {
		t.Errorf("got %v, want ErrWeatherNoAPIKey", err)
	}
}

func TestOWMBackendStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrWeatherUnauthorized},
		{"not found", http.StatusNotFound, ErrWeatherNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newTestOWMBackend(t, "key", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := backend.Current(context.Background(), 37.57, 126.98)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOWMBackendServerError(t *testing.T) {
	backend := newTestOWMBackend(t, "key", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := backend.Current(context.Background(), 37.57, 126.98)
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if errors.Is(err, ErrWeatherUnauthorized) || errors.Is(err, ErrWeatherNotFound) {
		t.Errorf("unexpected sentinel for HTTP 500: %v", err)
	}
}

func TestOWMBackendLocationFallback(t *testing.T) {
	backend := newTestOWMBackend(t, "key", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"name": "",
			"weather": [{"description": "clear sky"}],
			"main": {"temp": 25, "feels_like": 25, "humidity": 60},
			"wind": {"speed": 2}
		}`))
	})

	report, err := backend.Current(context.Background(), 0, -160)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if !strings.Contains(report.Location, "lat 0") || !strings.Contains(report.Location, "lon -160") {
		t.Errorf("expected coordinate fallback, got %q", report.Location)
	}
}
