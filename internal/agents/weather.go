package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/wingmanhq/wingman/internal/auth/token"
	"github.com/wingmanhq/wingman/internal/llm"
)

const (
	geocodingAPI = "https://geocoding-api.open-meteo.com/v1/search"
	forecastAPI  = "https://api.open-meteo.com/v1/forecast"
)

// WeatherAgent answers weather questions. Public: needs no credential.
type WeatherAgent struct {
	deps Deps
}

// NewWeatherAgent builds the weather agent; cred is ignored.
func NewWeatherAgent(deps Deps, _ *token.ValidCredential) Agent {
	return &WeatherAgent{deps: deps}
}

const locationPrompt = `Extract the intended location from the user's weather query.
Always return a single JSON object with keys:
"location_type": "current" or "specific"
"location_name": the city/area named, or null when location_type is "current".`

const weatherSummaryPrompt = `You are a weather assistant. Summarize the given
conditions conversationally and concisely, with one practical tip when relevant
(umbrella, sunscreen, hydration).`

// HandleQuery extracts the location, fetches current conditions and summarizes.
func (a *WeatherAgent) HandleQuery(ctx context.Context, query string) (string, error) {
	location := a.extractLocation(ctx, query)

	lat, lon, resolved, err := a.geocode(ctx, location)
	if err != nil {
		return "", fmt.Errorf("resolve location %q: %w", location, err)
	}

	conditions, err := a.current(ctx, lat, lon)
	if err != nil {
		return "", fmt.Errorf("fetch weather for %s: %w", resolved, err)
	}

	facts := fmt.Sprintf("Location: %s. Temperature: %.1f°C. Humidity: %d%%. Cloud cover: %d%%. Precipitation: %.1fmm. Wind: %.1f km/h.",
		resolved, conditions.Temperature, conditions.Humidity, conditions.CloudCover, conditions.Precipitation, conditions.WindSpeed)

	summary, err := a.deps.LLM.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: weatherSummaryPrompt},
		{Role: "user", Content: fmt.Sprintf("User asked: %s\nConditions: %s", query, facts)},
	}, 0.7)
	if err != nil {
		// The facts still answer the question when the summarizer is down.
		return facts, nil
	}
	return summary, nil
}

// extractLocation falls back to the configured default when the query names no
// place or the extraction is unparsable.
func (a *WeatherAgent) extractLocation(ctx context.Context, query string) string {
	raw, err := a.deps.LLM.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: locationPrompt},
		{Role: "user", Content: query},
	}, 0)
	if err != nil {
		return a.deps.DefaultLocation
	}

	var parsed struct {
		LocationType string `json:"location_type"`
		LocationName string `json:"location_name"`
	}
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &parsed); err != nil {
		return a.deps.DefaultLocation
	}
	if parsed.LocationType == "specific" && parsed.LocationName != "" {
		return parsed.LocationName
	}
	return a.deps.DefaultLocation
}

func (a *WeatherAgent) geocode(ctx context.Context, location string) (lat, lon float64, name string, err error) {
	params := url.Values{}
	params.Set("name", location)
	params.Set("count", "1")

	var result struct {
		Results []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Name      string  `json:"name"`
			Country   string  `json:"country"`
		} `json:"results"`
	}
	if err = doJSON(ctx, a.deps.httpClient(), http.MethodGet, geocodingAPI+"?"+params.Encode(), "", nil, &result); err != nil {
		return 0, 0, "", err
	}
	if len(result.Results) == 0 {
		return 0, 0, "", fmt.Errorf("no such place")
	}
	r := result.Results[0]
	return r.Latitude, r.Longitude, fmt.Sprintf("%s, %s", r.Name, r.Country), nil
}

type currentConditions struct {
	Temperature   float64 `json:"temperature_2m"`
	Humidity      int     `json:"relative_humidity_2m"`
	CloudCover    int     `json:"cloud_cover"`
	Precipitation float64 `json:"precipitation"`
	WindSpeed     float64 `json:"wind_speed_10m"`
}

func (a *WeatherAgent) current(ctx context.Context, lat, lon float64) (*currentConditions, error) {
	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", lat))
	params.Set("longitude", fmt.Sprintf("%.4f", lon))
	params.Set("current", "temperature_2m,relative_humidity_2m,cloud_cover,precipitation,wind_speed_10m")

	var result struct {
		Current currentConditions `json:"current"`
	}
	if err := doJSON(ctx, a.deps.httpClient(), http.MethodGet, forecastAPI+"?"+params.Encode(), "", nil, &result); err != nil {
		return nil, err
	}
	return &result.Current, nil
}
