package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dispatchlab/fieldops/core/disruption"
	"github.com/dispatchlab/fieldops/core/model"
)

// WeatherClient queries an advisory endpoint for current conditions in an
// area. Callers treat failures as "no adverse weather".
type WeatherClient struct {
	url    string
	apiKey string
	client *http.Client
}

// NewWeatherClient creates a client for the given endpoint. The API key is
// optional and sent as the X-Api-Key header when present.
func NewWeatherClient(endpoint, apiKey string, timeout time.Duration) *WeatherClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WeatherClient{
		url:    endpoint,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type advisoryResponse struct {
	Adverse  bool    `json:"adverse"`
	Slowdown float64 `json:"slowdown"`
}

// Advise implements disruption.WeatherAdvisor.
func (w *WeatherClient) Advise(ctx context.Context, area model.Area) (disruption.Advisory, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(area.Center.Lat, 'f', 5, 64))
	q.Set("lon", strconv.FormatFloat(area.Center.Lng, 'f', 5, 64))
	q.Set("radius_km", strconv.FormatFloat(area.RadiusKm, 'f', 2, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url+"?"+q.Encode(), nil)
	if err != nil {
		return disruption.Advisory{}, fmt.Errorf("failed to create request: %w", err)
	}
	if w.apiKey != "" {
		req.Header.Set("X-Api-Key", w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return disruption.Advisory{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return disruption.Advisory{}, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, b)
	}
	var ar advisoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return disruption.Advisory{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return disruption.Advisory{Adverse: ar.Adverse, Slowdown: ar.Slowdown}, nil
}
