// Package travel provides HTTP-backed implementations of the core travel
// interfaces: a road-time matrix provider and a weather advisory client.
package travel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dispatchlab/fieldops/auth"
	"github.com/dispatchlab/fieldops/core/model"
	coretravel "github.com/dispatchlab/fieldops/core/travel"
)

// MatrixProvider queries an external routing service for road travel
// durations. The service answers one POST per matrix.
type MatrixProvider struct {
	url    string
	client *http.Client
	auth   *auth.ClientCred
}

// NewMatrixProvider creates a provider for the given endpoint. A nil
// authClient sends unauthenticated requests. Non-positive timeouts fall
// back to the package default.
func NewMatrixProvider(url string, timeout time.Duration, authClient *auth.ClientCred) *MatrixProvider {
	if timeout <= 0 {
		timeout = coretravel.DefaultTimeout
	}
	return &MatrixProvider{
		url:    url,
		client: &http.Client{Timeout: timeout},
		auth:   authClient,
	}
}

type point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type matrixRequest struct {
	Origins      []point `json:"origins"`
	Destinations []point `json:"destinations"`
}

type matrixResponse struct {
	DurationsSeconds [][]float64 `json:"durations_seconds"`
}

func toPoints(coords []model.LatLng) []point {
	pts := make([]point, len(coords))
	for i, c := range coords {
		pts[i] = point{Lat: c.Lat, Lon: c.Lng}
	}
	return pts
}

// Matrix implements coretravel.Estimator.
func (p *MatrixProvider) Matrix(ctx context.Context, origins, destinations []model.LatLng) (coretravel.Matrix, error) {
	body, err := json.Marshal(matrixRequest{Origins: toPoints(origins), Destinations: toPoints(destinations)})
	if err != nil {
		return coretravel.Matrix{}, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return coretravel.Matrix{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.auth != nil {
		if err := p.auth.SetAuthHeader(req); err != nil {
			return coretravel.Matrix{}, fmt.Errorf("failed to set auth header: %w", err)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return coretravel.Matrix{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return coretravel.Matrix{}, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, b)
	}
	var mr matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return coretravel.Matrix{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(mr.DurationsSeconds) != len(origins) {
		return coretravel.Matrix{}, fmt.Errorf("matrix has %d rows, want %d", len(mr.DurationsSeconds), len(origins))
	}

	durations := make([][]time.Duration, len(origins))
	for i, row := range mr.DurationsSeconds {
		if len(row) != len(destinations) {
			return coretravel.Matrix{}, fmt.Errorf("matrix row %d has %d columns, want %d", i, len(row), len(destinations))
		}
		durs := make([]time.Duration, len(row))
		for j, sec := range row {
			if sec < 0 {
				return coretravel.Matrix{}, fmt.Errorf("negative duration at [%d][%d]", i, j)
			}
			durs[j] = time.Duration(sec * float64(time.Second))
		}
		durations[i] = durs
	}
	return coretravel.Matrix{Durations: durations}, nil
}
