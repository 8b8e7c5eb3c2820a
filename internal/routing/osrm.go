package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bus-tracker/internal/geo"
)

const DefaultBaseURL = "https://router.project-osrm.org"

// ErrNoRoute is returned when OSRM answers Ok without any route.
var ErrNoRoute = errors.New("routing: no route in response")

// UpstreamError carries a non-Ok OSRM response code.
type UpstreamError struct {
	Code    string
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("routing: upstream code %s: %s", e.Code, e.Message)
	}
	return "routing: upstream code " + e.Code
}

// Client converts sparse waypoints into street-following geometry using
// an OSRM route/v1/driving endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Densify returns the dense path for pts. Fewer than two points are
// returned unchanged without a request. Any failure is returned as an
// error; callers decide on the fallback.
func (c *Client) Densify(ctx context.Context, pts []geo.LatLng) ([]geo.LatLng, error) {
	if len(pts) < 2 {
		return geo.Clone(pts), nil
	}
	u := fmt.Sprintf("%s/route/v1/driving/%s?overview=full&geometries=geojson", c.baseURL, coordinateList(pts))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("routing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("routing: HTTP %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("decode routing response: %w", err)
	}
	// OSRM reports failures with a non-Ok code, usually alongside a 400.
	if body.Code != "Ok" {
		return nil, &UpstreamError{Code: body.Code, Message: body.Message}
	}
	if len(body.Routes) == 0 || len(body.Routes[0].Geometry.Coordinates) == 0 {
		return nil, ErrNoRoute
	}
	coords := body.Routes[0].Geometry.Coordinates
	path := make([]geo.LatLng, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		// GeoJSON order is [lng, lat]
		path = append(path, geo.LatLng{Lat: c[1], Lng: c[0]})
	}
	if len(path) == 0 {
		return nil, ErrNoRoute
	}
	return path, nil
}

// coordinateList renders "lng,lat;lng,lat;..."
func coordinateList(pts []geo.LatLng) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = strconv.FormatFloat(p.Lng, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lat, 'f', -1, 64)
	}
	return strings.Join(parts, ";")
}
