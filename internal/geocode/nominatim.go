package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bus-tracker/internal/geo"

	"github.com/bluele/gcache"
)

const (
	DefaultBaseURL  = "https://nominatim.openstreetmap.org"
	DefaultLanguage = "pt-BR"

	// MinQueryLength is the shortest query sent upstream.
	MinQueryLength = 3
	// MaxResults bounds every answer.
	MaxResults = 5

	userAgent = "bus-tracker/1.0"
)

// Place is a named location returned by a search.
type Place struct {
	Label    string     `json:"label"`
	Location geo.LatLng `json:"location"`
}

type Options struct {
	BaseURL   string
	Language  string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// Client resolves free text into places using the Nominatim search API.
type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
	cache      gcache.Cache
}

func NewClient(opt Options) *Client {
	if opt.BaseURL == "" {
		opt.BaseURL = DefaultBaseURL
	}
	if opt.Language == "" {
		opt.Language = DefaultLanguage
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(opt.BaseURL, "/"),
		language:   opt.Language,
		httpClient: &http.Client{Timeout: opt.Timeout},
	}
	if opt.CacheSize > 0 {
		ttl := opt.CacheTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		c.cache = gcache.New(opt.CacheSize).LRU().Expiration(ttl).Build()
	}
	return c
}

type nominatimItem struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Search returns up to MaxResults ranked places. Queries shorter than
// MinQueryLength return an empty result without a request.
func (c *Client) Search(ctx context.Context, text string) ([]Place, error) {
	q := strings.TrimSpace(text)
	if len([]rune(q)) < MinQueryLength {
		return []Place{}, nil
	}
	key := strings.ToLower(q)
	if c.cache != nil {
		if cached, err := c.cache.Get(key); err == nil {
			return append([]Place{}, cached.([]Place)...), nil
		}
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("q", q)
	params.Set("limit", strconv.Itoa(MaxResults))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Language", c.language)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode: HTTP %d", resp.StatusCode)
	}

	var items []nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	places := make([]Place, 0, len(items))
	for _, it := range items {
		lat, errLat := strconv.ParseFloat(it.Lat, 64)
		lng, errLng := strconv.ParseFloat(it.Lon, 64)
		if errLat != nil || errLng != nil {
			continue
		}
		places = append(places, Place{Label: it.DisplayName, Location: geo.LatLng{Lat: lat, Lng: lng}})
		if len(places) == MaxResults {
			break
		}
	}
	if c.cache != nil {
		_ = c.cache.Set(key, append([]Place{}, places...))
	}
	return places, nil
}
