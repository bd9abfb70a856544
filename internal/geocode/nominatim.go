package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type NominatimConfig struct {
	BaseURL   string
	UserAgent string
	Language  string
	Timeout   time.Duration
}

// NominatimClient calls the OpenStreetMap Nominatim reverse endpoint.
type NominatimClient struct {
	client   *resty.Client
	language string
	timeout  time.Duration
}

func NewNominatimClient(cfg NominatimConfig) *NominatimClient {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = "chat-app"
	}
	if cfg.Language == "" {
		cfg.Language = "ja"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)

	return &NominatimClient{client: c, language: cfg.Language, timeout: cfg.Timeout}
}

type nominatimResponse struct {
	Error       string            `json:"error"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// StatusError is returned when Nominatim answers with a non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nominatim status %d: %s", e.Code, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.Code }

func (c *NominatimClient) Lookup(ctx context.Context, lat, lon float64) (Address, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"format":          "jsonv2",
			"lat":             strconv.FormatFloat(lat, 'f', -1, 64),
			"lon":             strconv.FormatFloat(lon, 'f', -1, 64),
			"zoom":            "18",
			"addressdetails":  "1",
			"accept-language": c.language,
		}).
		Get("/reverse")
	if err != nil {
		return Address{}, fmt.Errorf("nominatim request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		body := resp.String()
		if len(body) > 512 {
			body = body[:512]
		}
		return Address{}, &StatusError{Code: resp.StatusCode(), Body: body}
	}

	var nr nominatimResponse
	if err := json.Unmarshal(resp.Body(), &nr); err != nil {
		return Address{}, fmt.Errorf("decode nominatim response: %w", err)
	}
	if nr.Error != "" {
		return Address{}, fmt.Errorf("nominatim: %s", nr.Error)
	}
	return addressFrom(nr.Address), nil
}

func addressFrom(a map[string]string) Address {
	pref := firstNonEmpty(a["state"], a["region"], a["province"])
	city := firstNonEmpty(a["city"], a["town"], a["village"], a["municipality"], a["county"])
	district := firstNonEmpty(a["suburb"], a["neighbourhood"], a["quarter"], a["city_district"])

	out := Address{Prefecture: pref, City: city}
	if district != "" {
		out.Detailed = joinNonEmpty(pref, city, district)
	}
	return out
}
