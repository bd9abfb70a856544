// Package geocode resolves coordinates to Japanese administrative place names.
package geocode

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Address is the place resolved for a coordinate pair. The zero value means unknown.
type Address struct {
	Prefecture string `json:"prefecture,omitempty"`
	City       string `json:"city,omitempty"`
	Detailed   string `json:"detailed,omitempty"`
}

func (a Address) Known() bool {
	return a.Prefecture != "" || a.City != ""
}

// Lookuper performs an uncached reverse geocode and may fail.
type Lookuper interface {
	Lookup(ctx context.Context, lat, lon float64) (Address, error)
}

// Resolver never fails: an unresolvable location is the zero Address.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) Address
}

// Disabled resolves every coordinate to an unknown location.
type Disabled struct{}

func (Disabled) Resolve(context.Context, float64, float64) Address { return Address{} }

// CacheKey rounds both axes to three decimals (about 100m).
func CacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.3f,%.3f", round3(lat), round3(lon))
}

func round3(v float64) float64 {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		return 0
	}
	return r
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
