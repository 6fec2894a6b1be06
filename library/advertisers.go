package library

import (
	"context"
	"sort"
	"strings"

	"github.com/warp/strategy-planner/budget"
)

const KindAdvertisers = "advertisers"

// AdvertiserAgencyPair links an advertiser (client) to the agency (channel
// partner) that buys on its behalf.
type AdvertiserAgencyPair struct {
	Advertiser string `json:"advertiser" yaml:"advertiser"`
	Agency     string `json:"agency" yaml:"agency"`
}

// Advertisers is the advertiser/agency library.
type Advertisers struct {
	*Library[AdvertiserAgencyPair]
}

// NewAdvertisers builds the library over the given base pairs.
func NewAdvertisers(base []AdvertiserAgencyPair, backend Backend) *Advertisers {
	return &Advertisers{newLibrary(KindAdvertisers, base, backend, normalizePair)}
}

func normalizePair(p AdvertiserAgencyPair) (AdvertiserAgencyPair, error) {
	p.Advertiser = strings.TrimSpace(p.Advertiser)
	p.Agency = strings.TrimSpace(p.Agency)
	if p.Advertiser == "" {
		return p, &budget.FieldError{Field: "advertiser", Err: budget.ErrMissingField}
	}
	if p.Agency == "" {
		return p, &budget.FieldError{Field: "agency", Err: budget.ErrMissingField}
	}
	return p, nil
}

// UniqueAgencies returns every agency once, sorted.
func UniqueAgencies(pairs []AdvertiserAgencyPair) []string {
	return uniqueSorted(pairs, func(p AdvertiserAgencyPair) string { return p.Agency })
}

// UniqueAdvertisers returns every advertiser once, sorted.
func UniqueAdvertisers(pairs []AdvertiserAgencyPair) []string {
	return uniqueSorted(pairs, func(p AdvertiserAgencyPair) string { return p.Advertiser })
}

// AdvertisersByAgency returns the agency's advertisers, sorted.
func AdvertisersByAgency(pairs []AdvertiserAgencyPair, agency string) []string {
	var out []string
	for _, p := range pairs {
		if p.Agency == agency {
			out = append(out, p.Advertiser)
		}
	}
	sort.Strings(out)
	return out
}

// AgencyForAdvertiser returns the first agency listed for the advertiser.
func AgencyForAdvertiser(pairs []AdvertiserAgencyPair, advertiser string) (string, bool) {
	for _, p := range pairs {
		if p.Advertiser == advertiser {
			return p.Agency, true
		}
	}
	return "", false
}

// Agencies is UniqueAgencies over the full library.
func (a *Advertisers) Agencies(ctx context.Context) ([]string, error) {
	all, err := a.All(ctx)
	if err != nil {
		return nil, err
	}
	return UniqueAgencies(all), nil
}

func uniqueSorted[T any](items []T, key func(T) string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, item := range items {
		k := key(item)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
