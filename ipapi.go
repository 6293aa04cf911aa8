package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

var errNoIPCity = errors.New("ip geolocation returned no city")

type ipapiResponse struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country_name"`
	// set instead of the fields above when the lookup is refused
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// ipLocator finds the city this host appears to be in.
type ipLocator struct {
	client  *http.Client
	baseURL string
	cache   *cache.Cache
}

func newIPLocator(httpClient *http.Client, cfg tomlConfigIpapi) *ipLocator {
	ttl := time.Duration(cfg.CacheTTL) * time.Minute
	return &ipLocator{
		client:  httpClient,
		baseURL: strings.TrimRight(cfg.BaseUrl, "/"),
		cache:   cache.New(ttl, 2*ttl),
	}
}

// City returns the city of the public address requests leave from.
func (l *ipLocator) City(ctx context.Context) (string, error) {
	if cached, found := l.cache.Get("ip_city"); found {
		return cached.(string), nil
	}

	var data ipapiResponse
	if err := getJson(ctx, l.client, l.baseURL+"/json/", &data); err != nil {
		return "", fmt.Errorf("ip geolocation: %w", err)
	}
	if data.Error {
		return "", fmt.Errorf("ip geolocation refused: %s", data.Reason)
	}
	city := strings.TrimSpace(data.City)
	if city == "" {
		return "", errNoIPCity
	}

	logger.Debugf("IP geolocation places this host in %s, %s", city, data.Country)
	l.cache.Set("ip_city", city, cache.DefaultExpiration)
	return city, nil
}
