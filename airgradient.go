package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pridkett/cityair2mqtt/aqi"
)

// AirGradient local API data structure, only the fields used here
type airGradientStatus struct {
	Serialno        string   `json:"serialno"`
	Pm02            *float64 `json:"pm02"`
	Pm10            *float64 `json:"pm10"`
	Pm02Compensated *float64 `json:"pm02Compensated"`
	Firmware        string   `json:"firmware"`
	Model           string   `json:"model"`
}

// fetchAirGradient reads an AirGradient device's current measures.
func fetchAirGradient(ctx context.Context, httpClient *http.Client, url string) (*airGradientStatus, error) {
	agstatus := new(airGradientStatus)
	if err := getJson(ctx, httpClient, url, agstatus); err != nil {
		return nil, fmt.Errorf("reading AirGradient at %s: %w", url, err)
	}
	if agstatus.Serialno == "" {
		return nil, fmt.Errorf("strange response from AirGradient at %s: no serial number", url)
	}
	return agstatus, nil
}

// overlay replaces modelled particulate readings with the device's own.
func (s *airGradientStatus) overlay(c aqi.Concentrations) {
	switch {
	case s.Pm02Compensated != nil:
		c[aqi.PM25] = *s.Pm02Compensated
	case s.Pm02 != nil:
		c[aqi.PM25] = *s.Pm02
	}
	if s.Pm10 != nil {
		c[aqi.PM10] = *s.Pm10
	}
}
