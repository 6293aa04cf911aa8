package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var errWaqiStatus = errors.New("station feed status")

type waqiFeed struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type waqiClient struct {
	client  *http.Client
	baseURL string
	token   string
}

func newWaqiClient(httpClient *http.Client, cfg tomlConfigWaqi) *waqiClient {
	return &waqiClient{
		client:  httpClient,
		baseURL: strings.TrimRight(cfg.BaseUrl, "/"),
		token:   cfg.Token,
	}
}

// MeasuredAQI returns the index reported by the station nearest to a point,
// or nil when that station has no current reading. A refused request, such as
// one with an invalid token, is an error.
func (w *waqiClient) MeasuredAQI(ctx context.Context, lat, lon float64) (*int, error) {
	params := url.Values{}
	params.Set("token", w.token)
	feedURL := fmt.Sprintf("%s/feed/geo:%s;%s/?%s", w.baseURL, formatCoordinate(lat), formatCoordinate(lon), params.Encode())

	var feed waqiFeed
	if err := getJson(ctx, w.client, feedURL, &feed); err != nil {
		return nil, fmt.Errorf("fetching station feed: %w", err)
	}
	if feed.Status != "ok" {
		// data carries the error message instead of a station
		var message string
		if err := json.Unmarshal(feed.Data, &message); err != nil {
			message = string(feed.Data)
		}
		return nil, fmt.Errorf("%w %q: %s", errWaqiStatus, feed.Status, message)
	}

	var station struct {
		AQI json.RawMessage `json:"aqi"`
	}
	if err := json.Unmarshal(feed.Data, &station); err != nil {
		return nil, fmt.Errorf("decoding station feed: %w", err)
	}
	return parseWaqiIndex(station.AQI), nil
}

// stations report "-" when they are offline
func parseWaqiIndex(raw json.RawMessage) *int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
