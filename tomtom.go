package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type tomTomFlowResponse struct {
	FlowSegmentData struct {
		CurrentSpeed       float64 `json:"currentSpeed"`
		FreeFlowSpeed      float64 `json:"freeFlowSpeed"`
		CurrentTravelTime  int     `json:"currentTravelTime"`
		FreeFlowTravelTime int     `json:"freeFlowTravelTime"`
		Confidence         float64 `json:"confidence"`
	} `json:"flowSegmentData"`
}

type trafficFlow struct {
	CurrentSpeed  float64 `json:"current_speed"`
	FreeFlowSpeed float64 `json:"normal_speed"`
	Delay         int     `json:"delay"` // seconds
	Congestion    string  `json:"congestion"`
}

type tomTomClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func newTomTomClient(httpClient *http.Client, cfg tomlConfigTomTom) *tomTomClient {
	return &tomTomClient{
		client:  httpClient,
		baseURL: strings.TrimRight(cfg.BaseUrl, "/"),
		apiKey:  cfg.ApiKey,
	}
}

// Flow returns the traffic flow on the road segment closest to a point.
func (t *tomTomClient) Flow(ctx context.Context, lat, lon float64) (*trafficFlow, error) {
	params := url.Values{}
	params.Set("key", t.apiKey)
	params.Set("point", formatCoordinate(lat)+","+formatCoordinate(lon))
	params.Set("unit", "KMPH")

	var data tomTomFlowResponse
	if err := getJson(ctx, t.client, t.baseURL+"/traffic/services/4/flowSegmentData/absolute/10/json?"+params.Encode(), &data); err != nil {
		return nil, fmt.Errorf("fetching traffic flow: %w", err)
	}

	flow := data.FlowSegmentData
	return &trafficFlow{
		CurrentSpeed:  flow.CurrentSpeed,
		FreeFlowSpeed: flow.FreeFlowSpeed,
		Delay:         flow.CurrentTravelTime - flow.FreeFlowTravelTime,
		Congestion:    congestionFor(flow.CurrentSpeed, flow.FreeFlowSpeed),
	}, nil
}

func congestionFor(current, freeFlow float64) string {
	if freeFlow <= 0 {
		return "Unknown"
	}
	ratio := current / freeFlow
	switch {
	case ratio >= 0.8:
		return "Low"
	case ratio >= 0.5:
		return "Moderate"
	case ratio >= 0.3:
		return "High"
	default:
		return "Severe"
	}
}
