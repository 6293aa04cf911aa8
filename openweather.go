package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pridkett/cityair2mqtt/aqi"
)

var errUnknownCity = errors.New("city not found")

type coordinates struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
}

// OpenWeather air pollution components, all µg/m³
type owmComponents struct {
	CO   *float64 `json:"co"`
	NO   *float64 `json:"no"`
	NO2  *float64 `json:"no2"`
	O3   *float64 `json:"o3"`
	SO2  *float64 `json:"so2"`
	PM25 *float64 `json:"pm2_5"`
	PM10 *float64 `json:"pm10"`
	NH3  *float64 `json:"nh3"`
}

type owmAirPollution struct {
	List []struct {
		Dt         int64         `json:"dt"`
		Components owmComponents `json:"components"`
	} `json:"list"`
}

type owmWeather struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
}

type currentWeather struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	Pressure    int     `json:"pressure"`
	WindSpeed   float64 `json:"wind_speed"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
}

type openWeatherClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	cache   *cache.Cache
}

func newOpenWeatherClient(httpClient *http.Client, cfg tomlConfigOpenWeather) *openWeatherClient {
	ttl := time.Duration(cfg.GeocodeTTL) * time.Hour
	return &openWeatherClient{
		client:  httpClient,
		baseURL: strings.TrimRight(cfg.BaseUrl, "/"),
		apiKey:  cfg.ApiKey,
		cache:   cache.New(ttl, 2*ttl),
	}
}

// Geocode resolves a city name to coordinates. Successful lookups are cached.
func (o *openWeatherClient) Geocode(ctx context.Context, city string) (*coordinates, error) {
	cacheKey := "geo_" + strings.ToLower(strings.TrimSpace(city))
	if cached, found := o.cache.Get(cacheKey); found {
		return cached.(*coordinates), nil
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("limit", "1")
	params.Set("appid", o.apiKey)

	var results []coordinates
	if err := getJson(ctx, o.client, o.baseURL+"/geo/1.0/direct?"+params.Encode(), &results); err != nil {
		return nil, fmt.Errorf("geocoding %q: %w", city, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %q", errUnknownCity, city)
	}

	coords := &results[0]
	o.cache.Set(cacheKey, coords, cache.DefaultExpiration)
	return coords, nil
}

// AirPollution returns the current concentrations at a point in the units the
// CPCB breakpoints use.
func (o *openWeatherClient) AirPollution(ctx context.Context, lat, lon float64) (aqi.Concentrations, error) {
	params := url.Values{}
	params.Set("lat", formatCoordinate(lat))
	params.Set("lon", formatCoordinate(lon))
	params.Set("appid", o.apiKey)

	var data owmAirPollution
	if err := getJson(ctx, o.client, o.baseURL+"/data/2.5/air_pollution?"+params.Encode(), &data); err != nil {
		return nil, fmt.Errorf("fetching air pollution: %w", err)
	}
	if len(data.List) == 0 {
		return nil, errors.New("air pollution response has no entries")
	}
	return data.List[0].Components.concentrations(), nil
}

func (c owmComponents) concentrations() aqi.Concentrations {
	out := make(aqi.Concentrations, 6)
	set := func(p aqi.Pollutant, v *float64, scale float64) {
		if v == nil {
			return
		}
		out[p] = roundTo2(*v / scale)
	}
	set(aqi.PM25, c.PM25, 1)
	set(aqi.PM10, c.PM10, 1)
	set(aqi.NO2, c.NO2, 1)
	set(aqi.SO2, c.SO2, 1)
	// µg/m³ -> mg/m³
	set(aqi.CO, c.CO, 1000)
	set(aqi.O3, c.O3, 1)
	return out
}

// CurrentWeather returns metric weather conditions at a point.
func (o *openWeatherClient) CurrentWeather(ctx context.Context, lat, lon float64) (*currentWeather, error) {
	params := url.Values{}
	params.Set("lat", formatCoordinate(lat))
	params.Set("lon", formatCoordinate(lon))
	params.Set("units", "metric")
	params.Set("appid", o.apiKey)

	var data owmWeather
	if err := getJson(ctx, o.client, o.baseURL+"/data/2.5/weather?"+params.Encode(), &data); err != nil {
		return nil, fmt.Errorf("fetching weather: %w", err)
	}

	weather := &currentWeather{
		City:        data.Name,
		Temperature: data.Main.Temp,
		FeelsLike:   data.Main.FeelsLike,
		Humidity:    data.Main.Humidity,
		Pressure:    data.Main.Pressure,
		WindSpeed:   data.Wind.Speed,
	}
	if len(data.Weather) > 0 {
		weather.Description = data.Weather[0].Description
		weather.Icon = data.Weather[0].Icon
	}
	return weather, nil
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatCoordinate(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
