package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/naoina/toml"
)

const (
	strategyCPCB   = "cpcb"
	strategySensor = "sensor"
)

// MQTT settings for overall configuration
type tomlConfigMQTT struct {
	BrokerHost     string
	BrokerPort     int
	BrokerUsername string
	BrokerPassword string
	ClientId       string
	TopicPrefix    string
}

type tomlConfigHass struct {
	Discovery       bool
	DiscoveryPrefix string
	DeviceModel     string
	DeviceName      string
	Manufacturer    string
}

type tomlConfigInflux struct {
	Hostname    string
	Port        int
	Database    string
	Username    string
	Password    string
	Measurement string
}

type tomlConfigPrometheus struct {
	Listen string
}

type tomlConfigPoll struct {
	Rate        int // seconds between polls
	Timeout     int // seconds allowed per location
	Concurrency int
}

type tomlConfigOpenWeather struct {
	ApiKey     string
	BaseUrl    string
	GeocodeTTL int // hours
}

type tomlConfigTomTom struct {
	ApiKey  string
	BaseUrl string
}

type tomlConfigWaqi struct {
	Token   string
	BaseUrl string
}

type tomlConfigIpapi struct {
	BaseUrl  string
	CacheTTL int // minutes
}

type tomlConfigAqi struct {
	Strategy string
}

// a single place to poll; Lat/Lon skip geocoding, and with neither City nor
// Lat/Lon the city comes from IP geolocation
type tomlConfigLocation struct {
	Name           string
	City           string
	Lat            float64
	Lon            float64
	AirGradientUrl string
}

type tomlConfig struct {
	Poll        tomlConfigPoll
	OpenWeather tomlConfigOpenWeather
	TomTom      tomlConfigTomTom
	Waqi        tomlConfigWaqi
	Ipapi       tomlConfigIpapi
	Aqi         tomlConfigAqi
	Location    []tomlConfigLocation
	Mqtt        tomlConfigMQTT
	Hass        tomlConfigHass
	Influx      tomlConfigInflux
	Prometheus  tomlConfigPrometheus
}

func loadConfig(filename string) (*tomlConfig, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := new(tomlConfig)
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filename, err)
	}
	return cfg, nil
}

func (c *tomlConfig) applyDefaults() {
	if c.Poll.Rate <= 0 {
		c.Poll.Rate = 600
	}
	if c.Poll.Timeout <= 0 {
		c.Poll.Timeout = 15
	}
	if c.Poll.Concurrency <= 0 {
		c.Poll.Concurrency = 4
	}
	if c.OpenWeather.BaseUrl == "" {
		c.OpenWeather.BaseUrl = "https://api.openweathermap.org"
	}
	if c.OpenWeather.GeocodeTTL <= 0 {
		c.OpenWeather.GeocodeTTL = 24
	}
	if c.TomTom.BaseUrl == "" {
		c.TomTom.BaseUrl = "https://api.tomtom.com"
	}
	if c.Waqi.BaseUrl == "" {
		c.Waqi.BaseUrl = "https://api.waqi.info"
	}
	if c.Ipapi.BaseUrl == "" {
		c.Ipapi.BaseUrl = "https://ipapi.co"
	}
	if c.Ipapi.CacheTTL <= 0 {
		c.Ipapi.CacheTTL = 60
	}
	c.Aqi.Strategy = strings.ToLower(strings.TrimSpace(c.Aqi.Strategy))
	if c.Aqi.Strategy == "" {
		c.Aqi.Strategy = strategyCPCB
	}
	if c.Mqtt.BrokerHost != "" {
		if c.Mqtt.BrokerPort == 0 {
			c.Mqtt.BrokerPort = 1883
		}
		if c.Mqtt.TopicPrefix == "" {
			c.Mqtt.TopicPrefix = "cityair"
		}
		if c.Mqtt.ClientId == "" {
			c.Mqtt.ClientId = "cityair2mqtt"
		}
	}
	if c.Hass.Discovery {
		if c.Hass.DiscoveryPrefix == "" {
			c.Hass.DiscoveryPrefix = "homeassistant"
		}
		if c.Hass.DeviceName == "" {
			c.Hass.DeviceName = "cityair"
		}
	}
	if c.Influx.Hostname != "" {
		if c.Influx.Port == 0 {
			c.Influx.Port = 8086
		}
		if c.Influx.Measurement == "" {
			c.Influx.Measurement = "air_quality"
		}
	}
	for i := range c.Location {
		loc := &c.Location[i]
		if loc.Name == "" {
			loc.Name = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(loc.City), " ", "-"))
		}
	}
}

func (c *tomlConfig) validate() error {
	if c.OpenWeather.ApiKey == "" {
		return errors.New("OpenWeather.ApiKey is required")
	}
	if len(c.Location) == 0 {
		return errors.New("at least one [[Location]] is required")
	}
	switch c.Aqi.Strategy {
	case strategyCPCB:
	case strategySensor:
		if c.Waqi.Token == "" {
			return errors.New(`Aqi.Strategy "sensor" needs Waqi.Token`)
		}
	default:
		return fmt.Errorf("unknown Aqi.Strategy %q", c.Aqi.Strategy)
	}

	seen := make(map[string]bool, len(c.Location))
	for i, loc := range c.Location {
		if loc.Name == "" {
			return fmt.Errorf("location %d needs a Name or City", i)
		}
		if seen[loc.Name] {
			return fmt.Errorf("duplicate location name %q", loc.Name)
		}
		seen[loc.Name] = true
	}

	if c.Hass.Discovery && c.Mqtt.BrokerHost == "" {
		return errors.New("home assistant discovery is enabled but no MQTT broker is configured")
	}
	return nil
}

func (l tomlConfigLocation) hasCoordinates() bool {
	return l.Lat != 0 || l.Lon != 0
}

func (l tomlConfigLocation) locatedByIP() bool {
	return l.City == "" && !l.hasCoordinates()
}
