package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxclient "github.com/influxdata/influxdb1-client/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/withmandala/go-log"
	"golang.org/x/sync/errgroup"

	"github.com/pridkett/cityair2mqtt/aqi"
)

const version = "0.2.0"

// set up a global logger...
// see: https://stackoverflow.com/a/43827612/57626
var logger = log.New(os.Stderr)

type poller struct {
	client      *http.Client
	openWeather *openWeatherClient
	ipLocator   *ipLocator
	tomTom      *tomTomClient // nil without an API key
	waqi        *waqiClient   // only used by the sensor strategy
	strategy    string
	timeout     time.Duration
	concurrency int
	metrics     *pollMetrics
}

func newPoller(cfg *tomlConfig, httpClient *http.Client, metrics *pollMetrics) *poller {
	p := &poller{
		client:      httpClient,
		openWeather: newOpenWeatherClient(httpClient, cfg.OpenWeather),
		ipLocator:   newIPLocator(httpClient, cfg.Ipapi),
		strategy:    cfg.Aqi.Strategy,
		timeout:     time.Duration(cfg.Poll.Timeout) * time.Second,
		concurrency: cfg.Poll.Concurrency,
		metrics:     metrics,
	}
	if cfg.TomTom.ApiKey != "" {
		p.tomTom = newTomTomClient(httpClient, cfg.TomTom)
	}
	if cfg.Aqi.Strategy == strategySensor {
		p.waqi = newWaqiClient(httpClient, cfg.Waqi)
	}
	return p
}

func main() {
	configFile := flag.String("config", "", "Filename with configuration")
	once := flag.Bool("once", false, "Poll every location once, print a JSON report and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger = logger.WithColor()
	if *debug {
		logger = logger.WithDebug()
	}

	if *configFile == "" {
		logger.Fatal("Must specify configuration file with -config FILENAME")
	}
	config, err := loadConfig(*configFile)
	if err != nil {
		logger.Fatal(err)
	}

	registry := prometheus.NewRegistry()
	metrics := newPollMetrics(registry)
	if config.Prometheus.Listen != "" && !*once {
		go serveMetrics(config.Prometheus.Listen, registry)
	}

	var client mqtt.Client
	if config.Mqtt != (tomlConfigMQTT{}) && !*once {
		client, err = mqttConnect(config.Mqtt)
		if err != nil {
			logger.Fatal(err)
		}
		defer client.Disconnect(250)
	} else if !*once {
		logger.Info("No MQTT configuration found - not publishing to MQTT broker")
	}

	var influx influxclient.Client
	if config.Influx != (tomlConfigInflux{}) && !*once {
		influx, err = newInfluxClient(config.Influx)
		if err != nil {
			logger.Fatalf("Error creating InfluxDB Client: %v", err)
		}
		defer influx.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// per-request deadlines come from the poller's context
	httpClient := &http.Client{Timeout: 30 * time.Second}
	p := newPoller(config, httpClient, metrics)

	logger.Infof("Polling %d locations every %d seconds using the %s strategy", len(config.Location), config.Poll.Rate, config.Aqi.Strategy)
	for {
		readings := p.pollAll(ctx, config.Location)

		if *once {
			if err := writeReport(os.Stdout, readings); err != nil {
				logger.Fatal(err)
			}
			return
		}

		for _, r := range readings {
			status := statusFor(r)
			if client != nil {
				if err := publishMQTT(client, config.Mqtt.TopicPrefix, status); err != nil {
					logger.Errorf("MQTT publish for %s failed: %v", status.Location, err)
				}
				if config.Hass.Discovery {
					if err := publishHass(client, config.Hass, status, version); err != nil {
						logger.Errorf("Home Assistant publish for %s failed: %v", status.Location, err)
					}
				}
			}
			if influx != nil {
				if err := publishInflux(influx, config.Influx.Database, config.Influx.Measurement, status, r.Updated); err != nil {
					logger.Errorf("InfluxDB publish for %s failed: %v", status.Location, err)
				}
			}
		}

		logger.Debugf("Sleeping for %d seconds", config.Poll.Rate)
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return
		case <-time.After(time.Duration(config.Poll.Rate) * time.Second):
		}
	}
}

// pollAll polls every location, at most p.concurrency at a time. The returned
// readings are in the same order as locations.
func (p *poller) pollAll(ctx context.Context, locations []tomlConfigLocation) []*locationReading {
	readings := make([]*locationReading, len(locations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, loc := range locations {
		i, loc := i, loc
		g.Go(func() error {
			readings[i] = p.pollLocation(gctx, loc)
			return nil
		})
	}
	// pollLocation records failures on the reading itself
	_ = g.Wait()
	return readings
}

func (p *poller) pollLocation(ctx context.Context, loc tomlConfigLocation) *locationReading {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	r := &locationReading{Location: loc, Updated: time.Now()}
	defer func() {
		p.metrics.observe(loc.Name, r.Result)
	}()

	if loc.hasCoordinates() {
		r.Coords = &coordinates{Name: loc.City, Lat: loc.Lat, Lon: loc.Lon}
	} else {
		city := loc.City
		if loc.locatedByIP() {
			var err error
			if city, err = p.ipLocator.City(ctx); err != nil {
				p.fail(r, stageLocate, err)
				return r
			}
		}
		coords, err := p.openWeather.Geocode(ctx, city)
		if err != nil {
			p.fail(r, stageLocate, err)
			return r
		}
		r.Coords = coords
	}

	concentrations, err := p.openWeather.AirPollution(ctx, r.Coords.Lat, r.Coords.Lon)
	if err != nil {
		p.fail(r, stageFetch, err)
		return r
	}

	if loc.AirGradientUrl != "" {
		agstatus, err := fetchAirGradient(ctx, p.client, loc.AirGradientUrl)
		if err != nil {
			logger.Warnf("%s: using modelled particulates: %v", loc.Name, err)
			p.metrics.failure(loc.Name, stageSensor)
		} else {
			agstatus.overlay(concentrations)
		}
	}
	r.Concentrations = concentrations

	r.Result, err = p.compute(ctx, loc.Name, r.Coords, concentrations)
	if err != nil {
		p.fail(r, stageCompute, err)
	} else {
		logger.Infof("%s: AQI %d (%s), dominant %s", loc.Name, r.Result.Value, r.Result.Category, r.Result.Dominant.Upper())
	}

	if weather, err := p.openWeather.CurrentWeather(ctx, r.Coords.Lat, r.Coords.Lon); err != nil {
		logger.Warnf("%s: no weather: %v", loc.Name, err)
		p.metrics.failure(loc.Name, stageWeather)
	} else {
		r.Weather = weather
	}

	if p.tomTom != nil {
		if flow, err := p.tomTom.Flow(ctx, r.Coords.Lat, r.Coords.Lon); err != nil {
			logger.Warnf("%s: no traffic: %v", loc.Name, err)
			p.metrics.failure(loc.Name, stageTraffic)
		} else {
			r.Traffic = flow
		}
	}
	return r
}

func (p *poller) compute(ctx context.Context, name string, coords *coordinates, c aqi.Concentrations) (*aqi.Result, error) {
	if p.strategy != strategySensor {
		return aqi.Compute(c)
	}

	measured, err := p.waqi.MeasuredAQI(ctx, coords.Lat, coords.Lon)
	if err != nil {
		logger.Warnf("%s: no measured AQI near %.4f,%.4f: %v", name, coords.Lat, coords.Lon, err)
		p.metrics.failure(name, stageMeasured)
	}
	return aqi.PreferMeasured(measured, c)
}

func (p *poller) fail(r *locationReading, stage string, err error) {
	r.Err = err
	p.metrics.failure(r.Location.Name, stage)
	if errors.Is(err, aqi.ErrInsufficientData) {
		logger.Errorf("%s: AQI calculation failed: %v", r.Location.Name, err)
		return
	}
	logger.Errorf("%s: %s failed: %v", r.Location.Name, stage, err)
}

func writeReport(w io.Writer, readings []*locationReading) error {
	reports := make([]report, 0, len(readings))
	for _, r := range readings {
		reports = append(reports, reportFor(r))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

func getJson(ctx context.Context, myClient *http.Client, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	r, err := myClient.Do(req)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	if r.StatusCode < 200 || r.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d from %s", r.StatusCode, req.URL.Path)
	}
	return json.NewDecoder(r.Body).Decode(target)
}
