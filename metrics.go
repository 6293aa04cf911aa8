package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pridkett/cityair2mqtt/aqi"
)

const (
	stageLocate   = "locate"
	stageFetch    = "fetch"
	stageCompute  = "compute"
	stageWeather  = "weather"
	stageTraffic  = "traffic"
	stageSensor   = "sensor"
	stageMeasured = "measured"
)

type pollMetrics struct {
	aqi      *prometheus.GaugeVec
	subIndex *prometheus.GaugeVec
	failures *prometheus.CounterVec
}

func newPollMetrics(reg prometheus.Registerer) *pollMetrics {
	m := &pollMetrics{
		aqi: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cityair_aqi",
			Help: "Most recent CPCB air quality index per location",
		}, []string{"location"}),
		subIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cityair_sub_index",
			Help: "Most recent sub-index per location and pollutant",
		}, []string{"location", "pollutant"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cityair_poll_failures_total",
			Help: "Failed poll stages per location",
		}, []string{"location", "stage"}),
	}
	reg.MustRegister(m.aqi, m.subIndex, m.failures)
	return m
}

// observe records a fresh result, dropping series that no longer have a value.
func (m *pollMetrics) observe(location string, res *aqi.Result) {
	if res == nil {
		m.aqi.DeleteLabelValues(location)
		for _, p := range aqi.Pollutants {
			m.subIndex.DeleteLabelValues(location, string(p))
		}
		return
	}

	m.aqi.WithLabelValues(location).Set(float64(res.Value))
	for _, p := range aqi.Pollutants {
		if idx := res.SubIndices[p]; idx != nil {
			m.subIndex.WithLabelValues(location, string(p)).Set(float64(*idx))
		} else {
			m.subIndex.DeleteLabelValues(location, string(p))
		}
	}
}

func (m *pollMetrics) failure(location, stage string) {
	m.failures.WithLabelValues(location, stage).Inc()
}

func serveMetrics(listen string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Infof("Serving Prometheus metrics on %s/metrics", listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Metrics listener stopped: %v", err)
	}
}
