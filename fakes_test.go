package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const delhiComponents = `{"co":1201.63,"no":0.5,"no2":38.39,"o3":68,"so2":12,"pm2_5":40,"pm10":60,"nh3":5.1}`

// fakeAPIs stands in for OpenWeather, TomTom, WAQI, ipapi and an AirGradient
// device.
type fakeAPIs struct {
	server *httptest.Server

	mu          sync.Mutex
	components  string
	waqi        string
	airGradient string
	ipapi       string
	failWeather bool

	geocodeHits atomic.Int32
	ipapiHits   atomic.Int32
}

func newFakeAPIs(t *testing.T) *fakeAPIs {
	f := &fakeAPIs{
		components:  delhiComponents,
		waqi:        `{"status":"ok","data":{"aqi":187,"idx":2553}}`,
		airGradient: `{"serialno":"84fce6","pm02":20,"pm02Compensated":95,"pm10":120,"model":"I-9PSL"}`,
		ipapi:       `{"ip":"203.0.113.7","city":"Lucknow","region":"Uttar Pradesh","country_name":"India"}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/geo/1.0/direct", func(w http.ResponseWriter, r *http.Request) {
		f.geocodeHits.Add(1)
		q := r.URL.Query().Get("q")
		if q == "Atlantis" {
			fmt.Fprint(w, `[]`)
			return
		}
		_ = json.NewEncoder(w).Encode([]coordinates{{Name: q, Lat: 28.61, Lon: 77.21, Country: "IN"}})
	})
	mux.HandleFunc("/data/2.5/air_pollution", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		fmt.Fprintf(w, `{"coord":{"lon":77.21,"lat":28.61},"list":[{"main":{"aqi":3},"components":%s,"dt":1700000000}]}`, f.components)
	})
	mux.HandleFunc("/data/2.5/weather", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failWeather {
			http.Error(w, `{"cod":401}`, http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"name":"Delhi","main":{"temp":31.5,"feels_like":34.2,"humidity":48,"pressure":1008},"wind":{"speed":3.6},"weather":[{"description":"haze","icon":"50d"}]}`)
	})
	mux.HandleFunc("/traffic/services/4/flowSegmentData/absolute/10/json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"flowSegmentData":{"currentSpeed":18,"freeFlowSpeed":40,"currentTravelTime":300,"freeFlowTravelTime":135,"confidence":0.9}}`)
	})
	mux.HandleFunc("/feed/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		fmt.Fprint(w, f.waqi)
	})
	mux.HandleFunc("/measures/current", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		fmt.Fprint(w, f.airGradient)
	})

	mux.HandleFunc("/json/", func(w http.ResponseWriter, r *http.Request) {
		f.ipapiHits.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		fmt.Fprint(w, f.ipapi)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPIs) set(fn func(f *fakeAPIs)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPIs) config(locations ...tomlConfigLocation) *tomlConfig {
	cfg := &tomlConfig{
		OpenWeather: tomlConfigOpenWeather{ApiKey: "owm", BaseUrl: f.server.URL},
		TomTom:      tomlConfigTomTom{ApiKey: "tt", BaseUrl: f.server.URL},
		Waqi:        tomlConfigWaqi{Token: "waqi", BaseUrl: f.server.URL},
		Ipapi:       tomlConfigIpapi{BaseUrl: f.server.URL},
		Location:    locations,
	}
	cfg.applyDefaults()
	return cfg
}

func (f *fakeAPIs) poller(t *testing.T, cfg *tomlConfig) (*poller, *pollMetrics) {
	t.Helper()
	metrics := newPollMetrics(prometheus.NewRegistry())
	return newPoller(cfg, &http.Client{Timeout: 5 * time.Second}, metrics), metrics
}
