package main

import (
	"time"

	"github.com/pridkett/cityair2mqtt/aqi"
)

// everything gathered for one location in one poll
type locationReading struct {
	Location       tomlConfigLocation
	Coords         *coordinates
	Concentrations aqi.Concentrations
	Result         *aqi.Result
	Err            error // set when no index could be produced
	Weather        *currentWeather
	Traffic        *trafficFlow
	Updated        time.Time
}

// Published data structure. Nil fields are not published.
type locationStatus struct {
	Location        string   `mqtt:"-" hass:"-" influx:"-"`
	City            string   `mqtt:"city" hass:"-" influx:"-"`
	Lat             float64  `mqtt:"lat" hass:"-" influx:"lat"`
	Lon             float64  `mqtt:"lon" hass:"-" influx:"lon"`
	AQI             *int     `mqtt:"aqi" hass:"aqi,-,aqi" influx:"aqi"`
	Category        *string  `mqtt:"category" hass:"category" influx:"category"`
	Dominant        *string  `mqtt:"dominant_pollutant" hass:"dominant_pollutant" influx:"dominant_pollutant"`
	AQISource       *string  `mqtt:"aqi_source" hass:"-" influx:"aqi_source"`
	Pm25            *float64 `mqtt:"pm2_5" hass:"pm2_5,µg/m³,pm25" influx:"pm2_5"`
	Pm10            *float64 `mqtt:"pm10" hass:"pm10,µg/m³,pm10" influx:"pm10"`
	No2             *float64 `mqtt:"no2" hass:"no2,µg/m³,nitrogen_dioxide" influx:"no2"`
	So2             *float64 `mqtt:"so2" hass:"so2,µg/m³,sulphur_dioxide" influx:"so2"`
	Co              *float64 `mqtt:"co" hass:"co,mg/m³" influx:"co"`
	O3              *float64 `mqtt:"o3" hass:"o3,µg/m³,ozone" influx:"o3"`
	SubIndexPm25    *int     `mqtt:"sub_index_pm2_5" hass:"sub_index_pm2_5" influx:"sub_index_pm2_5"`
	SubIndexPm10    *int     `mqtt:"sub_index_pm10" hass:"sub_index_pm10" influx:"sub_index_pm10"`
	SubIndexNo2     *int     `mqtt:"sub_index_no2" hass:"sub_index_no2" influx:"sub_index_no2"`
	SubIndexSo2     *int     `mqtt:"sub_index_so2" hass:"sub_index_so2" influx:"sub_index_so2"`
	SubIndexCo      *int     `mqtt:"sub_index_co" hass:"sub_index_co" influx:"sub_index_co"`
	SubIndexO3      *int     `mqtt:"sub_index_o3" hass:"sub_index_o3" influx:"sub_index_o3"`
	Temperature     *float64 `mqtt:"temperature" hass:"temperature,°C,temperature" influx:"temperature"`
	FeelsLike       *float64 `mqtt:"feels_like" hass:"feels_like,°C,temperature" influx:"feels_like"`
	Humidity        *int     `mqtt:"humidity" hass:"humidity,%,humidity" influx:"humidity"`
	Pressure        *int     `mqtt:"pressure" hass:"pressure,hPa,pressure" influx:"pressure"`
	WindSpeed       *float64 `mqtt:"wind_speed" hass:"wind_speed,m/s,wind_speed" influx:"wind_speed"`
	Weather         *string  `mqtt:"weather" hass:"weather" influx:"weather"`
	TrafficSpeed    *float64 `mqtt:"traffic_speed" hass:"traffic_speed,km/h,speed" influx:"traffic_speed"`
	TrafficFreeFlow *float64 `mqtt:"traffic_normal_speed" hass:"-" influx:"traffic_normal_speed"`
	TrafficDelay    *int     `mqtt:"traffic_delay" hass:"traffic_delay,s,duration" influx:"traffic_delay"`
	Congestion      *string  `mqtt:"congestion" hass:"congestion" influx:"congestion"`
}

func ptr[T any](v T) *T {
	return &v
}

func statusFor(r *locationReading) *locationStatus {
	status := &locationStatus{
		Location: r.Location.Name,
		City:     r.Location.City,
		Lat:      r.Location.Lat,
		Lon:      r.Location.Lon,
	}
	if r.Coords != nil {
		if r.Coords.Name != "" {
			status.City = r.Coords.Name
		}
		status.Lat = r.Coords.Lat
		status.Lon = r.Coords.Lon
	}

	concentration := func(p aqi.Pollutant) *float64 {
		if v, ok := r.Concentrations[p]; ok {
			return ptr(v)
		}
		return nil
	}
	status.Pm25 = concentration(aqi.PM25)
	status.Pm10 = concentration(aqi.PM10)
	status.No2 = concentration(aqi.NO2)
	status.So2 = concentration(aqi.SO2)
	status.Co = concentration(aqi.CO)
	status.O3 = concentration(aqi.O3)

	if res := r.Result; res != nil {
		status.AQI = ptr(res.Value)
		status.Category = ptr(string(res.Category))
		status.Dominant = ptr(res.Dominant.Upper())
		status.AQISource = ptr(res.Source)
		status.SubIndexPm25 = res.SubIndices[aqi.PM25]
		status.SubIndexPm10 = res.SubIndices[aqi.PM10]
		status.SubIndexNo2 = res.SubIndices[aqi.NO2]
		status.SubIndexSo2 = res.SubIndices[aqi.SO2]
		status.SubIndexCo = res.SubIndices[aqi.CO]
		status.SubIndexO3 = res.SubIndices[aqi.O3]
	}

	if w := r.Weather; w != nil {
		status.Temperature = ptr(w.Temperature)
		status.FeelsLike = ptr(w.FeelsLike)
		status.Humidity = ptr(w.Humidity)
		status.Pressure = ptr(w.Pressure)
		status.WindSpeed = ptr(w.WindSpeed)
		status.Weather = ptr(w.Description)
	}

	if t := r.Traffic; t != nil {
		status.TrafficSpeed = ptr(t.CurrentSpeed)
		status.TrafficFreeFlow = ptr(t.FreeFlowSpeed)
		status.TrafficDelay = ptr(t.Delay)
		status.Congestion = ptr(t.Congestion)
	}
	return status
}

type reportIndex struct {
	Value    int    `json:"value"`
	Category string `json:"category"`
	Source   string `json:"source"`
}

type reportPollutants struct {
	Unit   map[aqi.Pollutant]string `json:"unit"`
	Values aqi.Concentrations       `json:"values"`
}

// JSON document printed by -once
type report struct {
	Location          string                 `json:"location"`
	City              string                 `json:"city,omitempty"`
	Lat               float64                `json:"lat"`
	Lon               float64                `json:"lon"`
	AQI               *reportIndex           `json:"aqi,omitempty"`
	DominantPollutant string                 `json:"dominant_pollutant,omitempty"`
	Confidence        string                 `json:"confidence,omitempty"`
	Pollutants        *reportPollutants      `json:"pollutants,omitempty"`
	SubIndices        map[aqi.Pollutant]*int `json:"sub_indices,omitempty"`
	Weather           *currentWeather        `json:"weather,omitempty"`
	Traffic           *trafficFlow           `json:"traffic,omitempty"`
	Error             string                 `json:"error,omitempty"`
	LastUpdated       time.Time              `json:"last_updated"`
}

func reportFor(r *locationReading) report {
	status := statusFor(r)
	out := report{
		Location:    status.Location,
		City:        status.City,
		Lat:         status.Lat,
		Lon:         status.Lon,
		Weather:     r.Weather,
		Traffic:     r.Traffic,
		LastUpdated: r.Updated.UTC(),
	}
	if r.Concentrations != nil {
		units := make(map[aqi.Pollutant]string, len(r.Concentrations))
		for p := range r.Concentrations {
			units[p] = p.Unit()
		}
		out.Pollutants = &reportPollutants{Unit: units, Values: r.Concentrations}
	}
	if res := r.Result; res != nil {
		out.AQI = &reportIndex{
			Value:    res.Value,
			Category: string(res.Category),
			Source:   res.Source,
		}
		out.DominantPollutant = res.Dominant.Upper()
		out.Confidence = confidenceFor(res)
		out.SubIndices = res.SubIndices
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

// a station reading is trusted over an index derived from modelled data
func confidenceFor(res *aqi.Result) string {
	if res.Source == aqi.SourceMeasured {
		return "high"
	}
	return "medium"
}
