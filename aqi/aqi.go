// Package aqi computes the Indian National Air Quality Index (CPCB) from raw
// pollutant concentrations.
package aqi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Values of Result.Source.
const (
	// SourceCPCB marks an index aggregated over every pollutant with a sub-index.
	SourceCPCB = "CPCB multi-pollutant formula"
	// SourcePM25Only marks an index computed from PM2.5 alone.
	SourcePM25Only = "CPCB PM2.5 formula"
	// SourceMeasured marks an index reported by a monitoring station.
	SourceMeasured = "sensor measured AQI"
)

// MaxIndex is the top of the index scale.
const MaxIndex = 500

// ErrInsufficientData is returned when no pollutant yields a sub-index.
var ErrInsufficientData = errors.New("insufficient data to compute AQI")

// Category is the health category for an index value
type Category string

const (
	Good         Category = "Good"
	Satisfactory Category = "Satisfactory"
	Moderate     Category = "Moderate"
	Poor         Category = "Poor"
	VeryPoor     Category = "Very Poor"
	Severe       Category = "Severe"
)

// CategoryFor maps an index value onto its category. Upper bounds are inclusive.
func CategoryFor(aqi int) Category {
	switch {
	case aqi <= 50:
		return Good
	case aqi <= 100:
		return Satisfactory
	case aqi <= 200:
		return Moderate
	case aqi <= 300:
		return Poor
	case aqi <= 400:
		return VeryPoor
	default:
		return Severe
	}
}

// Concentrations holds one reading per pollutant in the pollutant's native
// unit (see Pollutant.Unit). A missing key means no reading.
type Concentrations map[Pollutant]float64

// Result is the aggregated index for one snapshot of concentrations.
type Result struct {
	Value    int
	Category Category
	Dominant Pollutant
	// SubIndices has an entry for every pollutant in the input; nil when the
	// concentration fell outside every band.
	SubIndices map[Pollutant]*int
	Source     string
}

type resultIndex struct {
	Value    int      `json:"value"`
	Category Category `json:"category"`
	Source   string   `json:"source,omitempty"`
}

type resultJSON struct {
	AQI               resultIndex        `json:"aqi"`
	DominantPollutant string             `json:"dominant_pollutant"`
	SubIndices        map[Pollutant]*int `json:"sub_indices"`
}

// MarshalJSON renders r in the response shape consumers expect.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		AQI: resultIndex{
			Value:    r.Value,
			Category: r.Category,
			Source:   r.Source,
		},
		DominantPollutant: r.Dominant.Upper(),
		SubIndices:        r.SubIndices,
	})
}

// SubIndex calculates the sub-index for a single concentration. The second
// return value is false for an unknown pollutant, a non-finite value, or a
// concentration that falls outside every band.
func SubIndex(p Pollutant, concentration float64) (int, bool) {
	bands, ok := cpcbBreakpoints[p]
	if !ok {
		return 0, false
	}
	if math.IsNaN(concentration) || math.IsInf(concentration, 0) {
		return 0, false
	}
	for _, bp := range bands {
		if concentration >= bp.CLow && concentration <= bp.CHigh {
			return int(math.Round((float64(bp.IHigh)-float64(bp.ILow))/(bp.CHigh-bp.CLow)*(concentration-bp.CLow) + float64(bp.ILow))), true
		}
	}
	return 0, false
}

// Compute aggregates the sub-indices of every pollutant in c. The index is the
// maximum valid sub-index; ErrInsufficientData is returned if there is none.
func Compute(c Concentrations) (*Result, error) {
	return compute(c, SourceCPCB)
}

func compute(c Concentrations, source string) (*Result, error) {
	res := &Result{
		Value:      -1,
		SubIndices: subIndices(c),
		Source:     source,
	}

	for _, p := range Pollutants {
		idx := res.SubIndices[p]
		// strict comparison keeps the earliest pollutant on a tie
		if idx != nil && *idx > res.Value {
			res.Value = *idx
			res.Dominant = p
		}
	}

	if res.Value < 0 {
		return nil, fmt.Errorf("%w: %d readings, none within range", ErrInsufficientData, len(c))
	}
	res.Category = CategoryFor(res.Value)
	return res, nil
}

// subIndices has an entry for every known pollutant present in c.
func subIndices(c Concentrations) map[Pollutant]*int {
	out := make(map[Pollutant]*int, len(c))
	for _, p := range Pollutants {
		v, present := c[p]
		if !present {
			continue
		}
		if idx, ok := SubIndex(p, v); ok {
			out[p] = &idx
		} else {
			out[p] = nil
		}
	}
	return out
}

// PreferMeasured uses an index reported by a monitoring station when one is
// available and plausible, falling back to the PM2.5 sub-index otherwise.
func PreferMeasured(measured *int, c Concentrations) (*Result, error) {
	if measured != nil && *measured >= 0 && *measured <= MaxIndex {
		res := &Result{
			Value:      *measured,
			Category:   CategoryFor(*measured),
			Dominant:   PM25,
			SubIndices: subIndices(c),
			Source:     SourceMeasured,
		}
		return res, nil
	}

	pm25, ok := c[PM25]
	if !ok {
		return nil, fmt.Errorf("%w: no measured index and no PM2.5 reading", ErrInsufficientData)
	}
	return compute(Concentrations{PM25: pm25}, SourcePM25Only)
}
