package aqi_test

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/pridkett/cityair2mqtt/aqi"
	"github.com/stretchr/testify/require"
)

func TestBreakpointBoundaries(t *testing.T) {
	for _, p := range aqi.Pollutants {
		bands := aqi.Breakpoints(p)
		require.Len(t, bands, 6, "pollutant %s", p)
		require.Zero(t, bands[0].CLow, "pollutant %s", p)
		require.Equal(t, aqi.MaxIndex, bands[len(bands)-1].IHigh, "pollutant %s", p)

		for i, bp := range bands {
			low, ok := aqi.SubIndex(p, bp.CLow)
			require.True(t, ok, "%s band %d low", p, i)
			require.Equal(t, bp.ILow, low, "%s band %d low", p, i)

			high, ok := aqi.SubIndex(p, bp.CHigh)
			require.True(t, ok, "%s band %d high", p, i)
			require.Equal(t, bp.IHigh, high, "%s band %d high", p, i)

			if i > 0 {
				require.Greater(t, bp.CLow, bands[i-1].CHigh, "%s band %d overlaps", p, i)
				require.Equal(t, bands[i-1].IHigh+1, bp.ILow, "%s band %d index step", p, i)
			}
		}
	}
}

func TestCOBands(t *testing.T) {
	require.Equal(t, []aqi.Breakpoint{
		{0, 1, 0, 50},
		{1.1, 2, 51, 100},
		{2.1, 10, 101, 200},
		{10.1, 17, 201, 300},
		{17.1, 34, 301, 400},
		{34.1, 50, 401, 500},
	}, aqi.Breakpoints(aqi.CO))
}

func TestBreakpointsIsACopy(t *testing.T) {
	bands := aqi.Breakpoints(aqi.PM25)
	bands[0].CHigh = 1000

	idx, ok := aqi.SubIndex(aqi.PM25, 30)
	require.True(t, ok)
	require.Equal(t, 50, idx)
	require.Nil(t, aqi.Breakpoints(aqi.Pollutant("pm1")))
}

func TestSubIndex(t *testing.T) {
	tests := []struct {
		name      string
		pollutant aqi.Pollutant
		value     float64
		expected  int
		ok        bool
	}{
		{"pm2.5 satisfactory", aqi.PM25, 40, 66, true},
		{"pm2.5 zero", aqi.PM25, 0, 0, true},
		{"pm2.5 top", aqi.PM25, 500, 500, true},
		{"pm2.5 inside gap", aqi.PM25, 30.5, 0, false},
		{"pm2.5 negative", aqi.PM25, -0.01, 0, false},
		{"pm2.5 above top", aqi.PM25, 500.01, 0, false},
		{"pm10 moderate", aqi.PM10, 200, 167, true},
		{"no2 severe", aqi.NO2, 700, 450, true},
		{"so2 poor", aqi.SO2, 600, 253, true},
		{"co fractional", aqi.CO, 1.5, 73, true},
		{"co inside gap", aqi.CO, 1.05, 0, false},
		{"o3 very poor", aqi.O3, 500, 354, true},
		{"unknown pollutant", aqi.Pollutant("nh3"), 10, 0, false},
		{"nan", aqi.PM10, math.NaN(), 0, false},
		{"inf", aqi.PM10, math.Inf(1), 0, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			idx, ok := aqi.SubIndex(test.pollutant, test.value)
			require.Equal(t, test.ok, ok)
			require.Equal(t, test.expected, idx)
		})
	}
}

func TestSubIndexMonotonic(t *testing.T) {
	for _, p := range aqi.Pollutants {
		bands := aqi.Breakpoints(p)
		top := bands[len(bands)-1].CHigh
		step := top / 5000

		prev := -1
		for c := 0.0; c <= top; c += step {
			idx, ok := aqi.SubIndex(p, c)
			if !ok {
				// gaps between bands carry no index
				continue
			}
			require.GreaterOrEqual(t, idx, prev, "%s at %f", p, c)
			prev = idx
		}
	}
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		value    int
		expected aqi.Category
	}{
		{0, aqi.Good},
		{50, aqi.Good},
		{51, aqi.Satisfactory},
		{100, aqi.Satisfactory},
		{101, aqi.Moderate},
		{200, aqi.Moderate},
		{201, aqi.Poor},
		{300, aqi.Poor},
		{301, aqi.VeryPoor},
		{400, aqi.VeryPoor},
		{401, aqi.Severe},
		{500, aqi.Severe},
	}

	for _, test := range tests {
		require.Equal(t, test.expected, aqi.CategoryFor(test.value), "value %d", test.value)
	}
}

func TestCompute(t *testing.T) {
	res, err := aqi.Compute(aqi.Concentrations{
		aqi.PM25: 40,
		aqi.PM10: 60,
		aqi.NO2:  12.5,
		aqi.SO2:  4.2,
		aqi.CO:   0.4,
		aqi.O3:   68,
	})
	require.NoError(t, err)
	// ozone outranks particulates here
	require.Equal(t, 68, res.Value)
	require.Equal(t, aqi.Satisfactory, res.Category)
	require.Equal(t, aqi.O3, res.Dominant)
	require.Equal(t, aqi.SourceCPCB, res.Source)
	require.Len(t, res.SubIndices, 6)
	require.Equal(t, 66, *res.SubIndices[aqi.PM25])
	require.Equal(t, 60, *res.SubIndices[aqi.PM10])
	require.Equal(t, 20, *res.SubIndices[aqi.CO])
	require.Equal(t, 68, *res.SubIndices[aqi.O3])
}

func TestComputeSkipsInvalidReadings(t *testing.T) {
	res, err := aqi.Compute(aqi.Concentrations{
		aqi.PM25: -3,
		aqi.PM10: 200,
		aqi.CO:   51,
	})
	require.NoError(t, err)
	require.Equal(t, 167, res.Value)
	require.Equal(t, aqi.Moderate, res.Category)
	require.Equal(t, aqi.PM10, res.Dominant)

	require.Len(t, res.SubIndices, 3)
	require.Contains(t, res.SubIndices, aqi.PM25)
	require.Nil(t, res.SubIndices[aqi.PM25])
	require.Nil(t, res.SubIndices[aqi.CO])
	require.NotContains(t, res.SubIndices, aqi.NO2)
}

func TestComputeIgnoresUnknownPollutants(t *testing.T) {
	res, err := aqi.Compute(aqi.Concentrations{
		aqi.Pollutant("nh3"): 900,
		aqi.SO2:              20,
	})
	require.NoError(t, err)
	require.Equal(t, 25, res.Value)
	require.Equal(t, aqi.SO2, res.Dominant)
	require.NotContains(t, res.SubIndices, aqi.Pollutant("nh3"))
}

func TestComputeInsufficientData(t *testing.T) {
	tests := []struct {
		name  string
		input aqi.Concentrations
	}{
		{"nil", nil},
		{"empty", aqi.Concentrations{}},
		{"all out of range", aqi.Concentrations{
			aqi.PM25: 501,
			aqi.PM10: -1,
			aqi.NO2:  1000.5,
			aqi.SO2:  2001,
			aqi.CO:   50.5,
			aqi.O3:   math.NaN(),
		}},
		{"unknown only", aqi.Concentrations{aqi.Pollutant("nh3"): 10}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res, err := aqi.Compute(test.input)
			require.Nil(t, res)
			require.True(t, errors.Is(err, aqi.ErrInsufficientData))
		})
	}
}

func TestComputeTieGoesToFirstPollutant(t *testing.T) {
	input := aqi.Concentrations{
		aqi.O3:   100,
		aqi.PM10: 100,
		aqi.PM25: 60,
	}

	for i := 0; i < 50; i++ {
		res, err := aqi.Compute(input)
		require.NoError(t, err)
		require.Equal(t, 100, res.Value)
		require.Equal(t, aqi.PM25, res.Dominant)
	}
}

func TestComputeConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(pm10 float64) {
			defer wg.Done()
			res, err := aqi.Compute(aqi.Concentrations{aqi.PM10: pm10})
			if err != nil || res.Dominant != aqi.PM10 {
				t.Errorf("unexpected result for %f: %v %v", pm10, res, err)
			}
		}(float64(i * 10))
	}
	wg.Wait()
}

func TestResultJSON(t *testing.T) {
	res, err := aqi.Compute(aqi.Concentrations{
		aqi.PM25: 40,
		aqi.CO:   60,
	})
	require.NoError(t, err)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"aqi": {"value": 66, "category": "Satisfactory", "source": "CPCB multi-pollutant formula"},
		"dominant_pollutant": "PM2_5",
		"sub_indices": {"pm2_5": 66, "co": null}
	}`, string(out))
}

func TestPreferMeasured(t *testing.T) {
	measured := 187
	res, err := aqi.PreferMeasured(&measured, aqi.Concentrations{aqi.PM25: 40, aqi.PM10: 60})
	require.NoError(t, err)
	require.Equal(t, 187, res.Value)
	require.Equal(t, aqi.Moderate, res.Category)
	require.Equal(t, aqi.PM25, res.Dominant)
	require.Equal(t, aqi.SourceMeasured, res.Source)
	require.Equal(t, 66, *res.SubIndices[aqi.PM25])
}

func TestPreferMeasuredFallsBackToPM25(t *testing.T) {
	implausible := 999
	for _, measured := range []*int{nil, &implausible} {
		res, err := aqi.PreferMeasured(measured, aqi.Concentrations{
			aqi.PM25: 40,
			aqi.PM10: 431,
		})
		require.NoError(t, err)
		require.Equal(t, 66, res.Value)
		require.Equal(t, aqi.PM25, res.Dominant)
		require.Equal(t, aqi.SourcePM25Only, res.Source)
		require.NotContains(t, res.SubIndices, aqi.PM10)
	}

	_, err := aqi.PreferMeasured(nil, aqi.Concentrations{aqi.PM10: 40})
	require.ErrorIs(t, err, aqi.ErrInsufficientData)

	_, err = aqi.PreferMeasured(nil, aqi.Concentrations{aqi.PM25: 30.5})
	require.ErrorIs(t, err, aqi.ErrInsufficientData)
}

func TestPollutantUpper(t *testing.T) {
	require.Equal(t, "PM2_5", aqi.PM25.Upper())
	require.Equal(t, "O3", aqi.O3.Upper())
	require.Equal(t, "mg/m³", aqi.CO.Unit())
	require.Equal(t, "µg/m³", aqi.NO2.Unit())
	require.True(t, aqi.SO2.Valid())
	require.False(t, aqi.Pollutant("nh3").Valid())
}
