package aqi

// Pollutant identifies one of the pollutants covered by the CPCB index.
type Pollutant string

const (
	// PM25 is fine particulate matter, µg/m³.
	PM25 Pollutant = "pm2_5"
	// PM10 is coarse particulate matter, µg/m³.
	PM10 Pollutant = "pm10"
	// NO2 is nitrogen dioxide, µg/m³.
	NO2 Pollutant = "no2"
	// SO2 is sulphur dioxide, µg/m³.
	SO2 Pollutant = "so2"
	// CO is carbon monoxide, mg/m³.
	CO Pollutant = "co"
	// O3 is ozone, µg/m³.
	O3 Pollutant = "o3"
)

// Pollutants is the fixed iteration order. Ties for the dominant pollutant
// go to whichever comes first here.
var Pollutants = []Pollutant{PM25, PM10, NO2, SO2, CO, O3}

// Upper returns the upper-cased identifier, e.g. PM2_5
func (p Pollutant) Upper() string {
	switch p {
	case PM25:
		return "PM2_5"
	case PM10:
		return "PM10"
	case NO2:
		return "NO2"
	case SO2:
		return "SO2"
	case CO:
		return "CO"
	case O3:
		return "O3"
	}
	return ""
}

// Unit is the concentration unit the breakpoints for p are expressed in.
func (p Pollutant) Unit() string {
	if p == CO {
		return "mg/m³"
	}
	return "µg/m³"
}

// Valid reports whether p has a breakpoint table.
func (p Pollutant) Valid() bool {
	_, ok := cpcbBreakpoints[p]
	return ok
}

// Breakpoint maps a concentration band onto an index band
type Breakpoint struct {
	CLow  float64 // Lower bound of concentration
	CHigh float64 // Upper bound of concentration
	ILow  int     // Lower bound of the sub-index
	IHigh int     // Upper bound of the sub-index
}

// CPCB (Central Pollution Control Board) National AQI breakpoints
var cpcbBreakpoints = map[Pollutant][]Breakpoint{
	PM25: {
		{0, 30, 0, 50},       // Good
		{31, 60, 51, 100},    // Satisfactory
		{61, 90, 101, 200},   // Moderate
		{91, 120, 201, 300},  // Poor
		{121, 250, 301, 400}, // Very Poor
		{251, 500, 401, 500}, // Severe
	},
	PM10: {
		{0, 50, 0, 50},
		{51, 100, 51, 100},
		{101, 250, 101, 200},
		{251, 350, 201, 300},
		{351, 430, 301, 400},
		{431, 600, 401, 500},
	},
	NO2: {
		{0, 40, 0, 50},
		{41, 80, 51, 100},
		{81, 180, 101, 200},
		{181, 280, 201, 300},
		{281, 400, 301, 400},
		{401, 1000, 401, 500},
	},
	SO2: {
		{0, 40, 0, 50},
		{41, 80, 51, 100},
		{81, 380, 101, 200},
		{381, 800, 201, 300},
		{801, 1600, 301, 400},
		{1601, 2000, 401, 500},
	},
	// mg/m³
	CO: {
		{0, 1, 0, 50},
		{1.1, 2, 51, 100},
		{2.1, 10, 101, 200},
		{10.1, 17, 201, 300},
		{17.1, 34, 301, 400},
		{34.1, 50, 401, 500},
	},
	O3: {
		{0, 50, 0, 50},
		{51, 100, 51, 100},
		{101, 168, 101, 200},
		{169, 208, 201, 300},
		{209, 748, 301, 400},
		{749, 1000, 401, 500},
	},
}

// Breakpoints returns a copy of the band table for p, or nil for an unknown
// pollutant.
func Breakpoints(p Pollutant) []Breakpoint {
	bands, ok := cpcbBreakpoints[p]
	if !ok {
		return nil
	}
	out := make([]Breakpoint, len(bands))
	copy(out, bands)
	return out
}
