// Package pollutant defines the canonical pollutant and meteorological
// feature orderings shared by the models, the scalers and the AQI table.
//
// The orderings are load-bearing: the pollutant scaler, the tree ensemble and
// the sequence model were all fitted against exactly these sequences.
package pollutant

// Pollutant names a predicted pollutant.
type Pollutant string

// Predicted pollutants.
const (
	PM25  Pollutant = "PM2.5"
	PM10  Pollutant = "PM10"
	NO2   Pollutant = "NO2"
	SO2   Pollutant = "SO2"
	CO    Pollutant = "CO"
	Ozone Pollutant = "Ozone"
)

// Feature names a meteorological input feature.
type Feature string

// Meteorological features.
const (
	RelativeHumidity   Feature = "RH"
	WindSpeed          Feature = "WS (m/s)"
	Temperature        Feature = "Temp"
	BarometricPressure Feature = "BP (mmHg)"
)

var canonical = [...]Pollutant{PM25, PM10, NO2, SO2, CO, Ozone}

var features = [...]Feature{RelativeHumidity, WindSpeed, Temperature, BarometricPressure}

// aliases maps short request keys to feature names.
var aliases = map[string]Feature{
	"WS": WindSpeed,
	"BP": BarometricPressure,
}

// Count is the number of predicted pollutants.
const Count = len(canonical)

// FeatureCount is the number of meteorological features.
const FeatureCount = len(features)

// Canonical returns the pollutants in model output order.
// The returned slice is a fresh copy.
func Canonical() []Pollutant {
	out := make([]Pollutant, Count)
	copy(out, canonical[:])
	return out
}

// Features returns the meteorological features in model input order.
func Features() []Feature {
	out := make([]Feature, FeatureCount)
	copy(out, features[:])
	return out
}

// ResolveFeature maps a request key to a feature name. The short aliases
// "WS" and "BP" are accepted; any other key is returned unchanged.
func ResolveFeature(key string) Feature {
	if f, ok := aliases[key]; ok {
		return f
	}
	return Feature(key)
}

// Reading is a single meteorological observation keyed by feature.
type Reading map[Feature]float64

// Vector returns the reading as a raw vector in canonical feature order.
// Missing features are reported by ok=false.
func (r Reading) Vector() (vec []float64, ok bool) {
	vec = make([]float64, FeatureCount)
	for i, f := range features {
		v, present := r[f]
		if !present {
			return nil, false
		}
		vec[i] = v
	}
	return vec, true
}

// Concentrations maps each pollutant to a physical concentration.
type Concentrations map[Pollutant]float64

// FromVector builds a concentration map from a vector in canonical order.
// It returns nil when the vector length does not match Count.
func FromVector(vec []float64) Concentrations {
	if len(vec) != Count {
		return nil
	}
	out := make(Concentrations, Count)
	for i, p := range canonical {
		out[p] = vec[i]
	}
	return out
}
