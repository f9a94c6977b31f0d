package aqi

import (
	"fmt"

	"github.com/okian/aqicast/internal/domain/pollutant"
)

// Breakpoints holds the parallel concentration and index anchors for one
// pollutant. Index 0 is the lower bound of the first segment. A
// concentration above the last anchor takes Ceiling; a zero Ceiling means
// the last index value.
type Breakpoints struct {
	Concentration []float64
	Index         []float64
	Ceiling       float64
}

// Table maps each pollutant to its breakpoints.
type Table map[pollutant.Pollutant]Breakpoints

// standard is the embedded breakpoint table. Concentrations are in the
// units the pollutant scaler was fitted in (ug/m3, CO in mg/m3, ozone in ppb).
// Past its last concentration anchor every pollutant saturates at 500.
var standard = Table{
	pollutant.PM25: {
		Concentration: []float64{0, 12.1, 35.5, 55.5, 150.5, 250.5, 350.5},
		Index:         []float64{0, 50, 100, 150, 200, 300, 400},
		Ceiling:       500,
	},
	pollutant.PM10: {
		Concentration: []float64{0, 55, 155, 255, 355, 425, 505},
		Index:         []float64{0, 50, 100, 150, 200, 300, 400},
		Ceiling:       500,
	},
	pollutant.NO2: {
		Concentration: []float64{0, 54, 101, 361, 650, 1250, 1650},
		Index:         []float64{0, 50, 100, 150, 200, 300, 400},
		Ceiling:       500,
	},
	pollutant.SO2: {
		Concentration: []float64{0, 36, 76, 186, 305, 605, 805},
		Index:         []float64{0, 50, 100, 150, 200, 300, 400},
		Ceiling:       500,
	},
	pollutant.CO: {
		Concentration: []float64{0, 4.5, 9.5, 12.5, 15.5, 30.5, 40.5},
		Index:         []float64{0, 50, 100, 150, 200, 300, 400},
		Ceiling:       500,
	},
	pollutant.Ozone: {
		Concentration: []float64{0, 55, 71, 86, 106, 201},
		Index:         []float64{0, 50, 100, 150, 200, 300},
		Ceiling:       500,
	},
}

// StandardTable returns a deep copy of the embedded breakpoint table.
func StandardTable() Table {
	return standard.clone()
}

func (t Table) clone() Table {
	out := make(Table, len(t))
	for p, bp := range t {
		out[p] = Breakpoints{
			Concentration: append([]float64(nil), bp.Concentration...),
			Index:         append([]float64(nil), bp.Index...),
			Ceiling:       bp.Ceiling,
		}
	}
	return out
}

// Validate checks that every pollutant has two sequences of equal length of
// at least two, strictly increasing concentrations, non-decreasing indices
// and a ceiling, when set, no lower than the last index.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty table", ErrInvalidTable)
	}
	for p, bp := range t {
		c, a := bp.Concentration, bp.Index
		if len(c) != len(a) {
			return fmt.Errorf("%w: %s has %d concentration and %d index breakpoints", ErrInvalidTable, p, len(c), len(a))
		}
		if len(c) < 2 {
			return fmt.Errorf("%w: %s needs at least two breakpoints", ErrInvalidTable, p)
		}
		for i := 1; i < len(c); i++ {
			if c[i] <= c[i-1] {
				return fmt.Errorf("%w: %s concentrations not strictly increasing at %d", ErrInvalidTable, p, i)
			}
			if a[i] < a[i-1] {
				return fmt.Errorf("%w: %s indices decreasing at %d", ErrInvalidTable, p, i)
			}
		}
		if bp.Ceiling != 0 && bp.Ceiling < a[len(a)-1] {
			return fmt.Errorf("%w: %s ceiling %g below last index %g", ErrInvalidTable, p, bp.Ceiling, a[len(a)-1])
		}
	}
	return nil
}
