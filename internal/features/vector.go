package features

import (
	"fmt"
	"strings"

	"github.com/bobby-s-dev/firerisk/internal/models"
)

// Size is the number of model inputs.
const Size = 8

// Vector is the classifier input. Its column order must match Names; the
// scaler and ensemble were fitted on exactly this order.
type Vector [Size]float64

// Names lists the feature columns in model order.
var Names = [Size]string{"FFMC", "DMC", "DC", "ISI", "temp", "RH", "wind", "rain"}

// Assemble places indices and raw weather into model order.
func Assemble(idx models.Indices, obs models.Observation) Vector {
	return Vector{
		idx.FFMC,
		idx.DMC,
		idx.DC,
		idx.ISI,
		obs.Temperature,
		obs.Humidity,
		obs.WindSpeed,
		obs.Rain,
	}
}

func (v Vector) Slice() []float64 {
	out := make([]float64, Size)
	copy(out, v[:])
	return out
}

// Header renders Names the way features.txt stores them.
func Header() string {
	return strings.Join(Names[:], ",")
}

// CheckOrder verifies that a persisted name list matches Names exactly.
func CheckOrder(names []string) error {
	if len(names) != Size {
		return fmt.Errorf("expected %d features, got %d", Size, len(names))
	}
	for i, name := range names {
		if strings.TrimSpace(name) != Names[i] {
			return fmt.Errorf("feature %d is %q, expected %q", i, name, Names[i])
		}
	}
	return nil
}
