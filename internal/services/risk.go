package services

import (
	"math"

	"github.com/bobby-s-dev/firerisk/internal/models"
)

// Temperature thresholds below which the classifier's score is capped.
const (
	ColdTemperature = 5.0
	CoolTemperature = 10.0

	ColdScoreCap = 20
	CoolScoreCap = 40
)

type RiskScore struct {
	Score    int
	Category models.RiskCategory
	Label    int
}

// ScoreRisk turns a fire probability into a 0-100 score and category.
// Caps are applied before categorizing. Below ColdTemperature the label is
// forced to 0 whatever the classifier said.
func ScoreRisk(probability float64, label int, temperature float64) RiskScore {
	score := int(math.Floor(probability * 100))
	score = min(100, max(0, score))

	switch {
	case temperature < ColdTemperature:
		score = min(score, ColdScoreCap)
		label = 0
	case temperature < CoolTemperature:
		score = min(score, CoolScoreCap)
	}

	return RiskScore{Score: score, Category: Categorize(score), Label: label}
}

func Categorize(score int) models.RiskCategory {
	switch {
	case score < 30:
		return models.RiskLow
	case score < 60:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

func PredictionLabel(label int) string {
	if label == 1 {
		return models.LabelFireRisk
	}
	return models.LabelNoSignificant
}
