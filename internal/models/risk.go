package models

import "time"

// Indices are the simplified fire-weather indices derived from an Observation.
type Indices struct {
	FFMC float64 `json:"FFMC"`
	DMC  float64 `json:"DMC"`
	DC   float64 `json:"DC"`
	ISI  float64 `json:"ISI"`
}

type RiskCategory string

const (
	RiskLow    RiskCategory = "Low"
	RiskMedium RiskCategory = "Medium"
	RiskHigh   RiskCategory = "High"
)

const (
	LabelFireRisk      = "Fire Risk"
	LabelNoSignificant = "No Significant Risk"
)

// RiskAssessment is built per request and never stored.
type RiskAssessment struct {
	Location     string       `json:"location"`
	RiskScore    int          `json:"risk_score"`
	RiskCategory RiskCategory `json:"risk_category"`
	Prediction   string       `json:"prediction"`
	Weather      Observation  `json:"weather"`
	FireIndices  Indices      `json:"fire_indices"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
	Model        string       `json:"model"`
	AssessedAt   time.Time    `json:"assessed_at"`
}
