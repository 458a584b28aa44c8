package models

// FireDetection is one satellite hotspot from NASA FIRMS.
type FireDetection struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	AcqDate    string  `json:"acq_date"`
	Brightness float64 `json:"brightness"`
	Confidence float64 `json:"confidence"`
}

// Sample is one labeled training row.
type Sample struct {
	Latitude    float64
	Longitude   float64
	Date        string
	Observation Observation
	Indices     Indices
	Fire        int
}
