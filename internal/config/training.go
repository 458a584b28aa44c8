package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bobby-s-dev/firerisk/internal/ml"
)

// Dataset sources for the training pipeline.
const (
	SourceUCI    = "uci"
	SourceCustom = "custom"
	SourceSQL    = "sql"
)

type Bounds struct {
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`
}

type SQLConfig struct {
	Driver string `yaml:"driver"` // sqlite3 or mysql
	DSN    string `yaml:"dsn"`
}

// TrainingConfig drives cmd/train, cmd/builddataset and cmd/firms.
type TrainingConfig struct {
	Dataset struct {
		Source string    `yaml:"source"`
		Path   string    `yaml:"path"`
		SQL    SQLConfig `yaml:"sql"`
	} `yaml:"dataset"`

	Seed      int64   `yaml:"seed"`
	TestSize  float64 `yaml:"test_size"`
	CVFolds   int     `yaml:"cv_folds"`
	OutputDir string  `yaml:"output_dir"`
	Schedule  string  `yaml:"schedule"`

	RandomForest     ml.ForestParams   `yaml:"random_forest"`
	GradientBoosting ml.BoostingParams `yaml:"gradient_boosting"`
	XGBoost          ml.XGBoostParams  `yaml:"xgboost"`

	Builder struct {
		FiresPath         string        `yaml:"fires_path"`
		OutputPath        string        `yaml:"output_path"`
		MaxFires          int           `yaml:"max_fires"`
		NegativeSamples   int           `yaml:"negative_samples"`
		Bounds            Bounds        `yaml:"bounds"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Timeout           time.Duration `yaml:"timeout"`
		Seed              int64         `yaml:"seed"`
		SQL               SQLConfig     `yaml:"sql"`
	} `yaml:"builder"`

	FIRMS struct {
		MapKey            string        `yaml:"map_key"`
		BaseURL           string        `yaml:"base_url"`
		Source            string        `yaml:"source"`
		BBox              string        `yaml:"bbox"`
		DayRange          int           `yaml:"day_range"`
		Years             []int         `yaml:"years"`
		Dates             []string      `yaml:"dates"`
		MinConfidence     float64       `yaml:"min_confidence"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Timeout           time.Duration `yaml:"timeout"`
		OutputPath        string        `yaml:"output_path"`
	} `yaml:"firms"`
}

// DefaultTraining returns the configuration used when no file is given.
func DefaultTraining() *TrainingConfig {
	c := &TrainingConfig{
		Seed:             42,
		TestSize:         0.2,
		CVFolds:          5,
		OutputDir:        "models",
		Schedule:         "0 3 * * 0",
		RandomForest:     ml.DefaultForestParams(),
		GradientBoosting: ml.DefaultBoostingParams(),
		XGBoost:          ml.DefaultXGBoostParams(),
	}
	c.Dataset.Source = SourceUCI
	c.Dataset.Path = "data/forestfires.csv"
	c.Dataset.SQL = SQLConfig{Driver: "sqlite3", DSN: "data/samples.db"}

	c.Builder.FiresPath = "data/nasa_fires_europe.csv"
	c.Builder.OutputPath = "data/fire_training_dataset.csv"
	c.Builder.MaxFires = 2000
	c.Builder.NegativeSamples = 2000
	c.Builder.Bounds = Bounds{MinLat: 35, MaxLat: 71, MinLon: -25, MaxLon: 45}
	c.Builder.RequestsPerSecond = 10
	c.Builder.Timeout = 10 * time.Second
	c.Builder.Seed = 42

	c.FIRMS.BaseURL = "https://firms.modaps.eosdis.nasa.gov"
	c.FIRMS.Source = "MODIS_SP"
	c.FIRMS.BBox = "-25,35,45,71"
	c.FIRMS.DayRange = 10
	c.FIRMS.Years = []int{2020, 2021, 2022, 2023, 2024}
	c.FIRMS.Dates = []string{"06-01", "06-15", "07-01", "07-15", "08-01", "08-15", "09-01"}
	c.FIRMS.MinConfidence = 50
	c.FIRMS.RequestsPerSecond = 1
	c.FIRMS.Timeout = 60 * time.Second
	c.FIRMS.OutputPath = "data/nasa_fires_europe.csv"
	return c
}

// LoadTraining overlays the YAML file at path onto DefaultTraining. A
// missing file yields the defaults. FIRMS_MAP_KEY overrides firms.map_key.
func LoadTraining(path string) (*TrainingConfig, error) {
	cfg := DefaultTraining()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if key := os.Getenv("FIRMS_MAP_KEY"); key != "" {
		cfg.FIRMS.MapKey = key
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *TrainingConfig) validate() error {
	var errs []error
	switch c.Dataset.Source {
	case SourceUCI, SourceCustom:
		if c.Dataset.Path == "" {
			errs = append(errs, errors.New("dataset.path cannot be empty"))
		}
	case SourceSQL:
		if c.Dataset.SQL.DSN == "" {
			errs = append(errs, errors.New("dataset.sql.dsn cannot be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("dataset.source: unknown source %q", c.Dataset.Source))
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		errs = append(errs, fmt.Errorf("test_size must be in (0, 1), got %v", c.TestSize))
	}
	if c.CVFolds < 2 {
		errs = append(errs, fmt.Errorf("cv_folds must be at least 2, got %d", c.CVFolds))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir cannot be empty"))
	}
	b := c.Builder.Bounds
	if b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		errs = append(errs, errors.New("builder.bounds: min must be below max"))
	}
	if c.Builder.RequestsPerSecond <= 0 || c.FIRMS.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("requests_per_second must be positive"))
	}
	if c.Builder.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("builder.timeout must be positive, got %v", c.Builder.Timeout))
	}
	if c.FIRMS.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("firms.timeout must be positive, got %v", c.FIRMS.Timeout))
	}
	return errors.Join(errs...)
}
