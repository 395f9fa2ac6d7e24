package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CRS is the fixed coordinate reference shared by every layer the tool
// builds. All reprojection happens into this projection, at 1 m for NAIP
// inputs and 30 m for LiDAR labels.
const CRS = "EPSG:5070"

// Config is the application's configuration model.
// It captures the imagery archive, dataset, training, and tracking settings.
type Config struct {
	Archive  ArchiveConfig  `yaml:"archive"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Training TrainingConfig `yaml:"training"`
	Model    ModelConfig    `yaml:"model"`
	Tracking TrackingConfig `yaml:"tracking"`
	Storage  StorageConfig  `yaml:"storage"`
}

type ArchiveConfig struct {
	// Base URL of the imagery/query backend. If empty, read from env EE_ENDPOINT.
	BaseURL string `yaml:"baseURL"`
	// Bearer token for the backend. If empty, read from env EE_TOKEN.
	Token string `yaml:"token"`
	// Asset path prefix for LiDAR rasters, keyed by acquisition name.
	AssetPrefix string `yaml:"assetPrefix"`
	// Collection IDs for source imagery and the land-cover-change product.
	NAIPCollection string `yaml:"naipCollection"`
	LCMSCollection string `yaml:"lcmsCollection"`
	// Study area attribute used to filter the change product.
	StudyArea string `yaml:"studyArea"`
	// Categorical change code for abrupt vegetation loss.
	FastLossCode int `yaml:"fastLossCode"`
}

type DatasetConfig struct {
	// Name of the cached tile dataset to train from.
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
	// Input band order, e.g., ["R","G","B","N"].
	Bands []string `yaml:"bands"`
	// Derived vegetation indices appended as extra input channels.
	VegIndices []string `yaml:"vegIndices"`
	// Whether to apply flip/rotate augmentation to training samples.
	Augment bool `yaml:"augment"`
	// Shuffle buffer size for the training pipeline.
	ShuffleBuffer int `yaml:"shuffleBuffer"`
}

type TrainingConfig struct {
	BatchSize int     `yaml:"batchSize"`
	LearnRate float64 `yaml:"learnRate"`
	Epochs    int     `yaml:"epochs"`
	// Consecutive non-improving epochs tolerated before early stop.
	Patience int `yaml:"patience"`
	// Directory for epoch checkpoints.
	CheckpointDir string `yaml:"checkpointDir"`
	// Random seed for pipeline shuffling and weight init.
	Seed int64 `yaml:"seed"`
}

type ModelConfig struct {
	Name string `yaml:"name"`
	// Architecture hyperparameters passed through to the model constructor.
	Params map[string]float64 `yaml:"params"`
}

type TrackingConfig struct {
	// Base URL of the experiment tracking service. If empty, read TRACK_ENDPOINT.
	BaseURL string `yaml:"baseURL"`
	// API key for the tracking service. If empty, read from env TRACK_API_KEY.
	APIKey  string `yaml:"apiKey"`
	Project string `yaml:"project"`
	Entity  string `yaml:"entity"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
	// Address for the optional prometheus endpoint, e.g. ":9090".
	MetricsAddr string `yaml:"metricsAddr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Archive: ArchiveConfig{
			AssetPrefix:    "projects/ee-maptheforests/assets/malheur_lidar/",
			NAIPCollection: "USDA/NAIP/DOQQ",
			LCMSCollection: "USFS/GTAC/LCMS/v2022-8",
			StudyArea:      "CONUS",
			FastLossCode:   3,
		},
		Dataset: DatasetConfig{
			Name:          "MAL2016_CanyonCreek-30x30",
			Label:         "cover",
			Bands:         []string{"R", "G", "B", "N"},
			VegIndices:    []string{"ndvi"},
			Augment:       true,
			ShuffleBuffer: 1000,
		},
		Training: TrainingConfig{
			BatchSize:     64,
			LearnRate:     0.001,
			Epochs:        100,
			Patience:      10,
			CheckpointDir: "./models",
			Seed:          42,
		},
		Model: ModelConfig{
			Name:   "CNN",
			Params: map[string]float64{"filters": 32, "dropout": 0.2},
		},
		Tracking: TrackingConfig{Project: "canopy", Entity: ""},
		Storage:  StorageConfig{DBPath: "./canopy.db"},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Archive.BaseURL == "" {
		c.Archive.BaseURL = os.Getenv("EE_ENDPOINT")
	}
	if c.Archive.Token == "" {
		c.Archive.Token = os.Getenv("EE_TOKEN")
	}
	if c.Tracking.BaseURL == "" {
		c.Tracking.BaseURL = os.Getenv("TRACK_ENDPOINT")
	}
	if c.Tracking.APIKey == "" {
		c.Tracking.APIKey = os.Getenv("TRACK_API_KEY")
	}
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
