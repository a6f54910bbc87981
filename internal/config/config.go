package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Reference ReferenceConfig `yaml:"reference" mapstructure:"reference"`
	Overlay   OverlayConfig   `yaml:"overlay" mapstructure:"overlay"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// PipelineConfig carries the tuning constants of a run. It is read once and
// not modified afterwards.
type PipelineConfig struct {
	SampleSize    int        `yaml:"sample_size" mapstructure:"sample_size"`
	ChunkSize     int        `yaml:"chunk_size" mapstructure:"chunk_size"`
	RandomSeed    int64      `yaml:"random_seed" mapstructure:"random_seed"`
	Jitter        bool       `yaml:"jitter" mapstructure:"jitter"`
	JitterRadius  float64    `yaml:"jitter_radius" mapstructure:"jitter_radius"`
	Grid          GridConfig `yaml:"grid" mapstructure:"grid"`
	BinCount      int        `yaml:"bin_count" mapstructure:"bin_count"`
	RouteBinCount int        `yaml:"route_bin_count" mapstructure:"route_bin_count"`
	TopK          int        `yaml:"top_k" mapstructure:"top_k"`
	AvgRowBytes   int        `yaml:"avg_row_bytes" mapstructure:"avg_row_bytes"`
	CodeWidth     int        `yaml:"code_width" mapstructure:"code_width"`
}

// Grid bounds modes.
const (
	GridFixed    = "fixed"
	GridDynamic  = "dynamic"
	GridCentered = "centered"
)

// GridConfig selects the aggregation domain.
type GridConfig struct {
	Mode      string  `yaml:"mode" mapstructure:"mode"`
	MinLon    float64 `yaml:"min_lon" mapstructure:"min_lon"`
	MaxLon    float64 `yaml:"max_lon" mapstructure:"max_lon"`
	MinLat    float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLat    float64 `yaml:"max_lat" mapstructure:"max_lat"`
	Margin    float64 `yaml:"margin" mapstructure:"margin"`
	CenterLat float64 `yaml:"center_lat" mapstructure:"center_lat"`
	CenterLon float64 `yaml:"center_lon" mapstructure:"center_lon"`
	Buffer    float64 `yaml:"buffer" mapstructure:"buffer"`
}

// SourceConfig describes the record source.
type SourceConfig struct {
	Path        string   `yaml:"path" mapstructure:"path"`
	Delimiter   string   `yaml:"delimiter" mapstructure:"delimiter"`
	CodeColumns []string `yaml:"code_columns" mapstructure:"code_columns"`
}

// ReferenceConfig describes the reference geography file.
type ReferenceConfig struct {
	Path      string `yaml:"path" mapstructure:"path"`
	Format    string `yaml:"format" mapstructure:"format"`
	CodeField string `yaml:"code_field" mapstructure:"code_field"`
	LatField  string `yaml:"lat_field" mapstructure:"lat_field"`
	LonField  string `yaml:"lon_field" mapstructure:"lon_field"`
	Sheet     string `yaml:"sheet" mapstructure:"sheet"`
	TempDir   string `yaml:"temp_dir" mapstructure:"temp_dir"`
	CacheDir  string `yaml:"cache_dir" mapstructure:"cache_dir"` // download cache for http(s) paths
}

// OverlayConfig points at the optional heavy-hitters overlay file.
type OverlayConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// OutputConfig controls what a run writes.
type OutputConfig struct {
	Dir          string   `yaml:"dir" mapstructure:"dir"`
	Formats      []string `yaml:"formats" mapstructure:"formats"`
	HeavyHitters int      `yaml:"heavy_hitters" mapstructure:"heavy_hitters"`
	WriteSample  bool     `yaml:"write_sample" mapstructure:"write_sample"`
}

// StoreConfig configures the run-history database.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml, GEODENSITY_* environment
// variables and defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEODENSITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.sample_size", 100000)
	v.SetDefault("pipeline.chunk_size", 50000)
	v.SetDefault("pipeline.random_seed", 42)
	v.SetDefault("pipeline.jitter", true)
	v.SetDefault("pipeline.jitter_radius", 0.01)
	v.SetDefault("pipeline.grid.mode", GridFixed)
	v.SetDefault("pipeline.grid.min_lon", -125.0)
	v.SetDefault("pipeline.grid.max_lon", -65.0)
	v.SetDefault("pipeline.grid.min_lat", 24.0)
	v.SetDefault("pipeline.grid.max_lat", 50.0)
	v.SetDefault("pipeline.grid.margin", 0.1)
	v.SetDefault("pipeline.grid.buffer", 1.0)
	v.SetDefault("pipeline.bin_count", 100)
	v.SetDefault("pipeline.route_bin_count", 49)
	v.SetDefault("pipeline.top_k", 20)
	v.SetDefault("pipeline.avg_row_bytes", 200)
	v.SetDefault("pipeline.code_width", 5)
	v.SetDefault("pipeline.grid.center_lat", 0.0)
	v.SetDefault("pipeline.grid.center_lon", 0.0)
	v.SetDefault("source.path", "")
	v.SetDefault("source.delimiter", ",")
	v.SetDefault("source.code_columns", []string{})
	v.SetDefault("reference.path", "")
	v.SetDefault("reference.format", "")
	v.SetDefault("reference.sheet", "")
	v.SetDefault("reference.temp_dir", "")
	v.SetDefault("reference.cache_dir", "")
	v.SetDefault("overlay.path", "")
	v.SetDefault("reference.code_field", "fips_code")
	v.SetDefault("reference.lat_field", "latitude")
	v.SetDefault("reference.lon_field", "longitude")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.formats", []string{"csv", "yaml"})
	v.SetDefault("output.heavy_hitters", 20)
	v.SetDefault("output.write_sample", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "geodensity.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that the fields required by the given command mode are
// present. Modes: run, sample, reference.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "run":
		if c.Source.Path == "" {
			errs = append(errs, "source.path is required")
		}
		if c.Reference.Path == "" {
			errs = append(errs, "reference.path is required")
		}
		if c.Output.Dir == "" {
			errs = append(errs, "output.dir is required")
		}
	case "sample":
		if c.Source.Path == "" {
			errs = append(errs, "source.path is required")
		}
	case "reference":
		if c.Reference.Path == "" {
			errs = append(errs, "reference.path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate rejects pipeline settings no run could use.
func (p PipelineConfig) Validate() error {
	switch {
	case p.SampleSize <= 0:
		return eris.Errorf("pipeline.sample_size must be positive, got %d", p.SampleSize)
	case p.ChunkSize <= 0:
		return eris.Errorf("pipeline.chunk_size must be positive, got %d", p.ChunkSize)
	case p.JitterRadius < 0:
		return eris.Errorf("pipeline.jitter_radius must not be negative, got %v", p.JitterRadius)
	case p.BinCount <= 0:
		return eris.Errorf("pipeline.bin_count must be positive, got %d", p.BinCount)
	case p.RouteBinCount <= 0:
		return eris.Errorf("pipeline.route_bin_count must be positive, got %d", p.RouteBinCount)
	case p.TopK <= 0:
		return eris.Errorf("pipeline.top_k must be positive, got %d", p.TopK)
	case p.AvgRowBytes <= 0:
		return eris.Errorf("pipeline.avg_row_bytes must be positive, got %d", p.AvgRowBytes)
	case p.CodeWidth < 0:
		return eris.Errorf("pipeline.code_width must not be negative, got %d", p.CodeWidth)
	}
	return p.Grid.Validate()
}

// Validate checks the grid settings for the selected mode.
func (g GridConfig) Validate() error {
	switch g.Mode {
	case GridFixed:
		if g.MinLon >= g.MaxLon || g.MinLat >= g.MaxLat {
			return eris.Errorf("pipeline.grid: inverted grid bounds [%v,%v]x[%v,%v]", g.MinLon, g.MaxLon, g.MinLat, g.MaxLat)
		}
	case GridDynamic:
		if g.Margin < 0 {
			return eris.Errorf("pipeline.grid: grid margin must not be negative, got %v", g.Margin)
		}
	case GridCentered:
		if g.Buffer <= 0 {
			return eris.Errorf("pipeline.grid: grid buffer must be positive, got %v", g.Buffer)
		}
	default:
		return eris.Errorf("pipeline.grid: unknown grid mode %q", g.Mode)
	}
	return nil
}

// DelimiterRune returns the source delimiter as a rune, ',' if unset.
func (s SourceConfig) DelimiterRune() rune {
	switch s.Delimiter {
	case "", ",":
		return ','
	case `\t`, "\t", "tab":
		return '\t'
	}
	return []rune(s.Delimiter)[0]
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
