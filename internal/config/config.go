// Package config loads run settings from flags, environment and an optional
// YAML file, and validates them once at startup.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CHESSDATASET_ENGINE_DEPTH.
const EnvPrefix = "CHESSDATASET"

// Config holds every setting of both stages.
type Config struct {
	SourceDir string       `mapstructure:"source_dir"`
	Corpus    string       `mapstructure:"corpus"`
	Player    string       `mapstructure:"player"`
	ECODir    string       `mapstructure:"eco_dir"`
	Engine    EngineConfig `mapstructure:"engine"`
	Output    OutputConfig `mapstructure:"output"`
	Log       LogConfig    `mapstructure:"log"`
}

// EngineConfig configures the UCI engine pool.
type EngineConfig struct {
	Path    string        `mapstructure:"path" validate:"required"`
	Depth   int           `mapstructure:"depth" validate:"min=1,max=99"`
	HashMB  int           `mapstructure:"hash_mb" validate:"min=1,max=65536"`
	Threads int           `mapstructure:"threads" validate:"min=1,max=256"`
	Workers int           `mapstructure:"workers" validate:"min=1,max=64"`
	Retries int           `mapstructure:"retries" validate:"min=0,max=10"`
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`

	CacheSize int    `mapstructure:"cache_size" validate:"min=0"` // analyses kept in memory, 0 disables
	CacheFile string `mapstructure:"cache_file"`                  // optional, persisted between runs
}

// OutputConfig names the dataset tables.
type OutputConfig struct {
	Games  string `mapstructure:"games" validate:"required"`
	Moves  string `mapstructure:"moves" validate:"required,nefield=Games"`
	SQLite string `mapstructure:"sqlite"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names understood by earlier tooling.
	_ = v.BindEnv("engine.path", EnvPrefix+"_ENGINE_PATH", "STOCKFISH_PATH")
	_ = v.BindEnv("player", EnvPrefix+"_PLAYER", "user_name")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source_dir", "data_pgn")
	v.SetDefault("corpus", "user_pgn.pgn")
	v.SetDefault("engine.path", "stockfish")
	v.SetDefault("engine.depth", 14)
	v.SetDefault("engine.hash_mb", 128)
	v.SetDefault("engine.threads", 1)
	v.SetDefault("engine.workers", 1)
	v.SetDefault("engine.retries", 2)
	v.SetDefault("engine.timeout", time.Duration(0))
	v.SetDefault("engine.cache_size", 0)
	v.SetDefault("output.games", "games.csv")
	v.SetDefault("output.moves", "moves.csv")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Load reads the optional config file and decodes all settings.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return val
}

type mergeSettings struct {
	SourceDir string `mapstructure:"source_dir" validate:"required,dir"`
	Corpus    string `mapstructure:"corpus" validate:"required"`
}

type annotateSettings struct {
	Corpus string       `mapstructure:"corpus" validate:"required"`
	Player string       `mapstructure:"player" validate:"required"`
	ECODir string       `mapstructure:"eco_dir" validate:"omitempty,dir"`
	Engine EngineConfig `mapstructure:"engine"`
	Output OutputConfig `mapstructure:"output"`
}

// ValidateMerge checks the settings the merge stage needs.
func (c *Config) ValidateMerge() error {
	return check(mergeSettings{SourceDir: c.SourceDir, Corpus: c.Corpus})
}

// ValidateAnnotate checks the settings the annotation stage needs. The
// corpus is not required to exist yet, since it may be produced by a merge
// in the same run.
func (c *Config) ValidateAnnotate() error {
	return check(annotateSettings{
		Corpus: c.Corpus,
		Player: c.Player,
		ECODir: c.ECODir,
		Engine: c.Engine,
		Output: c.Output,
	})
}

func check(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var details strings.Builder
	for _, fe := range verrs {
		if details.Len() > 0 {
			details.WriteString("; ")
		}
		name := fieldPath(fe.Namespace())
		switch fe.Tag() {
		case "required":
			fmt.Fprintf(&details, "%s is required", name)
		case "min":
			fmt.Fprintf(&details, "%s must be at least %s", name, fe.Param())
		case "max":
			fmt.Fprintf(&details, "%s must be at most %s", name, fe.Param())
		case "dir":
			fmt.Fprintf(&details, "%s: directory %q does not exist", name, fe.Value())
		case "nefield":
			fmt.Fprintf(&details, "%s must differ from %s", name, fe.Param())
		default:
			fmt.Fprintf(&details, "%s failed %s validation", name, fe.Tag())
		}
	}
	return fmt.Errorf("invalid configuration: %s", details.String())
}

// fieldPath drops the root struct name: "annotateSettings.engine.depth" -> "engine.depth".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
