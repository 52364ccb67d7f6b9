package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Workspace WorkspaceConfig `yaml:"workspace" mapstructure:"workspace"`
	Condition ConditionConfig `yaml:"condition" mapstructure:"condition"`
	LEC       LECConfig       `yaml:"lec" mapstructure:"lec"`
	CRS       CRSConfig       `yaml:"crs" mapstructure:"crs"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Postgres  PostgresConfig  `yaml:"postgres" mapstructure:"postgres"`
	Stats     StatsConfig     `yaml:"stats" mapstructure:"stats"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// WorkspaceConfig configures where scratch containers are created.
type WorkspaceConfig struct {
	Root            string `yaml:"root" mapstructure:"root"`
	ContainerPrefix string `yaml:"container_prefix" mapstructure:"container_prefix" validate:"required,excludesall=/"`
	Cleanup         bool   `yaml:"cleanup" mapstructure:"cleanup"`
}

// ConditionConfig configures the condition event workflow.
type ConditionConfig struct {
	Label           string  `yaml:"label" mapstructure:"label" validate:"required"`
	DefaultCategory string  `yaml:"default_category" mapstructure:"default_category" validate:"required"`
	OutputTemplate  string  `yaml:"output_template" mapstructure:"output_template" validate:"required"`
	BoundaryScope   string  `yaml:"boundary_scope" mapstructure:"boundary_scope" validate:"oneof=route run"`
	ToleranceMeters float64 `yaml:"tolerance_meters" mapstructure:"tolerance_meters" validate:"gte=0"`
}

// OutputName renders the output dataset name for the configured label.
func (c ConditionConfig) OutputName() string {
	return strings.ReplaceAll(c.OutputTemplate, "{label}", c.Label)
}

// LECConfig configures the linear event collection workflow.
type LECConfig struct {
	FaultIDField       string `yaml:"fault_id_field" mapstructure:"fault_id_field"`
	OutputName         string `yaml:"output_name" mapstructure:"output_name" validate:"required"`
	CreateRoutes       bool   `yaml:"create_routes" mapstructure:"create_routes"`
	CoordinatePriority string `yaml:"coordinate_priority" mapstructure:"coordinate_priority" validate:"oneof=UPPER_LEFT UPPER_RIGHT LOWER_LEFT LOWER_RIGHT"`
}

// CRSConfig selects how input coordinates are interpreted.
type CRSConfig struct {
	Mode string `yaml:"mode" mapstructure:"mode" validate:"oneof=projected geographic"`
}

// ExportConfig configures extra copies of the output events.
type ExportConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats" validate:"dive,oneof=shapefile geojson csv postgres"`
}

// HasFormat reports whether format is enabled.
func (c ExportConfig) HasFormat(format string) bool {
	for _, f := range c.Formats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

// PostgresConfig configures the PostGIS event sink.
type PostgresConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema" validate:"required"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// StatsConfig configures the external statistics engine used by correlate.
type StatsConfig struct {
	Command string   `yaml:"command" mapstructure:"command"`
	Args    []string `yaml:"args" mapstructure:"args"`
	WorkDir string   `yaml:"work_dir" mapstructure:"work_dir"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LRS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("workspace.root", "")
	v.SetDefault("workspace.container_prefix", "work")
	v.SetDefault("workspace.cleanup", false)
	v.SetDefault("condition.label", "longcracking")
	v.SetDefault("condition.default_category", "Excellent")
	v.SetDefault("condition.output_template", "out_{label}_events")
	v.SetDefault("condition.boundary_scope", "run")
	v.SetDefault("condition.tolerance_meters", 0.0)
	v.SetDefault("lec.fault_id_field", "FAULT_ID")
	v.SetDefault("lec.output_name", "LEC_LinearEvents")
	v.SetDefault("lec.coordinate_priority", "UPPER_LEFT")
	v.SetDefault("crs.mode", "projected")
	v.SetDefault("export.formats", []string{"shapefile"})
	v.SetDefault("export.dir", "")
	v.SetDefault("postgres.database_url", "")
	v.SetDefault("postgres.schema", "public")
	v.SetDefault("postgres.table", "")
	v.SetDefault("stats.command", "sas")
	v.SetDefault("stats.args", []string{"-nodms", "-noterminal"})
	v.SetDefault("stats.work_dir", "")

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

// Validate checks the settings needed by a command mode: "condition",
// "lec", "correlate" or "workspace".
func (c *Config) Validate(mode string) error {
	var errs []string

	collect := func(s interface{}) {
		err := validate.Struct(s)
		if err == nil {
			return
		}
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			errs = append(errs, err.Error())
			return
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}

	collect(c.Log)
	collect(c.Workspace)

	switch mode {
	case "condition":
		collect(c.Condition)
		collect(c.CRS)
		collect(c.Export)
		if c.Export.HasFormat("postgres") {
			collect(c.Postgres)
			if c.Postgres.DatabaseURL == "" {
				errs = append(errs, "postgres.database_url is required for the postgres export")
			}
		}
	case "lec":
		collect(c.LEC)
		collect(c.CRS)
		collect(c.Export)
		if c.Export.HasFormat("postgres") {
			collect(c.Postgres)
			if c.Postgres.DatabaseURL == "" {
				errs = append(errs, "postgres.database_url is required for the postgres export")
			}
		}
	case "correlate":
		if c.Stats.Command == "" {
			errs = append(errs, "stats.command is required")
		}
	case "workspace":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

var validate = validator.New()

// describe renders a field error using the yaml key path, e.g.
// "condition.boundary_scope must be one of [route run]".
func describe(fe validator.FieldError) string {
	key := yamlPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", key, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", key, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", key, fe.Tag())
	}
}

var sectionKeys = map[string]string{
	"LogConfig":       "log",
	"WorkspaceConfig": "workspace",
	"ConditionConfig": "condition",
	"LECConfig":       "lec",
	"CRSConfig":       "crs",
	"ExportConfig":    "export",
	"PostgresConfig":  "postgres",
}

// yamlPath turns "ConditionConfig.BoundaryScope" into
// "condition.boundary_scope".
func yamlPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) == 0 {
		return ns
	}
	if key, ok := sectionKeys[parts[0]]; ok {
		parts[0] = key
	}
	for i := 1; i < len(parts); i++ {
		parts[i] = snake(parts[i])
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
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
