// Package config reads the engine configuration from a file and OPGRAPH_*
// environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/go-playground/validator.v9"

	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/fusion"
)

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "OPGRAPH"

// Config is the engine configuration.
type Config struct {
	Device Device `mapstructure:"device"`
	Fusion Fusion `mapstructure:"fusion"`
	Log    Log    `mapstructure:"log"`
}

// Device selects the compute device and where kernel code is loaded from.
type Device struct {
	// Name is the device backend: trace or webgpu.
	Name string `mapstructure:"name" validate:"oneof=trace webgpu"`

	// CodeLoadMode is default or custom.
	CodeLoadMode string `mapstructure:"code_load_mode" validate:"oneof=default custom"`

	// CustomPath is a directory or gs:// location of compute functions.
	// Required when CodeLoadMode is custom.
	CustomPath string `mapstructure:"custom_path"`

	// CacheDir receives compute functions fetched from a remote CustomPath.
	CacheDir string `mapstructure:"cache_dir"`
}

// Fusion configures graph rewriting.
type Fusion struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxIterations int  `mapstructure:"max_iterations" validate:"min=1,max=64"`
}

// Log configures logging.
type Log struct {
	// Verbosity is the klog -v level.
	Verbosity int `mapstructure:"verbosity" validate:"min=0,max=10"`
}

// Load reads the configuration at path over the defaults. An empty path reads
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the default configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		panic(err)
	}
	return c
}

func setDefaults(v *viper.Viper) {
	keys := map[string]any{
		"device.name":           "trace",
		"device.code_load_mode": device.LoadDefault.String(),
		"device.custom_path":    "",
		"device.cache_dir":      "",
		"fusion.enabled":        true,
		"fusion.max_iterations": fusion.DefaultMaxIterations,
		"log.verbosity":         0,
	}
	for k, value := range keys {
		v.SetDefault(k, value)
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(deviceStructLevel, Device{})
	return v
}

// deviceStructLevel requires a custom path in custom code load mode.
func deviceStructLevel(sl validator.StructLevel) {
	d := sl.Current().Interface().(Device)
	if d.CodeLoadMode == device.LoadCustomPath.String() && d.CustomPath == "" {
		sl.ReportError(d.CustomPath, "CustomPath", "CustomPath", "required_with_custom", "")
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("config: %w", err)
	}
	fields := make([]string, len(verrs))
	for i, fe := range verrs {
		fields[i] = fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag())
	}
	return &ValidationError{Fields: fields, Err: verrs}
}

// ValidationError lists the invalid fields of a Config.
type ValidationError struct {
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	return "config: invalid " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

// InitContext returns the kernel construction options of the device section.
func (d Device) InitContext() (device.InitContext, error) {
	mode, err := device.ParseCodeLoadMode(d.CodeLoadMode)
	if err != nil {
		return device.InitContext{}, err
	}
	ic := device.InitContext{CodeLoadMode: mode, CustomPath: d.CustomPath}
	if err := ic.Validate(); err != nil {
		return device.InitContext{}, err
	}
	return ic, nil
}

// FusionOptions returns the fuser options of the fusion section.
func (f Fusion) FusionOptions() []fusion.Option {
	return []fusion.Option{fusion.WithMaxIterations(f.MaxIterations)}
}
