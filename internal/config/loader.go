package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment namespace (ATSRELAY_SERVER_PORT, ...).
const EnvPrefix = "ATSRELAY"

// ConfigName is the base name of the optional config file (atsrelay.yaml).
const ConfigName = "atsrelay"

// configFile pins an explicit config file path, set from the --config flag.
var configFile string

// SetConfigFile pins the config file Load reads instead of searching the
// default paths. Empty restores the search.
func SetConfigFile(path string) {
	configFile = path
}

// Load builds the effective configuration. Precedence, lowest first:
// defaults, config file (CWD then user config dir), environment, then the
// optional runtime overrides maps. Overrides are patched onto the decoded
// config after every viper layer so nothing, environment included, can
// outrank them.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaultsOn(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, ConfigName))
		}
		if err := v.ReadInConfig(); err != nil {
			// A missing file is fine; a malformed one is not.
			var notFound viper.ConfigFileNotFoundError
			if !asConfigFileNotFound(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	for _, o := range overrides {
		if err := applyOverrides(&cfg, o); err != nil {
			return nil, fmt.Errorf("apply overrides: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyOverrides patches one override map onto the already-decoded config.
// Only the keys present in the map are touched.
func applyOverrides(cfg *Config, o map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result:           cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(o)
}

func asConfigFileNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	nf, ok := err.(viper.ConfigFileNotFoundError)
	if ok {
		*target = nf
	}
	return ok
}

// SetDefaults installs defaults on the global viper, for commands that bind
// flags against it.
func SetDefaults() {
	setDefaultsOn(viper.GetViper())
}

func setDefaultsOn(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8844)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("ashby.api_key", "")
	v.SetDefault("ashby.base_url", "https://api.ashbyhq.com")
	v.SetDefault("ashby.request_timeout", "30s")
	v.SetDefault("ashby.rate_limit", 0.0)
	v.SetDefault("ashby.credited_to_user_id", "")
	v.SetDefault("ashby.credited_to_email", "")

	v.SetDefault("safety.writes_enabled", false)
	v.SetDefault("safety.allowed_methods", []string{})
	v.SetDefault("safety.require_confirmation", true)
	v.SetDefault("safety.confirmation_token", "")

	v.SetDefault("index.scan_cap", 20000)
	v.SetDefault("index.page_size", 100)
	v.SetDefault("index.ttl", "10m")
}
