package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from every environment variable before it is
// mapped onto a config key.
const envPrefix = "SHIELD_"

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	Tun       TunConfig       `koanf:"tun"`
	Buffer    BufferConfig    `koanf:"buffer"`
	Blocklist BlocklistConfig `koanf:"blocklist"`
	State     StateConfig     `koanf:"state"`
	Metrics   MetricsConfig   `koanf:"metrics"`

	// Trigger is the host event that launched the daemon. Boot and
	// package_replaced only start interception if it was enabled before.
	Trigger string `koanf:"trigger" validate:"omitempty,oneof=manual boot package_replaced"`
}

// TunConfig describes the virtual interface.
type TunConfig struct {
	// Name is the interface name; empty lets the kernel pick one.
	Name string `koanf:"name" validate:"omitempty,max=15"`

	// Address is the local tunnel address in CIDR form.
	Address string `koanf:"address" validate:"required,ipv4_cidr"`

	// Route is the destination captured by the tunnel. Empty installs none.
	Route string `koanf:"route" validate:"omitempty,ipv4_cidr"`

	RouteMetric int `koanf:"route_metric" validate:"gte=0"`

	// DNS lists the resolvers advertised for the tunnel.
	DNS []string `koanf:"dns" validate:"dive,ipv4"`

	MTU int `koanf:"mtu" validate:"gte=576,lte=65535"`
}

// BufferConfig sizes the packet read buffer.
type BufferConfig struct {
	Size int `koanf:"size" validate:"gte=576,lte=65535"`
}

// BlocklistConfig tunes the blocklist lookup structures.
type BlocklistConfig struct {
	// CacheSize bounds the decision memo; zero disables it.
	CacheSize int `koanf:"cache_size" validate:"gte=0"`

	// FPRate is the target Bloom filter false-positive rate.
	FPRate float64 `koanf:"fp_rate" validate:"gt=0,lt=1"`
}

// StateConfig locates the preference store.
type StateConfig struct {
	Path string `koanf:"path" validate:"required"`

	// FlushInterval is how often the blocked count is persisted while
	// running. Zero only flushes on stop.
	FlushInterval time.Duration `koanf:"flush_interval" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the host:port serving /metrics and /control/stats_reset;
	// empty disables both.
	Addr string `koanf:"addr" validate:"omitempty,hostname_port"`
}

// DEFAULT_APP_CONFIG defines the default application configuration: a
// 10.0.0.2/32 tunnel capturing all IPv4 traffic, Google public DNS and a
// full-size read buffer.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:      "prod",
	LogLevel: "info",
	Tun: TunConfig{
		Name:        "shield0",
		Address:     "10.0.0.2/32",
		Route:       "0.0.0.0/0",
		RouteMetric: 0,
		DNS:         []string{"8.8.8.8", "8.8.4.4"},
		MTU:         1500,
	},
	Buffer: BufferConfig{Size: 65535},
	Blocklist: BlocklistConfig{
		CacheSize: 10000,
		FPRate:    0.001,
	},
	State: StateConfig{
		Path:          "/var/lib/rr-shield/state.db",
		FlushInterval: time.Minute,
	},
	Trigger: "manual",
}

// sections are the nested config groups. The first underscore after a
// section name in an environment key becomes the koanf delimiter, so
// SHIELD_TUN_ROUTE_METRIC maps to tun.route_metric.
var sections = []string{"tun", "buffer", "blocklist", "state", "metrics"}

// envKey maps a raw environment variable name onto a koanf key.
func envKey(raw string) string {
	key := strings.ToLower(strings.TrimPrefix(raw, envPrefix))
	for _, s := range sections {
		if strings.HasPrefix(key, s+"_") {
			return s + "." + strings.TrimPrefix(key, s+"_")
		}
	}
	return key
}

// validIPv4CIDR validates an IPv4 address with prefix length, such as
// 10.0.0.2/32. Host bits may be set.
func validIPv4CIDR(fl validator.FieldLevel) bool {
	ip, _, err := net.ParseCIDR(fl.Field().String())
	if err != nil {
		return false
	}
	return ip.To4() != nil
}

// envLoader loads environment variables with the prefix "SHIELD_". Values
// containing spaces or commas become lists. It can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = envKey(key)
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG into the provided Koanf instance
// using the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "ipv4_cidr" tag.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ipv4_cidr", validIPv4CIDR)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
