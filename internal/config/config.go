package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pooltemp/internal/frame"
)

const (
	TransportSerial = "serial"
	TransportUDP    = "udp"
	TransportMQTT   = "mqtt"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string
	Serve    bool

	Recurring      bool
	ReceiveTimeout time.Duration
	CycleDelay     time.Duration

	Transport  string
	SerialPort string
	SerialBaud int
	UDPAddr    string

	// GrowthSensor is only meaningful when GrowthEnabled is set.
	GrowthSensor    frame.SensorID
	GrowthEnabled   bool
	GrowthInterval  time.Duration
	GrowthSentinel  float64
	GrowthPrecision int
	WindowCapacity  int

	MQTTBroker     string
	MQTTPort       int
	MQTTClientID   string
	MQTTTopic      string
	MQTTFrameTopic string

	SQLiteDriver          string
	SQLitePath            string
	SQLiteDSN             string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration

	NodeSensors    []frame.SensorID
	NodeInterval   time.Duration
	NodeRetryDelay time.Duration
	NodeResolution int
	OneWireBus     string
}

var defaults = map[string]any{
	"app_env":              "dev",
	"log_level":            "info",
	"http_addr":            ":8000",
	"serve":                false,
	"recurring":            false,
	"receive_timeout":      "10s",
	"cycle_delay":          "0s",
	"radio_transport":      TransportSerial,
	"radio_serial_port":    "/dev/ttyUSB0",
	"radio_serial_baud":    "115200",
	"radio_udp_addr":       ":1700",
	"growth_sensor":        "",
	"growth_interval":      "60s",
	"growth_sentinel":      "-1",
	"growth_precision":     "2",
	"window_capacity":      "60",
	"mqtt_broker":          "",
	"mqtt_port":            "1883",
	"mqtt_client_id":       "pooltemp-base",
	"mqtt_topic":           "pooltemp/base",
	"mqtt_frame_topic":     "pooltemp/frames",
	"db_driver":            "sqlite3",
	"sqlite_path":          "",
	"sqlite_dsn":           "",
	"db_max_open_conns":    "1",
	"db_max_idle_conns":    "1",
	"db_conn_max_lifetime": "0s",
	"node_sensors":         "",
	"node_interval":        "2s",
	"node_retry_delay":     "5s",
	"node_resolution":      "12",
	"onewire_bus":          "",
	"pooltemp_config":      "",
}

// Load resolves configuration from, in order of precedence, command-line
// flags, environment variables, an optional config file named by --config or
// POOLTEMP_CONFIG, and built-in defaults.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("pooltemp", pflag.ContinueOnError)
	fs.BoolP("recurring", "r", false, "keep receiving frames instead of a single attempt")
	fs.StringP("timeout", "t", "10s", "receive timeout (duration or whole seconds)")
	fs.BoolP("server", "s", false, "serve the HTTP API")
	fs.String("transport", TransportSerial, "radio transport: serial, udp or mqtt")
	fs.String("growth-sensor", "", "sensor id sampled for the growth estimate")
	fs.String("config", "", "optional config file (yaml, json or toml)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"recurring":       "recurring",
		"receive_timeout": "timeout",
		"serve":           "server",
		"radio_transport": "transport",
		"growth_sensor":   "growth-sensor",
		"pooltemp_config": "config",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	if path := str(v, "pooltemp_config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	var err error

	cfg.AppEnv = str(v, "app_env")
	switch cfg.AppEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", cfg.AppEnv)
	}

	if cfg.LogLevel, err = parseLogLevel(str(v, "log_level")); err != nil {
		return Config{}, err
	}

	cfg.HTTPAddr = str(v, "http_addr")
	if cfg.Serve, err = boolKey(v, "serve"); err != nil {
		return Config{}, err
	}
	if cfg.Recurring, err = boolKey(v, "recurring"); err != nil {
		return Config{}, err
	}
	if cfg.ReceiveTimeout, err = positiveDuration(v, "receive_timeout"); err != nil {
		return Config{}, err
	}
	if cfg.CycleDelay, err = duration(v, "cycle_delay"); err != nil {
		return Config{}, err
	}
	if cfg.CycleDelay < 0 {
		return Config{}, fmt.Errorf("CYCLE_DELAY must not be negative, got %v", cfg.CycleDelay)
	}

	cfg.Transport = strings.ToLower(str(v, "radio_transport"))
	switch cfg.Transport {
	case TransportSerial, TransportUDP, TransportMQTT:
	default:
		return Config{}, fmt.Errorf("invalid RADIO_TRANSPORT %q (allowed: serial, udp, mqtt)", cfg.Transport)
	}
	cfg.SerialPort = str(v, "radio_serial_port")
	if cfg.SerialBaud, err = intKey(v, "radio_serial_baud"); err != nil {
		return Config{}, err
	}
	cfg.UDPAddr = str(v, "radio_udp_addr")

	if s := str(v, "growth_sensor"); s != "" {
		if cfg.GrowthSensor, err = frame.ParseSensorID(s); err != nil {
			return Config{}, fmt.Errorf("invalid GROWTH_SENSOR: %w", err)
		}
		cfg.GrowthEnabled = true
	}
	if cfg.GrowthInterval, err = positiveDuration(v, "growth_interval"); err != nil {
		return Config{}, err
	}
	if cfg.GrowthSentinel, err = floatKey(v, "growth_sentinel"); err != nil {
		return Config{}, err
	}
	if cfg.GrowthPrecision, err = intKey(v, "growth_precision"); err != nil {
		return Config{}, err
	}
	if cfg.GrowthPrecision < 0 {
		return Config{}, fmt.Errorf("GROWTH_PRECISION must not be negative, got %d", cfg.GrowthPrecision)
	}
	if cfg.WindowCapacity, err = intKey(v, "window_capacity"); err != nil {
		return Config{}, err
	}
	if cfg.WindowCapacity < 2 {
		return Config{}, fmt.Errorf("WINDOW_CAPACITY must be at least 2, got %d", cfg.WindowCapacity)
	}

	cfg.MQTTBroker = str(v, "mqtt_broker")
	if cfg.MQTTPort, err = intKey(v, "mqtt_port"); err != nil {
		return Config{}, err
	}
	cfg.MQTTClientID = str(v, "mqtt_client_id")
	cfg.MQTTTopic = strings.TrimSuffix(str(v, "mqtt_topic"), "/")
	cfg.MQTTFrameTopic = str(v, "mqtt_frame_topic")
	if cfg.Transport == TransportMQTT && cfg.MQTTBroker == "" {
		return Config{}, errors.New("RADIO_TRANSPORT=mqtt requires MQTT_BROKER")
	}

	cfg.SQLiteDriver = str(v, "db_driver")
	cfg.SQLitePath = str(v, "sqlite_path")
	cfg.SQLiteDSN = str(v, "sqlite_dsn")
	if cfg.SQLiteMaxOpenConns, err = intKey(v, "db_max_open_conns"); err != nil {
		return Config{}, err
	}
	if cfg.SQLiteMaxIdleConns, err = intKey(v, "db_max_idle_conns"); err != nil {
		return Config{}, err
	}
	if cfg.SQLiteConnMaxLifetime, err = duration(v, "db_conn_max_lifetime"); err != nil {
		return Config{}, err
	}

	if s := str(v, "node_sensors"); s != "" {
		for _, part := range strings.Split(s, ",") {
			id, err := frame.ParseSensorID(part)
			if err != nil {
				return Config{}, fmt.Errorf("invalid NODE_SENSORS: %w", err)
			}
			cfg.NodeSensors = append(cfg.NodeSensors, id)
		}
	}
	if cfg.NodeInterval, err = positiveDuration(v, "node_interval"); err != nil {
		return Config{}, err
	}
	if cfg.NodeRetryDelay, err = positiveDuration(v, "node_retry_delay"); err != nil {
		return Config{}, err
	}
	if cfg.NodeResolution, err = intKey(v, "node_resolution"); err != nil {
		return Config{}, err
	}
	if cfg.NodeResolution < 9 || cfg.NodeResolution > 12 {
		return Config{}, fmt.Errorf("NODE_RESOLUTION must be between 9 and 12, got %d", cfg.NodeResolution)
	}
	cfg.OneWireBus = str(v, "onewire_bus")

	return cfg, nil
}

// HistoryEnabled reports whether snapshots are persisted to SQLite.
func (c Config) HistoryEnabled() bool {
	return c.SQLitePath != "" || c.SQLiteDSN != ""
}

// MQTTEnabled reports whether a broker is configured.
func (c Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

func envName(key string) string {
	return strings.ToUpper(key)
}

func str(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func boolKey(v *viper.Viper, key string) (bool, error) {
	s := str(v, key)
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", envName(key), s, err)
	}
	return b, nil
}

func intKey(v *viper.Viper, key string) (int, error) {
	s := str(v, key)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envName(key), s, err)
	}
	return n, nil
}

func floatKey(v *viper.Viper, key string) (float64, error) {
	s := str(v, key)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envName(key), s, err)
	}
	return f, nil
}

// duration accepts Go durations and bare integers, read as seconds.
func duration(v *viper.Viper, key string) (time.Duration, error) {
	s := str(v, key)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envName(key), s, err)
	}
	return d, nil
}

func positiveDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := duration(v, key)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", envName(key), d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
