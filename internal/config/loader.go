package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override
const EnvPrefix = "REGIONCAP_"

// Load reads path by extension (.yaml, .yml or .ini) and validates the
// result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case "":
		if path != "" {
			return nil, fmt.Errorf("config file %s has no extension", path)
		}
		cfg = NewDefaultConfig()
	case ".yaml", ".yml":
		cfg, err = LoadFromYAML(path)
	case ".ini":
		cfg, err = LoadFromINI(path)
	default:
		return nil, fmt.Errorf("unsupported config format %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromYAML loads configuration from a YAML file. Keys missing from the
// file keep their defaults.
func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if cfg.Monitors.ScaleOverrides == nil {
		cfg.Monitors.ScaleOverrides = make(map[int]float64)
	}
	return cfg, nil
}

// SaveToYAML writes cfg as YAML
func SaveToYAML(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// LoadFromINI loads configuration from an INI file
func LoadFromINI(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	def := NewDefaultConfig()
	cfg := &Config{}

	// Capture
	section := file.Section("Capture")
	cfg.Capture.ShowCursor = section.Key("ShowCursor").MustBool(def.Capture.ShowCursor)
	cfg.Capture.Timeout = section.Key("Timeout").MustDuration(def.Capture.Timeout)

	// Scrolling
	section = file.Section("Scrolling")
	cfg.Scrolling.Method = section.Key("ScrollMethod").MustString(def.Scrolling.Method)
	cfg.Scrolling.Amount = section.Key("ScrollAmount").MustInt(def.Scrolling.Amount)
	cfg.Scrolling.StartDelayMs = section.Key("StartDelay").MustInt(def.Scrolling.StartDelayMs)
	cfg.Scrolling.ScrollDelayMs = section.Key("ScrollDelay").MustInt(def.Scrolling.ScrollDelayMs)
	cfg.Scrolling.AutoScrollTop = section.Key("AutoScrollTop").MustBool(def.Scrolling.AutoScrollTop)
	cfg.Scrolling.AutoIgnoreBottomEdge = section.Key("AutoIgnoreBottomEdge").MustBool(def.Scrolling.AutoIgnoreBottomEdge)
	cfg.Scrolling.MaxFrames = section.Key("MaxFrames").MustInt(def.Scrolling.MaxFrames)

	// Monitors
	section = file.Section("Monitors")
	cfg.Monitors.PollIntervalMs = section.Key("PollInterval").MustInt(def.Monitors.PollIntervalMs)
	cfg.Monitors.ScaleOverrides, err = parseScaleOverrides(section.Key("ScaleOverrides").MustString(""))
	if err != nil {
		return nil, err
	}

	// Logging
	section = file.Section("Logging")
	cfg.Logging.Level = section.Key("Level").MustString(def.Logging.Level)
	cfg.Logging.Dir = section.Key("Dir").MustString(def.Logging.Dir)
	cfg.Logging.EventLog = section.Key("EventLog").MustBool(def.Logging.EventLog)

	// History
	section = file.Section("History")
	cfg.History.Enabled = section.Key("Enabled").MustBool(def.History.Enabled)
	cfg.History.Path = section.Key("Path").MustString(def.History.Path)

	return cfg, nil
}

// SaveToINI writes cfg using the same keys LoadFromINI reads
func SaveToINI(cfg *Config, path string) error {
	file := ini.Empty()

	section := file.Section("Capture")
	section.Key("ShowCursor").SetValue(strconv.FormatBool(cfg.Capture.ShowCursor))
	section.Key("Timeout").SetValue(cfg.Capture.Timeout.String())

	section = file.Section("Scrolling")
	section.Key("ScrollMethod").SetValue(cfg.Scrolling.Method)
	section.Key("ScrollAmount").SetValue(strconv.Itoa(cfg.Scrolling.Amount))
	section.Key("StartDelay").SetValue(strconv.Itoa(cfg.Scrolling.StartDelayMs))
	section.Key("ScrollDelay").SetValue(strconv.Itoa(cfg.Scrolling.ScrollDelayMs))
	section.Key("AutoScrollTop").SetValue(strconv.FormatBool(cfg.Scrolling.AutoScrollTop))
	section.Key("AutoIgnoreBottomEdge").SetValue(strconv.FormatBool(cfg.Scrolling.AutoIgnoreBottomEdge))
	section.Key("MaxFrames").SetValue(strconv.Itoa(cfg.Scrolling.MaxFrames))

	section = file.Section("Monitors")
	section.Key("PollInterval").SetValue(strconv.Itoa(cfg.Monitors.PollIntervalMs))
	section.Key("ScaleOverrides").SetValue(formatScaleOverrides(cfg.Monitors.ScaleOverrides))

	section = file.Section("Logging")
	section.Key("Level").SetValue(cfg.Logging.Level)
	section.Key("Dir").SetValue(cfg.Logging.Dir)
	section.Key("EventLog").SetValue(strconv.FormatBool(cfg.Logging.EventLog))

	section = file.Section("History")
	section.Key("Enabled").SetValue(strconv.FormatBool(cfg.History.Enabled))
	section.Key("Path").SetValue(cfg.History.Path)

	if err := file.SaveTo(path); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// ApplyEnv overlays REGIONCAP_* values onto cfg. Values come from the
// dotenv file at dotenvPath (if any) and then from the process
// environment, which wins.
func ApplyEnv(cfg *Config, dotenvPath string) error {
	values := map[string]string{}
	if dotenvPath != "" {
		read, err := godotenv.Read(dotenvPath)
		if err != nil {
			return fmt.Errorf("failed to read env file %s: %w", dotenvPath, err)
		}
		values = read
	}

	lookup := func(name string) (string, bool) {
		key := EnvPrefix + name
		if v, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(v), true
		}
		v, ok := values[key]
		return strings.TrimSpace(v), ok
	}

	var err error
	setInt := func(name string, dst *int) {
		if v, ok := lookup(name); ok && err == nil {
			n, convErr := strconv.Atoi(v)
			if convErr != nil {
				err = fmt.Errorf("%s%s: %w", EnvPrefix, name, convErr)
				return
			}
			*dst = n
		}
	}
	setBool := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && err == nil {
			b, convErr := strconv.ParseBool(v)
			if convErr != nil {
				err = fmt.Errorf("%s%s: %w", EnvPrefix, name, convErr)
				return
			}
			*dst = b
		}
	}
	setString := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	setBool("SHOW_CURSOR", &cfg.Capture.ShowCursor)
	setString("SCROLL_METHOD", &cfg.Scrolling.Method)
	setInt("SCROLL_AMOUNT", &cfg.Scrolling.Amount)
	setInt("START_DELAY_MS", &cfg.Scrolling.StartDelayMs)
	setInt("SCROLL_DELAY_MS", &cfg.Scrolling.ScrollDelayMs)
	setInt("MAX_FRAMES", &cfg.Scrolling.MaxFrames)
	setInt("POLL_INTERVAL_MS", &cfg.Monitors.PollIntervalMs)
	setString("LOG_LEVEL", &cfg.Logging.Level)
	setString("LOG_DIR", &cfg.Logging.Dir)
	setBool("EVENT_LOG", &cfg.Logging.EventLog)
	setBool("HISTORY_ENABLED", &cfg.History.Enabled)
	setString("HISTORY_PATH", &cfg.History.Path)

	if err != nil {
		return err
	}

	if v, ok := lookup("SCALE_OVERRIDES"); ok && v != "" {
		overrides, parseErr := parseScaleOverrides(v)
		if parseErr != nil {
			return parseErr
		}
		cfg.Monitors.ScaleOverrides = overrides
	}
	return nil
}

// parseScaleOverrides reads "0:1.5, 1:1.25"
func parseScaleOverrides(s string) (map[int]float64, error) {
	overrides := make(map[int]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		idxStr, scaleStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("scale override %q is not index:scale", part)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
		if err != nil {
			return nil, fmt.Errorf("scale override %q: %w", part, err)
		}
		scale, err := strconv.ParseFloat(strings.TrimSpace(scaleStr), 64)
		if err != nil {
			return nil, fmt.Errorf("scale override %q: %w", part, err)
		}
		overrides[idx] = scale
	}
	return overrides, nil
}

func formatScaleOverrides(overrides map[int]float64) string {
	indexes := make([]int, 0, len(overrides))
	for idx := range overrides {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	parts := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		parts = append(parts, fmt.Sprintf("%d:%s", idx, strconv.FormatFloat(overrides[idx], 'g', -1, 64)))
	}
	return strings.Join(parts, ",")
}
