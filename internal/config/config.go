package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a config file.
const MaxConfigFileBytes = 1 << 20

// Device types.
const (
	DeviceGPIOTorch = "gpio_torch"
	DeviceSimulated = "simulated"
	DeviceNone      = "none"
)

// Sensor types.
const (
	SensorStatic = "static"
	SensorIIO    = "iio"
	SensorNone   = "none"
)

// DeviceConfig describes the capture device.
// Type selects a concrete implementation (e.g., "gpio_torch").
type DeviceConfig struct {
	Type           string `yaml:"type"`             // gpio_torch, simulated or none
	TorchPin       int    `yaml:"torch_pin"`        // GPIO pin (BCM) switching the torch LED
	TorchActiveLow bool   `yaml:"torch_active_low"` // LED lights when the pin is LOW
}

// SensorConfig describes the accelerometer and the rotation source.
type SensorConfig struct {
	Type             string  `yaml:"type"`               // static, iio or none
	IIODevice        string  `yaml:"iio_device"`         // sysfs directory of the IIO accelerometer
	StaticX          float64 `yaml:"static_x"`           // reading reported by the static sensor (g)
	StaticY          float64 `yaml:"static_y"`           //
	StaticZ          float64 `yaml:"static_z"`           //
	SampleIntervalMs int     `yaml:"sample_interval_ms"` // accelerometer sampling interval (ms)
	Rotation         string  `yaml:"rotation"`           // initial discrete rotation, e.g. "portrait"
}

// CaptureConfig holds capture session behaviour.
type CaptureConfig struct {
	AutoScan             *bool   `yaml:"auto_scan"`              // default true
	OrientationThreshold float64 `yaml:"orientation_threshold"`  // |x| in g classified as landscape
	FocusFadeDelayMs     int     `yaml:"focus_fade_delay_ms"`    // delay before the focus indicator fades
	FocusFadeDurationMs  int     `yaml:"focus_fade_duration_ms"` // fade duration
}

// OverlayConfig holds sizes of the editing overlays, in pixels.
type OverlayConfig struct {
	CornerSize            int     `yaml:"corner_size"`
	HighlightedCornerSize int     `yaml:"highlighted_corner_size"`
	LineWidth             float64 `yaml:"line_width"`
	FocusSize             int     `yaml:"focus_size"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Capture  CaptureConfig  `yaml:"capture"`
	Overlay  OverlayConfig  `yaml:"overlay"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files directly inside a
// "configs" directory, without parent references.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	switch cfg.Device.Type {
	case "":
		return fmt.Errorf("device.type is required")
	case DeviceGPIOTorch:
		if cfg.Device.TorchPin <= 0 {
			return fmt.Errorf("device.torch_pin must be > 0 for %s", DeviceGPIOTorch)
		}
	case DeviceSimulated, DeviceNone:
	default:
		return fmt.Errorf("unsupported device type: %s", cfg.Device.Type)
	}

	switch cfg.Sensor.Type {
	case "":
		cfg.Sensor.Type = SensorNone
	case SensorStatic, SensorNone:
	case SensorIIO:
		if cfg.Sensor.IIODevice == "" {
			cfg.Sensor.IIODevice = "/sys/bus/iio/devices/iio:device0"
		}
	default:
		return fmt.Errorf("unsupported sensor type: %s", cfg.Sensor.Type)
	}
	if cfg.Sensor.SampleIntervalMs <= 0 {
		cfg.Sensor.SampleIntervalMs = 10 // one sample is enough, take it fast
	}

	if cfg.Capture.AutoScan == nil {
		on := true
		cfg.Capture.AutoScan = &on
	}
	if cfg.Capture.OrientationThreshold < 0 || cfg.Capture.OrientationThreshold > 1 {
		return fmt.Errorf("orientation_threshold must be between 0 and 1, got %.2f", cfg.Capture.OrientationThreshold)
	}
	if cfg.Capture.OrientationThreshold == 0 {
		cfg.Capture.OrientationThreshold = 0.35
	}
	if cfg.Capture.FocusFadeDelayMs <= 0 {
		cfg.Capture.FocusFadeDelayMs = 1000
	}
	if cfg.Capture.FocusFadeDurationMs <= 0 {
		cfg.Capture.FocusFadeDurationMs = 300
	}

	if cfg.Overlay.CornerSize <= 0 {
		cfg.Overlay.CornerSize = 20
	}
	if cfg.Overlay.HighlightedCornerSize <= 0 {
		cfg.Overlay.HighlightedCornerSize = 75
	}
	if cfg.Overlay.LineWidth <= 0 {
		cfg.Overlay.LineWidth = 1
	}
	if cfg.Overlay.FocusSize <= 0 {
		cfg.Overlay.FocusSize = 75
	}

	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}
	return nil
}

// SampleInterval returns the accelerometer sampling interval.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Sensor.SampleIntervalMs) * time.Millisecond
}

// FocusFadeDelay returns the delay before the focus indicator fades out.
func (c *Config) FocusFadeDelay() time.Duration {
	return time.Duration(c.Capture.FocusFadeDelayMs) * time.Millisecond
}

// FocusFadeDuration returns the focus indicator fade duration.
func (c *Config) FocusFadeDuration() time.Duration {
	return time.Duration(c.Capture.FocusFadeDurationMs) * time.Millisecond
}

// AutoScanEnabled reports the configured initial auto scan state.
func (c *Config) AutoScanEnabled() bool {
	return c.Capture.AutoScan == nil || *c.Capture.AutoScan
}
