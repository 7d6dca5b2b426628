package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/ScanGo/internal/config"
	"github.com/cjeanneret/ScanGo/internal/debug"
	"github.com/cjeanneret/ScanGo/internal/hw/device"
	"github.com/cjeanneret/ScanGo/internal/hw/gpio"
	"github.com/cjeanneret/ScanGo/internal/hw/sensor"
	"github.com/cjeanneret/ScanGo/internal/logic/capture"
	"github.com/cjeanneret/ScanGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	threshold := flag.Float64("threshold", 0, "override orientation threshold in g (0-1)")
	rotationName := flag.String("rotation", "", "override the reported device rotation (e.g. landscape_left)")
	toggleFlash := flag.Bool("toggle-flash", false, "toggle the torch once and print the result")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	if err := validateCLIOverrides(*threshold, *rotationName); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, *threshold, *rotationName)

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	if debug.IsEnabled(debug.LevelVerbose) {
		debug.PrintStruct("Config", *cfg)
	}

	debug.Step(1, "Binding capture device")
	dev, gpioDriver, err := newDeviceFromConfig(cfg)
	if err != nil {
		log.Fatalf("init device failed: %v", err)
	}
	if gpioDriver != nil {
		defer func() {
			if err := gpioDriver.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}()
	}
	debug.Value("Device type", cfg.Device.Type)

	debug.Step(2, "Initializing accelerometer")
	accel := newAccelerometerFromConfig(cfg)
	rotation, err := sensor.ParseRotation(cfg.Sensor.Rotation)
	if err != nil {
		log.Fatalf("invalid sensor.rotation: %v", err)
	}
	rotationVar := sensor.NewRotationVar(rotation)
	debug.Value("Sensor type", cfg.Sensor.Type)
	debug.Value("Rotation", rotation)

	debug.Step(3, "Opening capture session")
	session, err := capture.NewContext(dev, capture.Options{
		Accelerometer:   accel,
		Rotation:        rotationVar,
		Threshold:       cfg.Capture.OrientationThreshold,
		SampleInterval:  cfg.SampleInterval(),
		DisableAutoScan: !cfg.AutoScanEnabled(),
		FadeDelay:       cfg.FocusFadeDelay(),
		FadeDuration:    cfg.FocusFadeDuration(),
	})
	if err != nil {
		log.Fatalf("open capture session failed: %v", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Printf("closing capture session failed: %v", err)
		}
	}()
	session.RefreshImageOrientation()
	debug.Summary(fmt.Sprintf("Capture session %s ready", session.ID()))

	if port := webPort.port(); port > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		srv := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, session, rotationVar, web.OverlayConfig{
			CornerSize:            cfg.Overlay.CornerSize,
			HighlightedCornerSize: cfg.Overlay.HighlightedCornerSize,
			LineWidth:             cfg.Overlay.LineWidth,
			FocusSize:             cfg.Overlay.FocusSize,
		})
		if err := srv.Run(ctx); err != nil {
			log.Printf("web server: %v", err)
		}
		return
	}

	if *toggleFlash {
		fmt.Printf("flash: %s\n", session.ToggleFlash())
	}
	waitForOrientation(ctx, session, time.Second)
	if err := printState(os.Stdout, session); err != nil {
		log.Printf("print state: %v", err)
	}
}

// waitForOrientation gives the one-shot sample a chance to land before the
// state is printed. The sample may never arrive; the wait is bounded.
func waitForOrientation(ctx context.Context, session *capture.Context, limit time.Duration) {
	start := session.ImageOrientation()
	deadline := time.After(limit)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
			if session.ImageOrientation() != start {
				return
			}
		}
	}
}

func printState(w io.Writer, session *capture.Context) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"session":     session.ID().String(),
		"device":      session.HasDevice(),
		"editing":     session.IsEditing(),
		"auto_scan":   session.IsAutoScanEnabled(),
		"orientation": session.ImageOrientation().String(),
	})
}

// validateCLIOverrides checks non-zero CLI overrides.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(threshold float64, rotation string) error {
	if threshold != 0 {
		if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold <= 0 || threshold > 1 {
			return fmt.Errorf("threshold must be between 0 and 1, got %g", threshold)
		}
	}
	if rotation != "" {
		if _, err := sensor.ParseRotation(rotation); err != nil {
			return err
		}
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero values are applied.
func applyOverrides(cfg *config.Config, threshold float64, rotation string) {
	if threshold > 0 {
		cfg.Capture.OrientationThreshold = threshold
	}
	if rotation != "" {
		cfg.Sensor.Rotation = rotation
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// newDeviceFromConfig selects a capture device implementation. The GPIO
// driver is returned separately because the caller owns it.
// A nil device means the system has no camera.
func newDeviceFromConfig(cfg *config.Config) (device.CaptureDevice, gpio.Driver, error) {
	switch cfg.Device.Type {
	case config.DeviceGPIOTorch:
		debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
		drv, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
		if err != nil {
			return nil, nil, err
		}
		torch, err := device.NewGPIOTorch(drv, cfg.Device.TorchPin, cfg.Device.TorchActiveLow)
		if err != nil {
			drv.Close()
			return nil, nil, err
		}
		debug.Value("Torch pin", cfg.Device.TorchPin)
		return torch, drv, nil
	case config.DeviceSimulated:
		return device.NewSimulated(device.FullCapabilities()), nil, nil
	case config.DeviceNone:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported device type: %s", cfg.Device.Type)
	}
}

// newAccelerometerFromConfig selects the accelerometer implementation.
func newAccelerometerFromConfig(cfg *config.Config) sensor.Accelerometer {
	switch cfg.Sensor.Type {
	case config.SensorStatic:
		return sensor.NewStatic(sensor.Reading{X: cfg.Sensor.StaticX, Y: cfg.Sensor.StaticY, Z: cfg.Sensor.StaticZ})
	case config.SensorIIO:
		debug.Value("IIO device", cfg.Sensor.IIODevice)
		return sensor.NewIIO(cfg.Sensor.IIODevice)
	default:
		return sensor.NewUnavailable()
	}
}
