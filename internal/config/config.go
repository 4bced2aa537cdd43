// Package config resolves facegate settings from defaults, an optional YAML file,
// a .env file and FACEGATE_* environment variables. Command-line flags are applied
// on top by the cmd package.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Preview modes
const (
	PreviewNone   = "none"
	PreviewFile   = "file"
	PreviewWindow = "window"
)

// EnvConfigFile names the YAML file when --config is not given.
const EnvConfigFile = "FACEGATE_CONFIG"

type Config struct {
	Root    string        `yaml:"root"`
	Camera  CameraConfig  `yaml:"camera"`
	Engine  EngineConfig  `yaml:"engine"`
	Preview PreviewConfig `yaml:"preview"`
	Staged  bool          `yaml:"staged"` // transactional enrollment
	Replay  string        `yaml:"replay"` // recorded frames instead of the camera
	Debug   bool          `yaml:"debug"`
}

type CameraConfig struct {
	Device string `yaml:"device"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type EngineConfig struct {
	Python     string        `yaml:"python"`
	Script     string        `yaml:"script"`
	MatchModel string        `yaml:"match_model"`
	Timeout    time.Duration `yaml:"timeout"` // per request; the first one also loads the models
}

type PreviewConfig struct {
	Mode     string        `yaml:"mode"`
	File     string        `yaml:"file"` // defaults to <root>/preview.jpg
	Interval time.Duration `yaml:"interval"`
}

func Default() *Config {
	return &Config{
		Root: "./data",
		Camera: CameraConfig{
			Device: "/dev/video0",
			Width:  640,
			Height: 480,
		},
		Engine: EngineConfig{
			Python:     "python3",
			Script:     "python/engine.py",
			MatchModel: "Facenet",
			Timeout:    60 * time.Second,
		},
		Preview: PreviewConfig{
			Mode:     PreviewNone,
			Interval: 200 * time.Millisecond,
		},
	}
}

// Load builds the configuration. path may be empty, in which case $FACEGATE_CONFIG is
// consulted. dotenv lists the .env files to read; none given means ".env" in the
// working directory. Missing .env files are not an error.
func Load(path string, dotenv ...string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		// Variables already set in the environment win over the file.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	flag := func(key string, dst *bool) error {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}

	str("FACEGATE_ROOT", &c.Root)
	str("FACEGATE_DEVICE", &c.Camera.Device)
	str("FACEGATE_PYTHON", &c.Engine.Python)
	str("FACEGATE_ENGINE_SCRIPT", &c.Engine.Script)
	str("FACEGATE_MATCH_MODEL", &c.Engine.MatchModel)
	str("FACEGATE_PREVIEW", &c.Preview.Mode)
	str("FACEGATE_PREVIEW_FILE", &c.Preview.File)
	str("FACEGATE_REPLAY", &c.Replay)

	return errors.Join(
		num("FACEGATE_WIDTH", &c.Camera.Width),
		num("FACEGATE_HEIGHT", &c.Camera.Height),
		dur("FACEGATE_ENGINE_TIMEOUT", &c.Engine.Timeout),
		dur("FACEGATE_PREVIEW_INTERVAL", &c.Preview.Interval),
		flag("FACEGATE_STAGED", &c.Staged),
		flag("FACEGATE_DEBUG", &c.Debug),
	)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Root == "" {
		errs = append(errs, errors.New("root must not be empty"))
	}
	if c.Replay == "" && c.Camera.Device == "" {
		errs = append(errs, errors.New("camera device must not be empty"))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid frame size %dx%d", c.Camera.Width, c.Camera.Height))
	}
	if c.Engine.Python == "" || c.Engine.Script == "" {
		errs = append(errs, errors.New("python interpreter and engine script are required"))
	}
	if c.Engine.MatchModel == "" {
		errs = append(errs, errors.New("match model must not be empty"))
	}
	if c.Engine.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("engine timeout must be positive, got %v", c.Engine.Timeout))
	}
	switch c.Preview.Mode {
	case PreviewNone, PreviewWindow, PreviewFile:
	default:
		errs = append(errs, fmt.Errorf("unknown preview mode %q (want none, file or window)", c.Preview.Mode))
	}
	return errors.Join(errs...)
}

// PreviewPath is where the file preview is written.
func (c *Config) PreviewPath() string {
	if c.Preview.File != "" {
		return c.Preview.File
	}
	return filepath.Join(c.Root, "preview.jpg")
}
