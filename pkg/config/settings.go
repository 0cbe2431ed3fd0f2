package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	SettingsFormatTOML SettingsFormat = "toml"
	SettingsFormatYAML SettingsFormat = "yaml"
)

const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

type SettingsFormat string

// SettingsHandle records where the loaded settings came from. Path is empty
// when no file was found and defaults are in effect.
type SettingsHandle struct {
	Path   string
	Format SettingsFormat
}

type Settings struct {
	Entry     string            `toml:"entry"     yaml:"entry"`
	Comments  bool              `toml:"comments"  yaml:"comments"`
	Color     string            `toml:"color"     yaml:"color"`
	Run       RunSettings       `toml:"run"       yaml:"run"`
	Telemetry TelemetrySettings `toml:"telemetry" yaml:"telemetry"`
}

// RunSettings bounds the emulator used by -run.
type RunSettings struct {
	MaxSteps  int `toml:"max_steps"  yaml:"max_steps"`
	StackSize int `toml:"stack_size" yaml:"stack_size"`
}

type TelemetrySettings struct {
	Endpoint    string `toml:"endpoint"     yaml:"endpoint"`
	Insecure    bool   `toml:"insecure"     yaml:"insecure"`
	ServiceName string `toml:"service_name" yaml:"service_name"`
}

func DefaultSettings() Settings {
	return Settings{
		Entry: "main",
		Color: ColorAuto,
		Run: RunSettings{
			MaxSteps:  1_000_000,
			StackSize: 64 * 1024,
		},
	}
}

// Normalise fills zero values with defaults and validates enumerations.
func Normalise(s Settings) (Settings, error) {
	def := DefaultSettings()
	if strings.TrimSpace(s.Entry) == "" {
		s.Entry = def.Entry
	}
	s.Color = strings.ToLower(strings.TrimSpace(s.Color))
	switch s.Color {
	case "":
		s.Color = def.Color
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return Settings{}, fmt.Errorf("invalid color mode %q (want auto, always or never)", s.Color)
	}
	if s.Run.MaxSteps <= 0 {
		s.Run.MaxSteps = def.Run.MaxSteps
	}
	if s.Run.StackSize <= 0 {
		s.Run.StackSize = def.Run.StackSize
	}
	return s, nil
}

// Load reads settings from path when it is set, choosing the decoder by
// extension. Otherwise it tries stackcc.toml and then stackcc.yaml in dir.
// Parse errors fail immediately; missing files fall through to defaults.
func Load(dir, path string) (Settings, SettingsHandle, error) {
	if path != "" {
		format, err := formatFor(path)
		if err != nil {
			return Settings{}, SettingsHandle{}, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, SettingsHandle{}, fmt.Errorf("read settings %q: %w", path, err)
		}
		return decodeFile(data, SettingsHandle{Path: path, Format: format})
	}

	candidates := []SettingsHandle{
		{Path: filepath.Join(dir, "stackcc.toml"), Format: SettingsFormatTOML},
		{Path: filepath.Join(dir, "stackcc.yaml"), Format: SettingsFormatYAML},
	}

	var accumulated error
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			accumulated = errors.Join(
				accumulated,
				fmt.Errorf("read settings %q: %w", candidate.Path, err),
			)
			continue
		}
		return decodeFile(data, candidate)
	}

	if accumulated != nil {
		return Settings{}, SettingsHandle{}, accumulated
	}
	return DefaultSettings(), SettingsHandle{}, nil
}

func decodeFile(data []byte, handle SettingsHandle) (Settings, SettingsHandle, error) {
	settings, err := decodeSettings(data, handle.Format)
	if err != nil {
		return Settings{}, SettingsHandle{}, fmt.Errorf("parse settings %q: %w", handle.Path, err)
	}
	settings, err = Normalise(settings)
	if err != nil {
		return Settings{}, SettingsHandle{}, fmt.Errorf("settings %q: %w", handle.Path, err)
	}
	return settings, handle, nil
}

func decodeSettings(data []byte, format SettingsFormat) (Settings, error) {
	var settings Settings
	switch format {
	case SettingsFormatTOML:
		if err := toml.Unmarshal(data, &settings); err != nil {
			return Settings{}, err
		}
	case SettingsFormatYAML:
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Settings{}, err
		}
	default:
		return Settings{}, fmt.Errorf("unsupported settings format %q", format)
	}
	return settings, nil
}

func formatFor(path string) (SettingsFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return SettingsFormatTOML, nil
	case ".yaml", ".yml":
		return SettingsFormatYAML, nil
	}
	return "", fmt.Errorf("settings %q: unknown extension (want .toml, .yaml or .yml)", path)
}
