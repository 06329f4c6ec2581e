package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/trackjack/internal/audio"
	"github.com/audiolibrelab/trackjack/internal/library"
)

// EnvPrefix prefixes environment overrides, e.g. TRACKJACK_PLAYER_ADDRESS.
const EnvPrefix = "TRACKJACK"

type Config struct {
	Player    PlayerConfig    `mapstructure:"player" yaml:"player"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

type PlayerConfig struct {
	Network        string `mapstructure:"network" yaml:"network"` // "tcp" or "unix"
	Address        string `mapstructure:"address" yaml:"address"`
	Password       string `mapstructure:"password" yaml:"password,omitempty"`
	DisableShuffle bool   `mapstructure:"disable_shuffle" yaml:"disable_shuffle"`
	DisableRepeat  bool   `mapstructure:"disable_repeat" yaml:"disable_repeat"`
}

type RecordingConfig struct {
	Backend       string   `mapstructure:"backend" yaml:"backend"` // "pipewire", "auto"
	Device        string   `mapstructure:"device" yaml:"device"`
	Sources       []string `mapstructure:"sources" yaml:"sources"` // mono=[source], stereo=[left,right]
	SampleRate    int      `mapstructure:"sample_rate" yaml:"sample_rate"`
	Encoding      string   `mapstructure:"encoding" yaml:"encoding"`
	Container     string   `mapstructure:"container" yaml:"container"`
	TempDirectory string   `mapstructure:"temp_directory" yaml:"temp_directory,omitempty"`
}

type OutputConfig struct {
	Directory    string `mapstructure:"directory" yaml:"directory"`
	GroupByAlbum bool   `mapstructure:"group_by_album" yaml:"group_by_album"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Player: PlayerConfig{
			Network:        "tcp",
			Address:        "localhost:6600",
			DisableShuffle: true,
			DisableRepeat:  true,
		},
		Recording: RecordingConfig{
			Backend:    "auto",
			Device:     "monitor",
			Sources:    []string{"system:monitor_FL", "system:monitor_FR"},
			SampleRate: 48000,
			Encoding:   string(audio.EncodingALAC),
			Container:  string(audio.ContainerM4A),
		},
		Output: OutputConfig{
			Directory: filepath.Join("~", "Music", "TrackJack"),
		},
		Server: ServerConfig{
			Address: ":8080",
		},
	}
}

// DefaultPath returns $HOME/.config/trackjack.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "trackjack.yaml"
	}
	return filepath.Join(home, ".config", "trackjack.yaml")
}

// LoadDotEnv loads environment variables from .env files. Missing files are
// not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var existing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load %s: %w", strings.Join(existing, ", "), err)
	}
	return nil
}

// Load reads configFile on top of the defaults and applies TRACKJACK_*
// environment overrides. A missing file leaves the defaults in place.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
			}
			slog.Debug("Config file not found, using defaults", "file", configFile)
		} else {
			slog.Debug("Loaded config file", "file", v.ConfigFileUsed())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	cfg.Recording.TempDirectory = expandPath(cfg.Recording.TempDirectory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("player.network", d.Player.Network)
	v.SetDefault("player.address", d.Player.Address)
	v.SetDefault("player.password", d.Player.Password)
	v.SetDefault("player.disable_shuffle", d.Player.DisableShuffle)
	v.SetDefault("player.disable_repeat", d.Player.DisableRepeat)

	v.SetDefault("recording.backend", d.Recording.Backend)
	v.SetDefault("recording.device", d.Recording.Device)
	v.SetDefault("recording.sources", d.Recording.Sources)
	v.SetDefault("recording.sample_rate", d.Recording.SampleRate)
	v.SetDefault("recording.encoding", d.Recording.Encoding)
	v.SetDefault("recording.container", d.Recording.Container)
	v.SetDefault("recording.temp_directory", d.Recording.TempDirectory)

	v.SetDefault("output.directory", d.Output.Directory)
	v.SetDefault("output.group_by_album", d.Output.GroupByAlbum)

	v.SetDefault("server.address", d.Server.Address)
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	switch c.Player.Network {
	case "tcp", "unix":
	default:
		return fmt.Errorf("player.network must be 'tcp' or 'unix', got: %s", c.Player.Network)
	}
	if strings.TrimSpace(c.Player.Address) == "" {
		return fmt.Errorf("player.address must not be empty")
	}

	switch strings.ToLower(c.Recording.Backend) {
	case "", "auto", "pipewire":
	default:
		return fmt.Errorf("recording.backend must be 'pipewire' or 'auto', got: %s", c.Recording.Backend)
	}
	if c.Recording.SampleRate < 8000 || c.Recording.SampleRate > 192000 {
		return fmt.Errorf("recording.sample_rate must be between 8000 and 192000, got: %d", c.Recording.SampleRate)
	}
	if _, err := c.AudioSettings(); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	if len(c.Recording.Sources) > 2 {
		return fmt.Errorf("recording.sources must list one (mono) or two (stereo) sources, got %d", len(c.Recording.Sources))
	}
	for i, source := range c.Recording.Sources {
		if !isValidAudioSource(source) {
			return fmt.Errorf("recording.sources[%d] must be a valid audio source (JACK port), got: %s", i, source)
		}
	}

	if strings.TrimSpace(c.Output.Directory) == "" {
		return fmt.Errorf("output.directory must not be empty")
	}
	return nil
}

// AudioSettings returns the configured encoding and container.
func (c *Config) AudioSettings() (audio.AudioSettings, error) {
	return audio.ParseAudioSettings(c.Recording.Encoding, c.Recording.Container)
}

// CaptureDevice returns the configured capture device.
func (c *Config) CaptureDevice() audio.CaptureDevice {
	return audio.CaptureDevice{
		Name:    c.Recording.Device,
		Sources: append([]string(nil), c.Recording.Sources...),
	}
}

// Formatter returns the library layout for finished recordings.
func (c *Config) Formatter() library.FilePathFormatter {
	return library.FilePathFormatter{
		BaseDir:      c.Output.Directory,
		GroupByAlbum: c.Output.GroupByAlbum,
	}
}

// YAML renders c as it would appear in a config file.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// WriteDefault writes the default configuration to path. It refuses to
// replace an existing file.
func WriteDefault(path string) error {
	data, err := Default().YAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return f.Close()
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// isValidAudioSource checks if a source name is valid for JACK/PipeWire
func isValidAudioSource(source string) bool {
	source = strings.TrimSpace(source)

	// Empty or disabled sources are handled elsewhere
	if source == "" || source == "disabled" {
		return true
	}

	if strings.Contains(source, ":") {
		// Device names may contain colons, the port is after the last one
		lastColonIndex := strings.LastIndex(source, ":")
		deviceName := strings.TrimSpace(source[:lastColonIndex])
		port := strings.TrimSpace(source[lastColonIndex+1:])
		return len(deviceName) > 0 && len(port) > 0
	}

	return len(source) > 0
}
