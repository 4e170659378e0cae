package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/minaorangina/easyplayer"
	"github.com/minaorangina/easyplayer/journal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds process settings read from the environment
type Config struct {
	Addr        string `env:"EASYPLAYER_ADDR,default=:8000"`
	TickRate    int    `env:"EASYPLAYER_TICK_RATE,default=66"`
	WorldPath   string `env:"EASYPLAYER_WORLD,default=./configs/world.yaml"`
	Journal     string `env:"EASYPLAYER_JOURNAL,default=none"`
	JournalPath string `env:"EASYPLAYER_JOURNAL_PATH,default=./data/journal"`
	LogLevel    string `env:"EASYPLAYER_LOG_LEVEL,default=info"`
}

// World holds the sandbox host's settings
type World struct {
	MaxPlayers  int            `yaml:"max_players"`
	Mode        string         `yaml:"mode"`
	DefaultTeam int            `yaml:"default_team"`
	Attributes  map[string]int `yaml:"attributes"`
}

// Load reads Config from the environment
func Load() (Config, error) {
	var c Config
	if err := envdecode.Decode(&c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return c, fmt.Errorf("config: %w", err)
	}

	if err := journal.CheckKind(c.Journal); err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	if c.TickRate <= 0 {
		return c, fmt.Errorf("config: tick rate must be positive, got %d", c.TickRate)
	}

	return c, nil
}

// Level parses LogLevel, falling back to info
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// DefaultWorld returns a Counter-Strike style sandbox
func DefaultWorld() World {
	return World{
		MaxPlayers:  32,
		Mode:        "cs",
		DefaultTeam: easyplayer.TeamUnassigned,
		Attributes: map[string]int{
			"health":  100,
			"armor":   0,
			"speed":   250,
			"gravity": 100,
			"cash":    800,
		},
	}
}

// LoadWorld reads World from a YAML file.
// A missing file yields DefaultWorld.
func LoadWorld(path string) (World, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultWorld(), nil
	}
	if err != nil {
		return World{}, err
	}

	w := DefaultWorld()
	w.Attributes = nil
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return World{}, fmt.Errorf("%s: %w", path, err)
	}
	if len(w.Attributes) == 0 {
		w.Attributes = DefaultWorld().Attributes
	}
	if _, err := easyplayer.ParseMode(w.Mode); err != nil {
		return World{}, fmt.Errorf("%s: %w", path, err)
	}

	return w, nil
}

// GameMode returns the parsed Mode
func (w World) GameMode() easyplayer.Mode {
	m, _ := easyplayer.ParseMode(w.Mode)
	return m
}
