package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env    string `yaml:"env"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		TTL               string `yaml:"ttl"`
		DefaultCategory   string `yaml:"default_category"`
		DefaultDifficulty string `yaml:"default_difficulty"`
	} `yaml:"questions"`
	Battle BattleConfig `yaml:"battle"`
}

// BattleConfig makes every coordination timing an explicit knob instead of a
// constant buried in client code.
type BattleConfig struct {
	QuestionWindow        string `yaml:"question_window"`
	AnswerDelay           string `yaml:"answer_delay"`
	LobbyCountdown        string `yaml:"lobby_countdown"`
	QuestionCount         int    `yaml:"question_count"`
	OpenMaxPlayers        int    `yaml:"open_max_players"`
	MinPlayers            int    `yaml:"min_players"`
	PresenceStaleness     string `yaml:"presence_staleness"`
	PresenceCheckInterval string `yaml:"presence_check_interval"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty/invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// BattleTimings resolves the battle section into concrete values with the
// documented defaults.
type BattleTimings struct {
	QuestionWindow        time.Duration
	AnswerDelay           time.Duration
	LobbyCountdown        time.Duration
	QuestionCount         int
	OpenMaxPlayers        int
	MinPlayers            int
	PresenceStaleness     time.Duration
	PresenceCheckInterval time.Duration
}

func (c BattleConfig) Timings() BattleTimings {
	t := BattleTimings{
		QuestionWindow:        Duration(c.QuestionWindow, 15*time.Second),
		AnswerDelay:           Duration(c.AnswerDelay, 2*time.Second),
		LobbyCountdown:        Duration(c.LobbyCountdown, 30*time.Second),
		QuestionCount:         c.QuestionCount,
		OpenMaxPlayers:        c.OpenMaxPlayers,
		MinPlayers:            c.MinPlayers,
		PresenceStaleness:     Duration(c.PresenceStaleness, 300*time.Second),
		PresenceCheckInterval: Duration(c.PresenceCheckInterval, 30*time.Second),
	}
	if t.QuestionCount <= 0 {
		t.QuestionCount = 5
	}
	if t.OpenMaxPlayers <= 0 {
		t.OpenMaxPlayers = 4
	}
	if t.MinPlayers <= 0 {
		t.MinPlayers = 2
	}
	return t
}
