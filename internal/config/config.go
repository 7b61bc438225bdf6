// Package config persists user preferences as an explicit key-value
// store with load/save, decoupled from any UI binding.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultServerURL = "http://localhost:8080/api"

	configDirName  = "shuzhai-t"
	configFileName = "config.yaml"

	// MaxRecentlyRead caps the recently read list
	MaxRecentlyRead = 10
)

// Reading theme names understood by the reader view
const (
	ThemeDay   = "day"
	ThemeNight = "night"
	ThemeSepia = "sepia"
)

// Text scale bounds for the reader
const (
	MinTextScale     = 0.5
	MaxTextScale     = 2.0
	DefaultTextScale = 1.0
	TextScaleStep    = 0.1
)

// RecentlyReadEntry records one recently opened book
type RecentlyReadEntry struct {
	BookID   string `mapstructure:"book_id"`
	Title    string `mapstructure:"title"`
	OpenedAt string `mapstructure:"opened_at"` // RFC3339
}

// Config holds the persisted preferences
type Config struct {
	ServerURL       string              `mapstructure:"server_url"`
	ReadingTheme    string              `mapstructure:"reading_theme"`
	TextScale       float64             `mapstructure:"text_scale"`
	ContentLanguage string              `mapstructure:"content_language"`
	RecentlyRead    []RecentlyReadEntry `mapstructure:"recently_read"`

	v    *viper.Viper
	path string
}

// Load reads preferences from the user config dir, falling back to
// defaults when no file exists yet
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return loadFrom(path)
}

func loadFrom(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("server_url", DefaultServerURL)
	v.SetDefault("reading_theme", ThemeDay)
	v.SetDefault("text_scale", DefaultTextScale)
	v.SetDefault("content_language", "zh-Hant")

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	cfg := &Config{v: v, path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the preferences back to disk
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	c.v.Set("server_url", c.ServerURL)
	c.v.Set("reading_theme", c.ReadingTheme)
	c.v.Set("text_scale", c.TextScale)
	c.v.Set("content_language", c.ContentLanguage)
	entries := make([]map[string]string, len(c.RecentlyRead))
	for i, e := range c.RecentlyRead {
		entries[i] = map[string]string{
			"book_id":   e.BookID,
			"title":     e.Title,
			"opened_at": e.OpenedAt,
		}
	}
	c.v.Set("recently_read", entries)
	return c.v.WriteConfigAs(c.path)
}

// SetTextScale clamps, stores, and saves the text scale
func (c *Config) SetTextScale(scale float64) error {
	if scale < MinTextScale {
		scale = MinTextScale
	}
	if scale > MaxTextScale {
		scale = MaxTextScale
	}
	c.TextScale = scale
	return c.Save()
}

// SetReadingTheme stores and saves the reading theme
func (c *Config) SetReadingTheme(theme string) error {
	c.ReadingTheme = theme
	return c.Save()
}

// AddRecentlyRead moves a book to the front of the recently read list
func (c *Config) AddRecentlyRead(bookID, title string) error {
	newList := make([]RecentlyReadEntry, 0, MaxRecentlyRead)
	newList = append(newList, RecentlyReadEntry{
		BookID:   bookID,
		Title:    title,
		OpenedAt: time.Now().Format(time.RFC3339),
	})
	for _, entry := range c.RecentlyRead {
		if entry.BookID != bookID {
			newList = append(newList, entry)
		}
	}
	if len(newList) > MaxRecentlyRead {
		newList = newList[:MaxRecentlyRead]
	}
	c.RecentlyRead = newList
	return c.Save()
}

// LastOpened returns when the book was last opened, zero if never
func (c *Config) LastOpened(bookID string) time.Time {
	for _, entry := range c.RecentlyRead {
		if entry.BookID == bookID {
			if t, err := time.Parse(time.RFC3339, entry.OpenedAt); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// Dir returns the directory holding the config file
func (c *Config) Dir() string {
	return filepath.Dir(c.path)
}

func configPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, configDirName, configFileName), nil
}
