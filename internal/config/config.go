package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"github.com/COhsrt/creepMiner/pkg/events"
)

type WebServerConfig struct {
	Listen    string `toml:"listen"`
	Secret    string `toml:"secret"`
	NoAuth    bool   `toml:"no_auth"`
	PublicDir string `toml:"public_dir"`
}

type PoolConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type MiningConfig struct {
	PlotDirs           []string `toml:"plot_dirs"`
	TargetDeadline     uint64   `toml:"target_deadline"`
	MaxPlotReaders     int      `toml:"max_plot_readers"`
	SubmissionMaxRetry int      `toml:"submission_max_retry"`
}

type LoggingConfig struct {
	MaxLogLines int `toml:"max_log_lines"`
}

type Config struct {
	WebServer WebServerConfig `toml:"webserver"`
	Pool      PoolConfig      `toml:"pool"`
	Mining    MiningConfig    `toml:"mining"`
	Logging   LoggingConfig   `toml:"logging"`

	path string
	mu   sync.RWMutex
}

// Default returns a configuration with usable defaults for every section.
func Default() *Config {
	return &Config{
		WebServer: WebServerConfig{
			Listen:    ":8080",
			PublicDir: "public",
		},
		Pool: PoolConfig{
			TimeoutSeconds: 30,
		},
		Mining: MiningConfig{
			TargetDeadline:     0,
			MaxPlotReaders:     2,
			SubmissionMaxRetry: 3,
		},
		Logging: LoggingConfig{
			MaxLogLines: 500,
		},
	}
}

// Load reads the TOML configuration from path. A missing file yields the
// default configuration, so a first run needs no setup.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration back to disk. Concurrent mutating endpoints
// can race on the file, so the write is serialized with a lock file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		return nil
	}

	lock := flock.New(c.path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	f, err := os.Create(c.path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(c)
}

func (c *Config) Path() string {
	return c.path
}

// The file watcher rewrites the section structs on reload, so anything read
// after startup goes through these locked accessors rather than the fields.

func (c *Config) Listen() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.WebServer.Listen
}

func (c *Config) Secret() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.WebServer.Secret
}

// SetSecret replaces the web console secret.
func (c *Config) SetSecret(secret string) {
	c.mu.Lock()
	c.WebServer.Secret = secret
	c.mu.Unlock()
}

func (c *Config) NoAuth() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.WebServer.NoAuth
}

func (c *Config) PublicDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.WebServer.PublicDir
}

func (c *Config) PoolURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Pool.URL
}

func (c *Config) PoolTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Pool.TimeoutSeconds) * time.Second
}

func (c *Config) MaxLogLines() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging.MaxLogLines
}

// MiningSnapshot returns a copy of the mining section.
func (c *Config) MiningSnapshot() MiningConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	mc := c.Mining
	mc.PlotDirs = append([]string{}, c.Mining.PlotDirs...)
	return mc
}

// UpdateMining applies fn to the mining section under the config lock.
func (c *Config) UpdateMining(fn func(*MiningConfig)) {
	c.mu.Lock()
	fn(&c.Mining)
	c.mu.Unlock()
}

// Snapshot returns a flat view of the configuration suitable for JSON
// encoding toward operator sessions. The secret is never included.
func (c *Config) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"listen":             c.WebServer.Listen,
		"poolUrl":            c.Pool.URL,
		"plotDirs":           append([]string{}, c.Mining.PlotDirs...),
		"targetDeadline":     c.Mining.TargetDeadline,
		"maxPlotReaders":     c.Mining.MaxPlotReaders,
		"submissionMaxRetry": c.Mining.SubmissionMaxRetry,
	}
}

// Watch publishes a ConfigChanged event whenever the config file is rewritten
// out-of-band. Close the returned watcher to stop.
func (c *Config) Watch(bus *events.EventBus) (*fsnotify.Watcher, error) {
	if c.path == "" {
		return nil, fmt.Errorf("config has no backing file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		var lastReload time.Time
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != c.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				// Editors fire several write events per save
				if time.Since(lastReload) < 100*time.Millisecond {
					continue
				}
				lastReload = time.Now()

				if err := c.reload(); err != nil {
					log.Printf("Config reload failed: %v", err)
					continue
				}
				bus.Publish(events.Event{
					Type: events.ConfigChanged,
					Data: map[string]interface{}{"source": "file"},
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Config watcher error: %v", err)
			}
		}
	}()

	return watcher, nil
}

func (c *Config) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}

	fresh := Default()
	if err := toml.Unmarshal(data, fresh); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.WebServer = fresh.WebServer
	c.Pool = fresh.Pool
	c.Mining = fresh.Mining
	c.Logging = fresh.Logging
	return nil
}
