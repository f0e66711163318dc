// Package config loads NERVA configuration from the environment and the
// optional ~/.nerva/config.yaml file.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings for the NERVA core.
type Config struct {
	// LLM routing. When UseRouter is set and RouterURL is reachable, all
	// LLM traffic goes through the external gateway; otherwise requests
	// round-robin over LLMNodes.
	UseRouter   bool
	RouterURL   string
	LLMNodes    []string
	LLMModel    string
	VisionModel string

	// Browser
	Headless    bool
	UserDataDir string

	// Dispatcher
	MaxConcurrent   int64
	DispatchTimeout time.Duration

	// Paths
	Home     string
	NotesDir string
	ReposDir string
}

// Defaults mirror a single-machine install with a local Ollama node.
const (
	defaultRouterURL = "http://localhost:8000"
	defaultLLMNode   = "http://localhost:11434"
	defaultLLMModel  = "qwen3:4b"
	defaultVisModel  = "qwen3-vl:4b"
)

// Load reads configuration. Environment variables win over the config file;
// unset values fall back to local defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("use_router", true)
	v.SetDefault("router_url", defaultRouterURL)
	v.SetDefault("llm_nodes", defaultLLMNode)
	v.SetDefault("llm_model", defaultLLMModel)
	v.SetDefault("vision_model", defaultVisModel)
	v.SetDefault("headless", false)
	v.SetDefault("max_concurrent", 4)
	v.SetDefault("dispatch_timeout", "5m")

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	nervaHome := filepath.Join(home, ".nerva")
	if env := os.Getenv("NERVA_HOME"); env != "" {
		nervaHome = env
	}
	v.SetDefault("home", nervaHome)
	v.SetDefault("notes_dir", filepath.Join(home, "notes"))
	v.SetDefault("repos_dir", filepath.Join(home, "projects"))

	// Spec-level environment names.
	_ = v.BindEnv("use_router", "USE_ROUTER")
	_ = v.BindEnv("router_url", "ROUTER_URL")
	_ = v.BindEnv("llm_nodes", "LLM_NODES")
	_ = v.BindEnv("llm_model", "LLM_MODEL")
	_ = v.BindEnv("vision_model", "VISION_MODEL")
	_ = v.BindEnv("headless", "NERVA_HEADLESS")
	_ = v.BindEnv("notes_dir", "NERVA_NOTES_DIR")
	_ = v.BindEnv("repos_dir", "NERVA_REPOS_DIR")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(nervaHome)
	if err := v.ReadInConfig(); err != nil {
		// Missing config file is the normal case.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{
		UseRouter:       v.GetBool("use_router"),
		RouterURL:       strings.TrimRight(v.GetString("router_url"), "/"),
		LLMNodes:        splitNodes(v.GetString("llm_nodes")),
		LLMModel:        v.GetString("llm_model"),
		VisionModel:     v.GetString("vision_model"),
		Headless:        v.GetBool("headless"),
		UserDataDir:     filepath.Join(v.GetString("home"), "browser"),
		MaxConcurrent:   v.GetInt64("max_concurrent"),
		DispatchTimeout: v.GetDuration("dispatch_timeout"),
		Home:            v.GetString("home"),
		NotesDir:        v.GetString("notes_dir"),
		ReposDir:        v.GetString("repos_dir"),
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 5 * time.Minute
	}
	return cfg, nil
}

func splitNodes(raw string) []string {
	var nodes []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(strings.TrimRight(part, "/"))
		if part != "" {
			nodes = append(nodes, part)
		}
	}
	if len(nodes) == 0 {
		nodes = []string{defaultLLMNode}
	}
	return nodes
}

// MemoryDir returns the optional JSONL memory directory.
func (c *Config) MemoryDir() string { return filepath.Join(c.Home, "memory") }

// ThreadsDir returns the per-thread JSON directory.
func (c *Config) ThreadsDir() string { return filepath.Join(c.Home, "threads") }

// GraphPath returns the knowledge graph snapshot path.
func (c *Config) GraphPath() string { return filepath.Join(c.Home, "graph.json") }

// ScreenshotDir returns where vision-loop screenshots are written.
func (c *Config) ScreenshotDir() string { return filepath.Join(c.Home, "screenshots") }

// LogDir returns the log directory.
func (c *Config) LogDir() string { return filepath.Join(c.Home, "logs") }

// EnsureDirs creates the home directory layout.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Home, c.MemoryDir(), c.ThreadsDir(), c.ScreenshotDir(), c.LogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
