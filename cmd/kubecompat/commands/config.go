package commands

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kubecompat/lib/configutil"
	"kubecompat/lib/eol"
	"kubecompat/lib/fetch"
	"kubecompat/lib/github"
	"kubecompat/lib/history"
	"kubecompat/lib/kubeversion"
	"kubecompat/lib/notify"
	"kubecompat/lib/telemetry"
	"kubecompat/lib/versionutil"
)

type FetchConfig struct {
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	CacheSize         int     `json:"cache_size"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`
	UserAgent         string  `json:"user_agent"`
	// DumpDir keeps every scraped page on disk for debugging.
	DumpDir string `json:"dump_dir"`
}

type GithubConfig struct {
	Token   string `json:"token"`
	BaseURL string `json:"base_url"`
}

type HelmConfig struct {
	Binary     string `json:"binary"`
	SkipImages bool   `json:"skip_images"`
}

type EOLConfig struct {
	BaseURL string `json:"base_url"`
	// Slugs maps application names to endoflife.date products.
	Slugs map[string]string `json:"slugs"`
}

type Config struct {
	LedgerDir       string `json:"ledger_dir"`
	KubeVersionFile string `json:"kube_version_file"`
	KubeVersionURL  string `json:"kube_version_url"`
	ExpandMode      string `json:"expand_mode"`
	Concurrency     int    `json:"concurrency"`

	Fetch   FetchConfig          `json:"fetch"`
	Github  GithubConfig         `json:"github"`
	Helm    HelmConfig           `json:"helm"`
	History history.Config       `json:"history"`
	EOL     EOLConfig            `json:"eol"`
	Notify  notify.Config        `json:"notify"`
	Otlp    telemetry.OtlpConfig `json:"otlp"`
}

func defaultConfig() Config {
	return Config{
		LedgerDir:       "static/compatibilities",
		KubeVersionFile: "KUBE_VERSION",
		KubeVersionURL:  kubeversion.StableURL,
		ExpandMode:      "rollover",
		Concurrency:     1,
		Fetch: FetchConfig{
			TimeoutSeconds:    30,
			RequestsPerSecond: 5,
			CacheSize:         512,
			UserAgent:         "kubecompat",
		},
		Github: GithubConfig{BaseURL: github.DefaultBaseURL},
		Helm:   HelmConfig{Binary: "helm"},
		History: history.Config{
			File: ".state/history.db",
		},
		EOL: EOLConfig{
			BaseURL: eol.DefaultBaseURL,
			Slugs: map[string]string{
				"flux":     "flux",
				"redpanda": "redpanda",
			},
		},
	}
}

// LoadConfig reads path (and its .local override), falling back to
// searching parent directories for a file of the same name. a missing
// config file leaves every default in place.
func LoadConfig(path string) (Config, error) {
	config, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) {
		config, err = configutil.ReadRecursively[Config](filepath.Base(path))
	}
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no config file found, using defaults", "path", path)
		config, err = Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}

	config, err = configutil.WithDefaults(config, defaultConfig())
	if err != nil {
		return Config{}, err
	}
	if config.Github.Token == "" {
		config.Github.Token = os.Getenv("GITHUB_TOKEN")
	}

	_, err = versionutil.ParseExpandMode(config.ExpandMode)
	if err != nil {
		return Config{}, err
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return config, nil
}

func (c Config) fetchOptions() fetch.Options {
	return fetch.Options{
		Timeout:           time.Duration(c.Fetch.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.Fetch.RequestsPerSecond,
		CacheSize:         c.Fetch.CacheSize,
		CloudflareBypass:  c.Fetch.CloudflareBypass,
		UserAgent:         c.Fetch.UserAgent,
		DumpDir:           c.Fetch.DumpDir,
	}
}

// githubOptions are fetchOptions carrying the api token, the token is only
// ever sent to the github api.
func (c Config) githubOptions() fetch.Options {
	opts := c.fetchOptions()
	opts.DumpDir = ""
	opts.Headers = map[string]string{"accept": "application/vnd.github+json"}
	if c.Github.Token != "" {
		opts.Headers["authorization"] = "Bearer " + c.Github.Token
	}
	return opts
}
