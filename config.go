/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Seednode/manzai/llm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	archive        string
	apiKey         string
	baseURL        string
	bind           string
	finishDelay    time.Duration
	llmTimeout     time.Duration
	metrics        bool
	model          string
	port           int
	prefix         string
	profile        bool
	provider       string
	revealDelay    time.Duration
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	logger *zap.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	c.provider = strings.ToLower(strings.TrimSpace(c.provider))
	if !llm.ValidProvider(c.provider) {
		return fmt.Errorf("invalid provider %q (must be one of %s)", c.provider, strings.Join(llm.Providers(), ", "))
	}
	if c.revealDelay < 0 || c.finishDelay < 0 {
		return errors.New("--reveal-delay and --finish-delay must not be negative")
	}
	if c.llmTimeout <= 0 {
		return fmt.Errorf("invalid --llm-timeout: %s", c.llmTimeout)
	}
	if c.sessionTimeout < 0 {
		return fmt.Errorf("invalid --session-timeout: %s", c.sessionTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// key returns the configured API key, falling back to the provider's usual
// environment variable.
func (c *Config) key() string {
	if c.apiKey != "" {
		return c.apiKey
	}

	switch c.provider {
	case llm.ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	case llm.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	}

	return ""
}

func (c *Config) llmConfig() llm.Config {
	return llm.Config{
		Provider: c.provider,
		Model:    c.model,
		APIKey:   c.key(),
		BaseURL:  c.baseURL,
		Timeout:  c.llmTimeout,
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MANZAI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "manzai",
		Short:         "A translation manzai party game, played against a language model.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg.logger = logger

			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.archive, "archive", "", "path to sqlite database for finished games, disabled if empty (env: MANZAI_ARCHIVE)")
	fs.StringVar(&cfg.apiKey, "api-key", "", "api key for the model provider (env: MANZAI_API_KEY, GEMINI_API_KEY, OPENAI_API_KEY)")
	fs.StringVar(&cfg.baseURL, "base-url", "", "override the model provider's base url (env: MANZAI_BASE_URL)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: MANZAI_BIND)")
	fs.DurationVar(&cfg.finishDelay, "finish-delay", 2*time.Second, "pause before the post-game summary once a game is won (env: MANZAI_FINISH_DELAY)")
	fs.DurationVar(&cfg.llmTimeout, "llm-timeout", 60*time.Second, "timeout for each model request (env: MANZAI_LLM_TIMEOUT)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "expose prometheus metrics on /metrics (env: MANZAI_METRICS)")
	fs.StringVar(&cfg.model, "model", "", "model name, provider default if empty (env: MANZAI_MODEL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: MANZAI_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: MANZAI_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: MANZAI_PROFILE)")
	fs.StringVar(&cfg.provider, "provider", llm.ProviderGemini, "model provider: "+strings.Join(llm.Providers(), ", ")+" (env: MANZAI_PROVIDER)")
	fs.DurationVar(&cfg.revealDelay, "reveal-delay", 1500*time.Millisecond, "pause between each line of a wrong guess (env: MANZAI_REVEAL_DELAY)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: MANZAI_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: MANZAI_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: MANZAI_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: MANZAI_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: MANZAI_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("manzai v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
