package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	allowForceReveal bool
	bind             string
	cardSets         string
	corsOrigins      []string
	envFile          string
	port             int
	prefix           string
	profile          bool
	sessionTimeout   time.Duration
	simulate         bool
	simulateInterval time.Duration
	storage          string
	storagePath      string
	tlsCert          string
	tlsKey           string
	verbose          bool
	version          bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}

	switch c.storage {
	case "memory":
	case "dir", "sqlite":
		if strings.TrimSpace(c.storagePath) == "" {
			return fmt.Errorf("--storage-path is required for %s storage", c.storage)
		}
	default:
		return fmt.Errorf("invalid storage (must be one of memory, dir, sqlite): %q", c.storage)
	}

	if c.simulate && c.simulateInterval <= 0 {
		return fmt.Errorf("invalid simulate interval (must be positive): %s", c.simulateInterval)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// loadEnvFile reads --env-file (or POKERBOX_ENV_FILE) ahead of flag parsing
// so the file's values are visible to viper.
func loadEnvFile(args []string) error {
	path := ""
	for i, arg := range args {
		switch {
		case strings.HasPrefix(arg, "--env-file="):
			path = strings.TrimPrefix(arg, "--env-file=")
		case arg == "--env-file" && i+1 < len(args):
			path = args[i+1]
		}
	}
	if path == "" {
		path = os.Getenv("POKERBOX_ENV_FILE")
	}
	if path == "" {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("POKERBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "pokerbox",
		Short:         "Planning poker for small teams, served as a single webapp.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.BoolVar(&cfg.allowForceReveal, "allow-force-reveal", false, "let hosts reveal before everyone has voted (env: POKERBOX_ALLOW_FORCE_REVEAL)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: POKERBOX_BIND)")
	fs.StringVar(&cfg.cardSets, "card-sets", "", "path to a yaml file of extra card sets (env: POKERBOX_CARD_SETS)")
	fs.StringSliceVar(&cfg.corsOrigins, "cors-origins", nil, "origins allowed to call the api cross-site (env: POKERBOX_CORS_ORIGINS)")
	fs.StringVar(&cfg.envFile, "env-file", "", "path to a .env file to load before reading the environment (env: POKERBOX_ENV_FILE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: POKERBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: POKERBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: POKERBOX_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle browser profiles are unloaded (env: POKERBOX_SESSION_TIMEOUT)")
	fs.BoolVar(&cfg.simulate, "simulate", false, "cast random votes for other participants, for demos (env: POKERBOX_SIMULATE)")
	fs.DurationVar(&cfg.simulateInterval, "simulate-interval", 2*time.Second, "time between simulated votes (env: POKERBOX_SIMULATE_INTERVAL)")
	fs.StringVar(&cfg.storage, "storage", "memory", "where to keep sessions: memory, dir, sqlite (env: POKERBOX_STORAGE)")
	fs.StringVar(&cfg.storagePath, "storage-path", "", "directory or database file for dir and sqlite storage (env: POKERBOX_STORAGE_PATH)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: POKERBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: POKERBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: POKERBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: POKERBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("pokerbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
