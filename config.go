package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind                string
	itemTimerTolerance  time.Duration
	minigameTickHz      int
	port                int
	prefix              string
	profile             bool
	quizStore           string
	reconnectWindow     time.Duration
	sessionTimeout      time.Duration
	tlsCert             string
	tlsKey              string
	verbose             bool
	version             bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.minigameTickHz < 1 {
		return fmt.Errorf("invalid minigame tick rate (must be positive): %d", c.minigameTickHz)
	}
	if c.quizStore == "" {
		return errors.New("--quiz-store must be set")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizhost",
		Short:         "A realtime multiplayer quiz platform.",
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

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZHOST_BIND)")
	fs.DurationVar(&cfg.itemTimerTolerance, "item-timer-tolerance", 100*time.Millisecond, "slack added to item timers before a late answer is rejected (env: QUIZHOST_ITEM_TIMER_TOLERANCE)")
	fs.IntVar(&cfg.minigameTickHz, "minigame-tick-hz", 30, "Swan Chase simulation tick rate (env: QUIZHOST_MINIGAME_TICK_HZ)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: QUIZHOST_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: QUIZHOST_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: QUIZHOST_PROFILE)")
	fs.StringVar(&cfg.quizStore, "quiz-store", "quizhost.sqlite3", "dsn for the durable quiz/session store (env: QUIZHOST_QUIZ_STORE)")
	fs.DurationVar(&cfg.reconnectWindow, "reconnect-window", 5*time.Minute, "reconnect window for disconnected players; currently not enforced, tokens stay valid for the session's lifetime (env: QUIZHOST_RECONNECT_WINDOW)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle sessions with no connections are stopped and dropped from memory; their stored rows are not archived (env: QUIZHOST_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: QUIZHOST_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: QUIZHOST_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: QUIZHOST_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: QUIZHOST_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quizhost v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
