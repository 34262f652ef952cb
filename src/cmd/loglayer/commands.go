// FILE: loglayer/src/cmd/loglayer/commands.go
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"loglayer/src/internal/admin"
	"loglayer/src/internal/config"
	"loglayer/src/internal/version"

	"github.com/spf13/cobra"
)

// rootFlags are shared by every subcommand
type rootFlags struct {
	configFile string
	quiet      bool
	overrides  []string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "loglayer",
		Short: "Layered logging with runtime filter reload",
		Long: `loglayer installs a console and rolling-file logging pipeline with
per-layer filter directives that can be changed while the process runs.

Configuration sources (precedence: --set > environment > file > defaults):
  LOGLAYER_CONFIG_FILE   config file path
  LOGLAYER_CONFIG_DIR    config directory
  LOGLAYER_<SECTION>_<KEY>  any key, e.g. LOGLAYER_LOGGING_FILTER=debug`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			output.SetQuiet(flags.quiet)
			if flags.configFile != "" {
				os.Setenv("LOGLAYER_CONFIG_FILE", flags.configFile)
			}
		},
	}

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "path to configuration file (default ~/.config/loglayer.toml)")
	root.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "suppress console output, including errors")
	root.PersistentFlags().StringArrayVar(&flags.overrides, "set", nil, "override a config key, e.g. --set logging.filter=debug")

	root.AddCommand(
		newRunCmd(flags),
		newFilterCmd(flags),
		newTokenCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)

	// Errors are printed here so quiet mode applies to them
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		Error("Error: %v\n", err)
		return err
	})

	return root
}

// cliArgs turns --set overrides into config builder arguments
func (f *rootFlags) cliArgs() []string {
	args := make([]string, 0, len(f.overrides))
	for _, o := range f.overrides {
		args = append(args, "--"+strings.TrimPrefix(o, "--"))
	}
	return args
}

// loadConfig resolves the effective configuration. An explicit --config
// must exist; the default location may be absent.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	if f.configFile != "" {
		if _, err := os.Stat(f.configFile); err != nil {
			return nil, fmt.Errorf("config file not found: %s", f.configFile)
		}
	}
	return config.LoadWithCLI(f.cliArgs())
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Install the logging pipeline and serve the admin endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				Error("Failed to load config: %v\n", err)
				return err
			}
			if err := runService(cfg, flags); err != nil {
				Error("Error: %v\n", err)
				return err
			}
			return nil
		},
	}
}

func newFilterCmd(flags *rootFlags) *cobra.Command {
	var addr, layerName, token string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Read or change the filter of a running instance",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "", "admin address host:port (default from config)")
	cmd.PersistentFlags().StringVar(&layerName, "layer", "", "layer name (default: the reloadable layer)")
	cmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (default: minted from the configured secret)")
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print the admin response as JSON")

	client := func() (*admin.Client, error) {
		cfg, err := flags.loadConfig()
		if err != nil {
			return nil, err
		}
		return adminClient(cfg, addr, token)
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the active filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				Error("Error: %v\n", err)
				return err
			}
			state, err := c.GetFilter(layerName)
			if err != nil {
				Error("Error: %v\n", err)
				return err
			}
			return output.FilterState(state, asJSON)
		},
	}

	set := &cobra.Command{
		Use:   "set <directive>",
		Short: "Install a new filter directive, e.g. \"info,db=debug\"",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				Error("Error: %v\n", err)
				return err
			}
			state, err := c.SetFilter(layerName, args[0])
			if err != nil {
				Error("Error: %v\n", err)
				return err
			}
			return output.FilterState(state, asJSON)
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}

// adminClient targets the configured admin endpoint unless addr is given
func adminClient(cfg *config.Config, addr, token string) (*admin.Client, error) {
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Admin.Host, cfg.Admin.Port)
	}
	if token == "" && cfg.Admin.JWTSecret != "" {
		minted, err := admin.MintToken(cfg.Admin.JWTSecret, "loglayer-cli", time.Minute)
		if err != nil {
			return nil, err
		}
		token = minted
	}
	return admin.NewClient(addr, token), nil
}

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var subject, secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the admin endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := flags.loadConfig()
				if err != nil {
					Error("Error: %v\n", err)
					return err
				}
				secret = cfg.Admin.JWTSecret
			}
			token, err := admin.MintToken(secret, subject, ttl)
			if err != nil {
				Error("Error: %v\n", err)
				return err
			}
			Result("%s\n", token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default: admin.jwt_secret)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	save := &cobra.Command{
		Use:   "save <path>",
		Short: "Write the effective configuration as TOML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				Error("Error: %v\n", err)
				return err
			}
			if err := cfg.SaveToFile(args[0]); err != nil {
				Error("Error: %v\n", err)
				return err
			}
			Print("Configuration saved to %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(save)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			Result("%s\n", version.String())
		},
	}
}
