package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dshills/scenekit/internal/config"
)

// envPrefix scopes environment overrides, e.g. SCENEKIT_BUS_ENABLE_HISTORY.
const envPrefix = "SCENEKIT"

// settings holds the resolved configuration shared by all subcommands.
type settings struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	s := &settings{v: viper.New()}

	root := &cobra.Command{
		Use:          "scenekit",
		Short:        "Event bus and service container for scene-tree games",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return s.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&s.cfgFile, "config", "c", "", "config file (TOML or YAML)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("debug", false, "log every publish and subscription change")
	_ = s.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = s.v.BindPFlag("bus.debug_mode", flags.Lookup("debug"))

	root.AddCommand(newDemoCmd(s), newConfigCmd(s), newVersionCmd())
	return root
}

// load layers the built-in defaults, the config file, SCENEKIT_* variables
// and flags, in increasing precedence.
func (s *settings) load() error {
	base := config.Default()
	if s.cfgFile != "" {
		cfg, err := config.Load(s.cfgFile)
		if err != nil {
			return err
		}
		base = cfg
	}

	var buf bytes.Buffer
	if err := config.Encode(&buf, config.FormatTOML, base); err != nil {
		return err
	}
	s.v.SetConfigType(string(config.FormatTOML))
	if err := s.v.ReadConfig(&buf); err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	s.v.SetEnvPrefix(envPrefix)
	s.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	s.v.AutomaticEnv()

	cfg := config.Default()
	if err := s.v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

func newConfigCmd(s *settings) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.Encode(cmd.OutOrStdout(), config.Format(format), s.cfg)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(config.FormatTOML), "output format: toml or yaml")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "scenekit %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
