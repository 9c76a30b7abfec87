package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/minos-eval/minos/pkg/config"
	"github.com/minos-eval/minos/pkg/erebus"
	"github.com/minos-eval/minos/pkg/hermes"
	"github.com/minos-eval/minos/pkg/ingest"
)

// allowMissingConfig marks commands that may run before the --config file exists.
const allowMissingConfig = "minos/allow-missing-config"

// errGatesFailed is returned when an evaluation finished but a quality gate did not pass.
var errGatesFailed = errors.New("quality gates failed")

// app holds the state shared by every subcommand of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  hermes.Logger
}

// NewRootCmd builds the minos command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "minos",
		Short: "Forecast evaluation and diagnostics",
		Long: `minos scores probabilistic forecasts against observed actuals: point accuracy,
interval calibration, rolling diagnostics, a model leaderboard and feature importance.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./minos.yaml or $HOME/.minos/minos.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "json", "log format: json or console")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(
		newEvaluateCmd(a),
		newLeaderboardCmd(a),
		newImportanceCmd(a),
		newGatesCmd(a),
		newPushCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
		newAuditCmd(a),
	)
	return root
}

// Execute runs the CLI and exits with 2 when gates failed and 1 on any other error.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, errGatesFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func (a *app) load(cmd *cobra.Command, args []string) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.SetConfigName("minos")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".minos"))
		}
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound) && a.cfgFile == "":
		case (errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) && cmd.Annotations[allowMissingConfig] != "":
		default:
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := config.FromViper(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = hermes.NewZerologAdapter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	return nil
}

func (a *app) schema() ingest.Schema {
	s := a.cfg.Schema
	return ingest.Schema{
		Timestamp:  s.Timestamp,
		Actual:     s.Actual,
		Median:     s.Median,
		Lower:      s.Lower,
		Upper:      s.Upper,
		Feature:    s.Feature,
		Importance: s.Importance,
		Baselines:  s.Baselines,
	}
}

func (a *app) openStore(cmd *cobra.Command) (erebus.Store, error) {
	s := a.cfg.Store
	return erebus.Open(cmd.Context(), s.Kind, s.Root, erebus.S3Options{
		Endpoint:     s.Endpoint,
		Region:       s.Region,
		Bucket:       s.Bucket,
		AccessKey:    s.AccessKey,
		SecretKey:    s.SecretKey,
		UsePathStyle: s.UsePathStyle,
	})
}
