package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/minos-eval/minos/pkg/config"
)

const masked = "********"

// secretKeys are masked by config view and get.
var secretKeys = map[string]bool{
	"redis.password":   true,
	"postgres.dsn":     true,
	"store.secret_key": true,
	"server.api_key":   true,
	"audit.key":        true,
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
	}

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "View the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			maskSecret(&cfg.Redis.Password)
			maskSecret(&cfg.Postgres.DSN)
			maskSecret(&cfg.Store.SecretKey)
			maskSecret(&cfg.Server.APIKey)
			maskSecret(&cfg.Audit.Key)

			if used := a.v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", used)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	getCmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.ToLower(args[0])
			val := a.v.Get(key)
			if val == nil {
				return fmt.Errorf("unknown config key %q", key)
			}
			if secretKeys[key] && fmt.Sprint(val) != "" {
				val = masked
			}
			fmt.Fprintln(cmd.OutOrStdout(), val)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a value in the config file",
		Long: `Set writes KEY to the config file given by --config, the file in use, or
./minos.yaml. VALUE is parsed as YAML, so numbers, booleans and [a, b] lists keep their type.`,
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{allowMissingConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.ToLower(args[0])
			var value any
			if err := yaml.Unmarshal([]byte(args[1]), &value); err != nil || value == nil {
				value = args[1]
			}

			// Validate against the merged settings before touching the file.
			a.v.Set(key, value)
			if _, err := config.FromViper(a.v); err != nil {
				return err
			}

			path := a.cfgFile
			if path == "" {
				path = a.v.ConfigFileUsed()
			}
			if path == "" {
				path = "minos.yaml"
			}

			// Only the file's own keys are written back, not defaults or environment.
			file := viper.New()
			file.SetConfigFile(path)
			file.SetConfigType("yaml")
			if err := file.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
			}
			file.Set(key, value)
			if err := file.WriteConfigAs(path); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s to %v in %s\n", key, value, path)
			return nil
		},
	}

	cmd.AddCommand(viewCmd, getCmd, setCmd)
	return cmd
}

func maskSecret(s *string) {
	if *s != "" {
		*s = masked
	}
}
