package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/codebouncer/internal/config"
	"github.com/xkilldash9x/codebouncer/internal/observability"
)

// EnvPrefix namespaces the environment overrides, e.g. BOUNCER_SCAN_CONCURRENCY.
const EnvPrefix = "BOUNCER"

type configKey struct{}

// flagBindings maps command flags onto the configuration keys they override.
var flagBindings = map[string]string{
	"deep":        "scan.force_deep",
	"threshold":   "scan.deep_scan_threshold",
	"concurrency": "scan.concurrency",
	"rate":        "scan.model_calls_per_second",
	"max-files":   "risk.max_files",
	"work-dir":    "source.work_dir",
	"log-level":   "logger.level",
}

// NewRootCommand builds the command tree. Each call returns an independent
// tree so tests never share flag state.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultStoreProvider{}, defaultClientProvider)
}

func newRootCommand(stores storeProvider, clients clientProvider) *cobra.Command {
	var cfgFile, envFile string

	rootCmd := &cobra.Command{
		Use:   "codebouncer",
		Short: "CodeBouncer decides which files deserve an expensive security review.",
		Long: `CodeBouncer ranks a repository's files by security risk using path, content
and git-history signals, sends the riskiest ones to a cheap triage model, and
escalates only uncertain or severe results to a powerful model.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile, envFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return err
			}

			// Console logs go to stderr so report output on stdout stays parseable.
			observability.Initialize(cfg.Logger, zapcore.Lock(os.Stderr))
			observability.GetLogger().Debug("Configuration loaded",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()),
			)

			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newScanCmd(stores, clients))
	rootCmd.AddCommand(newReportCmd(stores))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the CLI. Errors are logged and returned so the caller can pick
// the exit code.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			observability.GetLogger().Warn("Command aborted by signal")
		} else {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	observability.Sync()
	return err
}

// initializeConfig layers, lowest first: defaults, config file, .env, the
// environment, then explicitly set flags.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", envFile, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagBindings[f.Name]; ok && f.Changed && bindErr == nil {
			bindErr = v.BindPFlag(key, f)
		}
	})
	return bindErr
}

// getConfigFromContext returns the configuration loaded by the root command.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
