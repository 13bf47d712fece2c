package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	envFile  string
	validate = validator.New()
	logger   zerolog.Logger
)

func setupLogger(w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// stdout carries the build markers, logs go to stderr
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    false,
	}

	logger = zerolog.New(output).
		With().
		Timestamp().
		Str("app", "pg-tprocc-buildschema").
		Logger()

	log.Logger = logger
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pg-tprocc-buildschema",
	Short: "Build a HammerDB TPROC-C schema on PostgreSQL",
	Long: `Configures HammerDB for a TPROC-C workload against PostgreSQL and runs the
schema build through hammerdbcli. The virtual user count follows the number
of CPUs and order_line is partitioned from 200 warehouses up.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(viper.GetViper())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info().
			Str("config_file", viper.ConfigFileUsed()).
			Msg("Starting schema build")

		config, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}

		logger.Info().
			Str("host", config.Connection.Host).
			Int("warehouses", config.TPCC.Warehouses).
			Str("superuser", config.TPCC.Superuser).
			Str("superuser_password", maskSecret(config.TPCC.SuperuserPassword)).
			Str("database", config.TPCC.Database).
			Str("dialect", config.HammerDB.Dialect).
			Msg("Configuration loaded successfully")

		if config.Connection.Host == placeholderHost {
			logger.Warn().Msg("connection.host is still the placeholder, set it to the database server address")
		}

		return performBuild(cmd.Context(), config, cmd.OutOrStdout())
	},
}

const placeholderHost = "DB_SERVER_IP"

// maskSecret masks a secret for logging
func maskSecret(secret string) string {
	if len(secret) > 0 {
		return "****"
	}
	return ""
}

func init() {
	setDefaults(viper.GetViper())

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file with PGTPCC_* variables to load before reading config")
	rootCmd.PersistentFlags().String("hammerdb-binary", "", "Path to hammerdbcli (can also be set via config file)")
	rootCmd.PersistentFlags().String("hammerdb-dir", "", "HammerDB install directory to run hammerdbcli in (can also be set via config file)")
	rootCmd.PersistentFlags().String("dialect", "", "Script dialect: tcl or python (can also be set via config file)")
	rootCmd.PersistentFlags().String("host", "", "PostgreSQL host (can also be set via config file)")
	rootCmd.PersistentFlags().Int("warehouses", 0, "Warehouse count (can also be set via config file)")
	rootCmd.PersistentFlags().Bool("preflight", false, "Check connectivity before building (can also be set via config file)")
	rootCmd.PersistentFlags().Bool("verify", false, "Verify the schema after building (can also be set via config file)")
	rootCmd.PersistentFlags().String("metrics-textfile", "", "Write Prometheus metrics to this file when done (can also be set via config file)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	bindFlag("hammerdb.binary", "hammerdb-binary")
	bindFlag("hammerdb.dir", "hammerdb-dir")
	bindFlag("hammerdb.dialect", "dialect")
	bindFlag("connection.host", "host")
	bindFlag("tpcc.warehouses", "warehouses")
	bindFlag("preflight.enabled", "preflight")
	bindFlag("verify.enabled", "verify")
	bindFlag("metrics.textfile", "metrics-textfile")
	bindFlag("log_level", "log-level")
}

// bindFlag ties a config key to a flag. The flag only wins over the config
// file and env when it was set on the command line.
func bindFlag(key, flag string) {
	viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
}

func initConfig(v *viper.Viper) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setupEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	setLogLevel(v.GetString("log_level"))
	return nil
}

func setupEnv(v *viper.Viper) {
	v.SetEnvPrefix("PGTPCC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func loadConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func execute(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func main() {
	setupLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := execute(ctx, os.Args[1:]); err != nil {
		stop()
		logger.Error().Err(err).Msg("Schema build failed")
		os.Exit(1)
	}
}
