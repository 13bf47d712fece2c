package main

import (
	"time"

	"github.com/spf13/viper"

	"pg-tprocc-buildschema/internal/buildschema"
	"pg-tprocc-buildschema/internal/hammerdb"
)

type Config struct {
	HammerDB   HammerDBConfig   `mapstructure:"hammerdb" yaml:"hammerdb" validate:"required"`
	Connection ConnectionConfig `mapstructure:"connection" yaml:"connection" validate:"required"`
	TPCC       TPCCConfig       `mapstructure:"tpcc" yaml:"tpcc" validate:"required"`
	Preflight  CheckConfig      `mapstructure:"preflight" yaml:"preflight"`
	Verify     CheckConfig      `mapstructure:"verify" yaml:"verify"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	LogLevel   string           `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

type HammerDBConfig struct {
	Binary             string        `mapstructure:"binary" yaml:"binary" validate:"required"`
	Dir                string        `mapstructure:"dir" yaml:"dir"`
	Dialect            string        `mapstructure:"dialect" yaml:"dialect" validate:"omitempty,oneof=tcl python"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
	TailLines          int           `mapstructure:"tail_lines" yaml:"tail_lines" validate:"gte=0"`
	WaitDelay          time.Duration `mapstructure:"wait_delay" yaml:"wait_delay" validate:"gte=0"`
	FailurePatterns    []string      `mapstructure:"failure_patterns" yaml:"failure_patterns"`
	TranscriptFile     string        `mapstructure:"transcript_file" yaml:"transcript_file"`
	TranscriptEncoding string        `mapstructure:"transcript_encoding" yaml:"transcript_encoding" validate:"omitempty,oneof=plain zstd"`
}

// The port is not configurable, HammerDB is always pointed at 5432.
type ConnectionConfig struct {
	Host    string `mapstructure:"host" yaml:"host" validate:"required"`
	SSLMode string `mapstructure:"sslmode" yaml:"sslmode" validate:"required,oneof=disable allow prefer require verify-ca verify-full"`
}

type TPCCConfig struct {
	Warehouses        int    `mapstructure:"warehouses" yaml:"warehouses" validate:"required,gte=1"`
	Superuser         string `mapstructure:"superuser" yaml:"superuser" validate:"required"`
	SuperuserPassword string `mapstructure:"superuser_password" yaml:"superuser_password"`
	DefaultDatabase   string `mapstructure:"default_database" yaml:"default_database" validate:"required"`
	User              string `mapstructure:"user" yaml:"user" validate:"required"`
	Password          string `mapstructure:"password" yaml:"password"`
	Database          string `mapstructure:"database" yaml:"database" validate:"required"`
	Tablespace        string `mapstructure:"tablespace" yaml:"tablespace" validate:"required"`
}

type CheckConfig struct {
	Enabled     bool `mapstructure:"enabled" yaml:"enabled"`
	Retries     int  `mapstructure:"retries" yaml:"retries" validate:"gte=0"`
	Concurrency int  `mapstructure:"concurrency" yaml:"concurrency" validate:"gte=0"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

func setDefaults(v *viper.Viper) {
	p := buildschema.DefaultParams()

	// every key needs a default, AutomaticEnv only resolves keys viper knows
	v.SetDefault("hammerdb.binary", "./hammerdbcli")
	v.SetDefault("hammerdb.dir", "")
	v.SetDefault("hammerdb.dialect", "tcl")
	v.SetDefault("hammerdb.timeout", time.Duration(0))
	v.SetDefault("hammerdb.tail_lines", 50)
	v.SetDefault("hammerdb.wait_delay", hammerdb.DefaultWaitDelay)
	v.SetDefault("hammerdb.failure_patterns", hammerdb.DefaultFailurePatterns)
	v.SetDefault("hammerdb.transcript_file", "")
	v.SetDefault("hammerdb.transcript_encoding", "plain")

	v.SetDefault("connection.host", p.Host)
	v.SetDefault("connection.sslmode", p.SSLMode)

	v.SetDefault("tpcc.warehouses", p.Warehouses)
	v.SetDefault("tpcc.superuser", p.Superuser)
	v.SetDefault("tpcc.superuser_password", p.SuperuserPassword)
	v.SetDefault("tpcc.default_database", p.DefaultDatabase)
	v.SetDefault("tpcc.user", p.User)
	v.SetDefault("tpcc.password", p.Password)
	v.SetDefault("tpcc.database", p.Database)
	v.SetDefault("tpcc.tablespace", p.Tablespace)

	v.SetDefault("preflight.enabled", false)
	v.SetDefault("preflight.retries", 3)
	v.SetDefault("preflight.concurrency", 1)
	v.SetDefault("verify.enabled", false)
	v.SetDefault("verify.retries", 3)
	v.SetDefault("verify.concurrency", 4)

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("log_level", "info")
}

func (c *Config) Params() buildschema.Params {
	return buildschema.Params{
		Host:              c.Connection.Host,
		SSLMode:           c.Connection.SSLMode,
		Warehouses:        c.TPCC.Warehouses,
		Superuser:         c.TPCC.Superuser,
		SuperuserPassword: c.TPCC.SuperuserPassword,
		DefaultDatabase:   c.TPCC.DefaultDatabase,
		User:              c.TPCC.User,
		Password:          c.TPCC.Password,
		Database:          c.TPCC.Database,
		Tablespace:        c.TPCC.Tablespace,
	}
}
