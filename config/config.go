/*
Package config loads the console server's settings.

SOURCES (later wins):
  1. Defaults below
  2. Config file given with -config (yaml, json, toml or .env)
  3. Environment variables prefixed CONSOLE_, dots become underscores
     (CONSOLE_DB_DRIVER, CONSOLE_BILLING_TAKE_RATE)
  4. Command-line flags -port, -db, -config when set explicitly

KEYS:
  port                     HTTP port (8080)
  db_driver                sqlite | postgres (sqlite)
  db_path                  SQLite file, ":memory:" for in-memory (console.db)
  database_url             Postgres URL, required for db_driver=postgres
  log_level                debug | info | warn | error (info)
  jwt_secret               HS256 secret; empty disables auth
  admin_roles              roles allowed into the console (admin,finance,compliance,support)
  cors_origins             allowed origins (*)
  amqp_url                 RabbitMQ URL; empty logs events instead
  amqp_exchange            topic exchange for domain events (console.events)
  sweep_interval           compliance sweep period (1h), 0 disables
  billing.take_rate        platform take rate for KPIs (0.20)
  earnings.commission_rate driver commission (0.20)
  earnings.withholding_rate withholding tax (0.01)
  bir.vat_rate             VAT rate (0.12)
  bir.seller_tin           TIN printed on receipts
  dpa.response_days        days to answer a data-subject request (30)
  ltfrb.max_vehicle_age    years (7)
  ltfrb.base_fare, ltfrb.per_km, ltfrb.per_minute, ltfrb.surge_cap  fare matrix

Decimal settings are read as strings so "0.20" stays exact.
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const envPrefix = "CONSOLE"

type Config struct {
	Port          int
	DBDriver      string
	DBPath        string
	DatabaseURL   string
	LogLevel      string
	JWTSecret     string
	AdminRoles    []string
	CORSOrigins   []string
	AMQPURL       string
	AMQPExchange  string
	SweepInterval time.Duration

	TakeRate        decimal.Decimal
	CommissionRate  decimal.Decimal
	WithholdingRate decimal.Decimal
	VATRate         decimal.Decimal
	SellerTIN       string
	ResponseDays    int

	MaxVehicleAge int
	BaseFare      decimal.Decimal
	PerKm         decimal.Decimal
	PerMinute     decimal.Decimal
	SurgeCap      decimal.Decimal
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_path", "console.db")
	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("admin_roles", "admin,finance,compliance,support")
	v.SetDefault("cors_origins", "*")
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "console.events")
	v.SetDefault("sweep_interval", "1h")

	v.SetDefault("billing.take_rate", "0.20")
	v.SetDefault("earnings.commission_rate", "0.20")
	v.SetDefault("earnings.withholding_rate", "0.01")
	v.SetDefault("bir.vat_rate", "0.12")
	v.SetDefault("bir.seller_tin", "")
	v.SetDefault("dpa.response_days", 30)

	v.SetDefault("ltfrb.max_vehicle_age", 7)
	v.SetDefault("ltfrb.base_fare", "40")
	v.SetDefault("ltfrb.per_km", "15")
	v.SetDefault("ltfrb.per_minute", "2")
	v.SetDefault("ltfrb.surge_cap", "2")
}

// Load reads configuration from defaults, the optional config file, the
// environment and args (normally os.Args[1:]).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	port := fs.Int("port", 8080, "HTTP server port")
	dbPath := fs.String("db", "console.db", "SQLite database path (\":memory:\" for in-memory)")
	configFile := fs.String("config", "", "optional config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", *configFile, err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			v.Set("port", *port)
		case "db":
			v.Set("db_path", *dbPath)
		}
	})

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:          v.GetInt("port"),
		DBDriver:      strings.ToLower(v.GetString("db_driver")),
		DBPath:        v.GetString("db_path"),
		DatabaseURL:   v.GetString("database_url"),
		LogLevel:      strings.ToLower(v.GetString("log_level")),
		JWTSecret:     v.GetString("jwt_secret"),
		AdminRoles:    splitList(v.Get("admin_roles")),
		CORSOrigins:   splitList(v.Get("cors_origins")),
		AMQPURL:       v.GetString("amqp_url"),
		AMQPExchange:  v.GetString("amqp_exchange"),
		SweepInterval: v.GetDuration("sweep_interval"),
		SellerTIN:     v.GetString("bir.seller_tin"),
		ResponseDays:  v.GetInt("dpa.response_days"),
		MaxVehicleAge: v.GetInt("ltfrb.max_vehicle_age"),
	}

	var errs []error
	dec := func(key string) decimal.Decimal {
		d, err := decimal.NewFromString(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}
	cfg.TakeRate = dec("billing.take_rate")
	cfg.CommissionRate = dec("earnings.commission_rate")
	cfg.WithholdingRate = dec("earnings.withholding_rate")
	cfg.VATRate = dec("bir.vat_rate")
	cfg.BaseFare = dec("ltfrb.base_fare")
	cfg.PerKm = dec("ltfrb.per_km")
	cfg.PerMinute = dec("ltfrb.per_minute")
	cfg.SurgeCap = dec("ltfrb.surge_cap")
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			errs = append(errs, errors.New("db_path is required for sqlite"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("database_url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown db_driver %q", c.DBDriver))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, errors.New("sweep_interval must not be negative"))
	}
	if c.ResponseDays <= 0 {
		errs = append(errs, errors.New("dpa.response_days must be positive"))
	}
	one := decimal.NewFromInt(1)
	for name, rate := range map[string]decimal.Decimal{
		"billing.take_rate":         c.TakeRate,
		"earnings.commission_rate":  c.CommissionRate,
		"earnings.withholding_rate": c.WithholdingRate,
		"bir.vat_rate":              c.VATRate,
	} {
		if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
			errs = append(errs, fmt.Errorf("%s must be in [0, 1)", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// AuthEnabled reports whether requests need a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// splitList accepts "a,b", "a b" or a YAML list.
func splitList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case []string:
		parts = val
	case []any:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	case string:
		parts = strings.FieldsFunc(val, func(r rune) bool { return r == ',' || r == ' ' })
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
