package database

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const applicationName = "linkcard"

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), gormConfig())
}

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), gormConfig())
}

// buildPostgresDSN renders a keyword/value connection string. Sessions are
// tagged with application_name so card traffic is visible in pg_stat_activity.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if err := requireCredentials("postgres", cfg); err != nil {
		return "", err
	}

	params := []string{
		"host=" + withDefault(cfg.Host, "localhost"),
		fmt.Sprintf("port=%d", portOrDefault(cfg.Port, 5432)),
		"user=" + cfg.User,
		"dbname=" + cfg.Name,
	}
	if cfg.Password != "" {
		params = append(params, "password="+cfg.Password)
	}

	options := map[string]string{
		"sslmode":          "disable",
		"application_name": applicationName,
	}
	maps.Copy(options, cfg.Options)
	params = append(params, joinOptions(options, "=")...)
	return strings.Join(params, " "), nil
}

// buildMySQLDSN renders a go-sql-driver DSN. Card titles and descriptions
// routinely carry emoji, so the connection is pinned to utf8mb4.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if err := requireCredentials("mysql", cfg); err != nil {
		return "", err
	}

	user := cfg.User
	if cfg.Password != "" {
		user += ":" + cfg.Password
	}

	options := map[string]string{
		"charset":   "utf8mb4",
		"collation": "utf8mb4_unicode_ci",
		"parseTime": "True",
		"loc":       "UTC",
	}
	maps.Copy(options, cfg.Options)

	address := fmt.Sprintf("%s:%d", withDefault(cfg.Host, "127.0.0.1"), portOrDefault(cfg.Port, 3306))
	return fmt.Sprintf("%s@tcp(%s)/%s?%s", user, address, cfg.Name, strings.Join(joinOptions(options, "="), "&")), nil
}

func requireCredentials(driver string, cfg Config) error {
	if cfg.User == "" || cfg.Name == "" {
		return errors.New(driver + " configuration requires user and database name")
	}
	return nil
}

// joinOptions renders options as key<sep>value pairs in key order.
func joinOptions(options map[string]string, sep string) []string {
	out := make([]string, 0, len(options))
	for _, key := range slices.Sorted(maps.Keys(options)) {
		out = append(out, key+sep+options[key])
	}
	return out
}

func withDefault(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

func portOrDefault(port, fallback int) int {
	if port <= 0 {
		return fallback
	}
	return port
}
