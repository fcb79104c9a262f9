// Package config содержит логику чтения конфигурации сервиса бронирования.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress     = "localhost:8080"
	defaultCommissionRate = 0.10
	defaultCancelCutoff   = 30 * time.Minute
)

// Config содержит параметры конфигурации сервиса бронирования.
type Config struct {
	RunAddress           string        `env:"RUN_ADDRESS"`
	DatabaseURI          string        `env:"DATABASE_URI"`
	PaymentSystemAddress string        `env:"PAYMENT_SYSTEM_ADDRESS"`
	CommissionRate       float64       `env:"COMMISSION_RATE"`
	CancelCutoff         time.Duration `env:"CANCEL_CUTOFF"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPaymentAddress := cfg.PaymentSystemAddress
	envCommissionRate := cfg.CommissionRate
	envCancelCutoff := cfg.CancelCutoff

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PaymentSystemAddress, "p", "", "payment system address")
	flag.Float64Var(&cfg.CommissionRate, "c", defaultCommissionRate, "platform commission rate, fraction of subtotal")
	flag.DurationVar(&cfg.CancelCutoff, "t", defaultCancelCutoff, "cancellation cutoff before slot time")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPaymentAddress != "" {
		cfg.PaymentSystemAddress = envPaymentAddress
	}
	if envCommissionRate != 0 {
		cfg.CommissionRate = envCommissionRate
	}
	if envCancelCutoff != 0 {
		cfg.CancelCutoff = envCancelCutoff
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.CommissionRate < 0 || cfg.CommissionRate > 1 {
		return nil, fmt.Errorf("commission rate %v out of range [0, 1]", cfg.CommissionRate)
	}
	if cfg.CancelCutoff < 0 {
		return nil, fmt.Errorf("cancel cutoff %v is negative", cfg.CancelCutoff)
	}

	return cfg, nil
}
