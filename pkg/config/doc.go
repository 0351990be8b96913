// Package config populates typed configuration structs from environment
// variables using github.com/caarlos0/env/v11, optionally seeding the process
// environment from .env files with github.com/joho/godotenv.
//
//	type StripeConfig struct {
//		SecretKey string `env:"STRIPE_SECRET_KEY"`
//	}
//
//	cfg, err := config.Load[StripeConfig](config.WithEnvFiles(".env"))
//
// Missing .env files are not an error. Values already present in the process
// environment are never overridden by .env files.
package config
