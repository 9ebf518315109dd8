// Package config loads typed configuration structs from environment variables
// using github.com/caarlos0/env/v11 tags, optionally seeded from dotenv files
// via github.com/joho/godotenv.
//
// Every package that needs settings declares its own Config struct with env
// tags (pg.Config, redis.Config, payment.PayPalConfig, ...). The command
// wiring loads each one with Load and passes the values down explicitly.
package config
