/**
 * @description
 * This file handles configuration management for the subscription-service.
 * It uses the 'viper' library to load configuration from environment
 * variables or a .env file, providing a centralized and consistent way to
 * manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: For configuration management.
 */
package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	ServerPort        string `mapstructure:"SERVER_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	RabbitMQURL       string `mapstructure:"RABBITMQ_URL"`
	RedisURL          string `mapstructure:"REDIS_URL"`
	AccessTokenSecret string `mapstructure:"ACCESS_TOKEN_SECRET"`
	YearEndSchedule   string `mapstructure:"YEAR_END_SCHEDULE"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8086")
	// Shortly after the year rolls over, UTC.
	viper.SetDefault("YEAR_END_SCHEDULE", "10 0 1 1 *")

	viper.AddConfigPath(".")
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind env vars explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("ACCESS_TOKEN_SECRET")
	_ = viper.BindEnv("YEAR_END_SCHEDULE")

	if err = viper.ReadInConfig(); err != nil {
		// A missing config file is fine; environment variables cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("Error reading config file: %s", err)
		}
	}

	err = viper.Unmarshal(&config)
	return
}
