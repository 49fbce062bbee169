package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port   string
	JWTKey string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	CardPublicKey     string
	CardSecretKey     string // never returned to clients
	CardWebhookSecret string
	CardAPIURL        string

	RegionalPublicKey          string
	RegionalSecretKey          string // also signs regional webhooks
	RegionalAPIURL             string
	RegionalSettlementCurrency string

	RateAPIURL string
	RateAPIKey string

	ProviderTimeout time.Duration

	SendgridAPIKey string
	EmailSender    string

	EnrollmentIntentTTL time.Duration
	StalePaymentAge     time.Duration
}

// AppConfig is a global variable to access configuration
var AppConfig *Config

// LoadConfig initializes configuration from environment variables or defaults
func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found. Using system environment variables.")
	}

	AppConfig = &Config{
		Port:   getEnv("PORT", "3000"),
		JWTKey: getEnv("JWT_SECRET_KEY", "defaultSecret"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "learnpay"),
		DBPort:     getEnv("DB_PORT", "5432"),

		CardPublicKey:     getEnv("CARD_PUBLIC_KEY", ""),
		CardSecretKey:     getEnv("CARD_SECRET_KEY", ""),
		CardWebhookSecret: getEnv("CARD_WEBHOOK_SECRET", ""),
		CardAPIURL:        getEnv("CARD_API_URL", "https://api.stripe.com"),

		RegionalPublicKey:          getEnv("REGIONAL_PUBLIC_KEY", ""),
		RegionalSecretKey:          getEnv("REGIONAL_SECRET_KEY", ""),
		RegionalAPIURL:             getEnv("REGIONAL_API_URL", "https://api.paystack.co"),
		RegionalSettlementCurrency: getEnv("REGIONAL_SETTLEMENT_CURRENCY", "NGN"),

		RateAPIURL: getEnv("RATE_API_URL", "https://v6.exchangerate-api.com/v6"),
		RateAPIKey: getEnv("RATE_API_KEY", ""),

		ProviderTimeout: time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 15)) * time.Second,

		SendgridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailSender:    getEnv("EMAIL_SENDER", "no-reply@learnpay.local"),

		EnrollmentIntentTTL: time.Duration(getEnvInt("ENROLLMENT_INTENT_TTL_MINUTES", 60)) * time.Minute,
		StalePaymentAge:     time.Duration(getEnvInt("STALE_PAYMENT_MINUTES", 5)) * time.Minute,
	}

	// Validate critical configuration
	if AppConfig.JWTKey == "defaultSecret" {
		log.Println("Warning: Using default JWT_SECRET_KEY. Update it in your environment.")
	}
	if AppConfig.CardSecretKey == "" {
		log.Println("Warning: CARD_SECRET_KEY is empty. Card payments will fail.")
	}
	if AppConfig.RegionalSecretKey == "" {
		log.Println("Warning: REGIONAL_SECRET_KEY is empty. Regional payments will fail.")
	}
	if AppConfig.RateAPIKey == "" {
		log.Println("Warning: RATE_API_KEY is empty. Currency conversion will be unavailable.")
	}

	return AppConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns the default integer value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}
