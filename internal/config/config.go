package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                string
	AllowedOrigin       string
	DatabaseURL         string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	AuthSecret          string
	TokenTTLMinutes     int
	BaseCurrency        string
	ExchangeRateURL     string
	RateCacheTTLMinutes int
	StripeSecretKey     string
	PayPalClientID      string
	PayPalClientSecret  string
	PayPalBaseURL       string
	MpesaConsumerKey    string
	MpesaConsumerSecret string
	MpesaShortCode      string
	MpesaPasskey        string
	MpesaCallbackURL    string
	MpesaBaseURL        string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	rateTTL, err := strconv.Atoi(getEnv("RATE_CACHE_TTL_MINUTES", "60"))
	if err != nil || rateTTL < 1 {
		rateTTL = 60
	}

	cfg := Config{
		Port:                getEnv("PORT", "8080"),
		AllowedOrigin:       getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             redisDB,
		AuthSecret:          strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		TokenTTLMinutes:     tokenTTL,
		BaseCurrency:        getEnv("BASE_CURRENCY", "USD"),
		ExchangeRateURL:     getEnv("EXCHANGE_RATE_URL", "https://open.er-api.com/v6/latest"),
		RateCacheTTLMinutes: rateTTL,
		StripeSecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		PayPalClientID:      strings.TrimSpace(os.Getenv("PAYPAL_CLIENT_ID")),
		PayPalClientSecret:  strings.TrimSpace(os.Getenv("PAYPAL_CLIENT_SECRET")),
		PayPalBaseURL:       strings.TrimSpace(os.Getenv("PAYPAL_BASE_URL")),
		MpesaConsumerKey:    strings.TrimSpace(os.Getenv("MPESA_CONSUMER_KEY")),
		MpesaConsumerSecret: strings.TrimSpace(os.Getenv("MPESA_CONSUMER_SECRET")),
		MpesaShortCode:      strings.TrimSpace(os.Getenv("MPESA_SHORT_CODE")),
		MpesaPasskey:        strings.TrimSpace(os.Getenv("MPESA_PASSKEY")),
		MpesaCallbackURL:    strings.TrimSpace(os.Getenv("MPESA_CALLBACK_URL")),
		MpesaBaseURL:        strings.TrimSpace(os.Getenv("MPESA_BASE_URL")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// GatewayDefaults maps gateway names to the credential sets seeded from the
// environment. Rows stored through the credentials API override these.
func (c Config) GatewayDefaults() map[string]map[string]string {
	defaults := map[string]map[string]string{}
	if c.StripeSecretKey != "" {
		defaults["card"] = map[string]string{"secret_key": c.StripeSecretKey}
	}
	if c.PayPalClientID != "" && c.PayPalClientSecret != "" {
		wallet := map[string]string{
			"client_id":     c.PayPalClientID,
			"client_secret": c.PayPalClientSecret,
		}
		if c.PayPalBaseURL != "" {
			wallet["base_url"] = c.PayPalBaseURL
		}
		defaults["wallet"] = wallet
	}
	if c.MpesaConsumerKey != "" && c.MpesaConsumerSecret != "" {
		mobile := map[string]string{
			"consumer_key":    c.MpesaConsumerKey,
			"consumer_secret": c.MpesaConsumerSecret,
			"short_code":      c.MpesaShortCode,
			"passkey":         c.MpesaPasskey,
			"callback_url":    c.MpesaCallbackURL,
		}
		if c.MpesaBaseURL != "" {
			mobile["base_url"] = c.MpesaBaseURL
		}
		defaults["mobile"] = mobile
	}
	return defaults
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
