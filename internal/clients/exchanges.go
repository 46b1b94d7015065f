// Package clients builds exchange SDK clients for the price sources.
package clients

import (
	"os"

	"github.com/adshao/go-binance/v2"
	"github.com/hirokisan/bybit/v2"
)

// Credentials are optional exchange API keys. Market data endpoints are
// public, so a zero value is valid.
type Credentials struct {
	Key    string
	Secret string
}

// CredentialsFromEnv reads <prefix>_API_KEY and <prefix>_API_SECRET.
func CredentialsFromEnv(prefix string) Credentials {
	return Credentials{
		Key:    os.Getenv(prefix + "_API_KEY"),
		Secret: os.Getenv(prefix + "_API_SECRET"),
	}
}

func (c Credentials) complete() bool {
	return c.Key != "" && c.Secret != ""
}

// NewBinanceClient creates a Binance REST client.
func NewBinanceClient(creds Credentials) *binance.Client {
	return binance.NewClient(creds.Key, creds.Secret)
}

// NewBybitClient creates a Bybit client, signing requests only when both
// keys are set.
func NewBybitClient(creds Credentials) *bybit.Client {
	client := bybit.NewClient()
	if creds.complete() {
		client = client.WithAuth(creds.Key, creds.Secret)
	}
	return client
}
