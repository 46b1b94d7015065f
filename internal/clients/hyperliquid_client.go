package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

type HyperliquidClient struct {
	exchange    *hyperliquid.Exchange
	accountAddr string
}

// NewHyperliquidClient builds an exchange handle. With an empty key an
// ephemeral one is generated; it is only used to satisfy the SDK, the
// price queries made through Info are unsigned.
func NewHyperliquidClient(privateKeyHex string, baseURL string) (*HyperliquidClient, error) {
	privateKey, err := loadOrGenerateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	pub := privateKey.Public()
	pubECDSA, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}
	accountAddr := crypto.PubkeyToAddress(*pubECDSA).Hex()

	ex := hyperliquid.NewExchange(
		context.Background(),
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return &HyperliquidClient{exchange: ex, accountAddr: accountAddr}, nil
}

func loadOrGenerateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	if privateKeyHex == "" {
		return crypto.GenerateKey()
	}

	key := privateKeyHex
	if len(key) >= 2 && (key[:2] == "0x" || key[:2] == "0X") {
		key = key[2:]
	}

	return crypto.HexToECDSA(key)
}

func (c *HyperliquidClient) Info() *hyperliquid.Info { return c.exchange.Info() }
func (c *HyperliquidClient) AccountAddress() string  { return c.accountAddr }
