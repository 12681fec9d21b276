// auth.go implements GRVT authentication and order signing.
//
// REST sessions authenticate with an API key against the edge gateway, which
// returns a session cookie plus the numeric account id used in request
// headers. Orders themselves are signed separately: an EIP-712 typed-data
// hash over the order fields, signed with the trading account's secp256k1 key.
package grvt

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-resty/resty/v2"
)

// Chain ids per environment; order signatures are domain-bound to these.
var chainIDs = map[string]int64{
	"prod":    325,
	"testnet": 326,
	"staging": 327,
	"dev":     328,
}

const sessionTTL = 23 * time.Hour

// Auth holds the API-key session and the order signing key.
type Auth struct {
	apiKey           string
	tradingAccountID string
	privateKey       *ecdsa.PrivateKey
	chainID          *big.Int

	mu        sync.Mutex
	cookie    *http.Cookie
	accountID string
	expiresAt time.Time
}

// NewAuth parses the signing key and prepares a session-less Auth.
func NewAuth(apiKey, privateKeyHex, tradingAccountID, env string) (*Auth, error) {
	keyHex := privateKeyHex
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	chainID, ok := chainIDs[env]
	if !ok {
		chainID = chainIDs["prod"]
	}

	return &Auth{
		apiKey:           apiKey,
		tradingAccountID: tradingAccountID,
		privateKey:       key,
		chainID:          big.NewInt(chainID),
	}, nil
}

// Login exchanges the API key for a session cookie. Reuses the cached
// session until it nears expiry.
func (a *Auth) Login(ctx context.Context, http_ *resty.Client, edgeURL string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cookie != nil && time.Now().Before(a.expiresAt) {
		return nil
	}

	resp, err := http_.R().
		SetContext(ctx).
		SetBody(map[string]string{"api_key": a.apiKey}).
		Post(edgeURL + "/auth/api_key/login")
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("login: status %d: %s", resp.StatusCode(), resp.String())
	}

	for _, c := range resp.Cookies() {
		if c.Name == "gravity" {
			a.cookie = c
			break
		}
	}
	if a.cookie == nil {
		return fmt.Errorf("login: no session cookie in response")
	}
	a.accountID = resp.Header().Get("X-Grvt-Account-Id")
	a.expiresAt = time.Now().Add(sessionTTL)
	return nil
}

// Session returns the cookie and account id header for authenticated calls.
func (a *Auth) Session() (*http.Cookie, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cookie, a.accountID
}

// SignOrder produces the EIP-712 signature fields for an order payload.
func (a *Auth) SignOrder(instrumentHash string, isBuy, isMarket, postOnly, reduceOnly bool, sizeScaled, priceScaled *big.Int, timeInForce string, nonce uint32, expiration int64) (r, s string, v int, err error) {
	subAccount := new(big.Int)
	if _, ok := subAccount.SetString(a.tradingAccountID, 10); !ok {
		return "", "", 0, fmt.Errorf("parse trading account id %q", a.tradingAccountID)
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Order": {
				{Name: "subAccountID", Type: "uint64"},
				{Name: "isMarket", Type: "bool"},
				{Name: "timeInForce", Type: "uint8"},
				{Name: "postOnly", Type: "bool"},
				{Name: "reduceOnly", Type: "bool"},
				{Name: "legs", Type: "OrderLeg[]"},
				{Name: "nonce", Type: "uint32"},
				{Name: "expiration", Type: "int64"},
			},
			"OrderLeg": {
				{Name: "assetID", Type: "uint256"},
				{Name: "contractSize", Type: "uint64"},
				{Name: "limitPrice", Type: "uint64"},
				{Name: "isBuyingContract", Type: "bool"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:    "GRVT Exchange",
			Version: "0",
			ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(a.chainID)),
		},
		Message: apitypes.TypedDataMessage{
			"subAccountID": subAccount.String(),
			"isMarket":     isMarket,
			"timeInForce":  strconv.Itoa(tifCode(timeInForce)),
			"postOnly":     postOnly,
			"reduceOnly":   reduceOnly,
			"legs": []interface{}{
				map[string]interface{}{
					"assetID":          instrumentHash,
					"contractSize":     sizeScaled.String(),
					"limitPrice":       priceScaled.String(),
					"isBuyingContract": isBuy,
				},
			},
			"nonce":      strconv.FormatUint(uint64(nonce), 10),
			"expiration": strconv.FormatInt(expiration, 10),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", "", 0, fmt.Errorf("typed data hash: %w", err)
	}
	sig, err := crypto.Sign(hash, a.privateKey)
	if err != nil {
		return "", "", 0, fmt.Errorf("sign order: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return common.Bytes2Hex(sig[:32]), common.Bytes2Hex(sig[32:64]), int(sig[64]), nil
}

// Signer returns the signing address for the order payload.
func (a *Auth) Signer() common.Address {
	return crypto.PubkeyToAddress(a.privateKey.PublicKey)
}

func tifCode(tif string) int {
	switch tif {
	case "GOOD_TILL_TIME":
		return 1
	case "ALL_OR_NONE":
		return 2
	case "IMMEDIATE_OR_CANCEL":
		return 3
	case "FILL_OR_KILL":
		return 4
	default:
		return 1
	}
}
