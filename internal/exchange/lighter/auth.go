// auth.go implements Lighter request signing.
//
// Two things get signed with the API key's secp256k1 private key:
//
//   - Expiring auth tokens for authenticated REST queries and the
//     account_orders stream channel. Tokens carry a unix deadline; the
//     stream refreshes its token before the 10-minute expiry.
//
//   - Order transactions (create/cancel), whose canonical JSON encoding is
//     keccak-hashed and signed before submission to /api/v1/sendTx.
package lighter

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// authTokenTTL matches the server-side cap on token lifetime.
const authTokenTTL = 10 * time.Minute

type signer struct {
	key          *ecdsa.PrivateKey
	accountIndex int64
	apiKeyIndex  int64
}

func newSigner(privateKeyHex string, accountIndex, apiKeyIndex int64) (*signer, error) {
	keyHex := privateKeyHex
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &signer{key: key, accountIndex: accountIndex, apiKeyIndex: apiKeyIndex}, nil
}

// AuthToken builds an expiring auth token: "<deadline>:<signature>" where the
// signature covers the account, the API key slot, and the deadline.
func (s *signer) AuthToken(deadline time.Time) (string, error) {
	msg := fmt.Sprintf("lighter-auth:%d:%d:%d", s.accountIndex, s.apiKeyIndex, deadline.Unix())
	sig, err := crypto.Sign(crypto.Keccak256([]byte(msg)), s.key)
	if err != nil {
		return "", fmt.Errorf("sign auth token: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return fmt.Sprintf("%d:%s", deadline.Unix(), hexutil.Encode(sig)), nil
}

// FreshAuthToken issues a token with the full TTL.
func (s *signer) FreshAuthToken() (string, error) {
	return s.AuthToken(time.Now().Add(authTokenTTL))
}

// SignTx keccak-hashes the canonical JSON encoding of a transaction payload
// and returns the hex signature to embed in the sendTx request.
func (s *signer) SignTx(tx any) (string, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("encode tx: %w", err)
	}
	sig, err := crypto.Sign(crypto.Keccak256(payload), s.key)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return hexutil.Encode(sig), nil
}
