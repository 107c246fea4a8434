// Package security signs outgoing report batches so receivers can check
// they came from this engine and were not altered in transit.
package security

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/swell-ops-ea/internal/chain"
)

// DefaultValidity bounds how long a signature is accepted.
const DefaultValidity = 24 * time.Hour

// Signature travels next to the signed body.
type Signature struct {
	Signature  string `json:"signature"`
	Signer     string `json:"signer"`
	Timestamp  int64  `json:"timestamp"`
	ValidUntil int64  `json:"validUntil"`
}

// ReportSigner produces EIP-191 personal signatures over
// "<timestamp>.<body>", recoverable with ecrecover.
type ReportSigner struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	validity time.Duration
	now      func() time.Time
}

// NewReportSigner loads hexKey, or generates an ephemeral key when it is
// empty.
func NewReportSigner(hexKey string, validity time.Duration) (*ReportSigner, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if strings.TrimSpace(hexKey) == "" {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		logrus.Warn("No report signing key configured, using an ephemeral key")
	} else {
		key, err = chain.ParseKey(hexKey)
		if err != nil {
			return nil, err
		}
	}
	if validity <= 0 {
		validity = DefaultValidity
	}

	s := &ReportSigner{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		validity: validity,
		now:      time.Now,
	}
	logrus.WithField("signer", s.address.Hex()).Info("Report signer initialized")
	return s, nil
}

// Address is the account receivers should expect to recover.
func (s *ReportSigner) Address() common.Address {
	return s.address
}

// Sign signs body at the current time.
func (s *ReportSigner) Sign(body []byte) (Signature, error) {
	now := s.now()
	sig, err := crypto.Sign(digest(now.Unix(), body), s.key)
	if err != nil {
		return Signature{}, fmt.Errorf("failed to sign report: %w", err)
	}
	// personal_sign convention
	sig[crypto.RecoveryIDOffset] += 27

	return Signature{
		Signature:  hexutil.Encode(sig),
		Signer:     s.address.Hex(),
		Timestamp:  now.Unix(),
		ValidUntil: now.Add(s.validity).Unix(),
	}, nil
}

// Verify recovers the signer of body and checks it against sig.Signer and
// the validity window.
func Verify(body []byte, sig Signature, now time.Time) (common.Address, error) {
	if now.Unix() > sig.ValidUntil {
		return common.Address{}, fmt.Errorf("signature expired at %s", time.Unix(sig.ValidUntil, 0).UTC().Format(time.RFC3339))
	}
	raw, err := hexutil.Decode(sig.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(raw) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(raw))
	}
	if raw[crypto.RecoveryIDOffset] >= 27 {
		raw[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(digest(sig.Timestamp, body), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if !common.IsHexAddress(sig.Signer) || recovered != common.HexToAddress(sig.Signer) {
		return recovered, errors.New("signature verification failed")
	}
	return recovered, nil
}

func digest(ts int64, body []byte) []byte {
	msg := append([]byte(strconv.FormatInt(ts, 10)+"."), body...)
	return accounts.TextHash(msg)
}
