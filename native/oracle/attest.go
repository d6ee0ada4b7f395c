package oracle

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AttestationDomainV1 defines the domain separator used when signing price
// attestations.
const AttestationDomainV1 = "MRT_ORACLE_PRICE_V1"

// PriceAttestation captures a signed price submission. A relayer can carry
// it on behalf of a source; the signature, not the transport, identifies the
// submitting source.
type PriceAttestation struct {
	Domain     string
	Symbol     string
	Price      *big.Int
	Confidence uint32
	Timestamp  int64
	Signature  []byte
}

// NewPriceAttestation constructs an attestation from the raw submission
// payload.
func NewPriceAttestation(domain, symbol string, price *big.Int, confidence uint32, ts int64, signature []byte) (*PriceAttestation, error) {
	trimmedDomain := strings.TrimSpace(domain)
	if trimmedDomain == "" {
		return nil, fmt.Errorf("price attestation: domain required")
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("price attestation: price must be positive")
	}
	if confidence < MinConfidence || confidence > MaxConfidence {
		return nil, fmt.Errorf("price attestation: confidence %d out of range", confidence)
	}
	if ts <= 0 {
		return nil, fmt.Errorf("price attestation: timestamp required")
	}
	att := &PriceAttestation{
		Domain:     trimmedDomain,
		Symbol:     normalized,
		Price:      new(big.Int).Set(price),
		Confidence: confidence,
		Timestamp:  ts,
	}
	if len(signature) > 0 {
		att.Signature = append([]byte(nil), signature...)
	}
	return att, nil
}

// CanonicalMessage renders the canonical message used for signature
// verification.
func (a *PriceAttestation) CanonicalMessage() (string, error) {
	if a == nil {
		return "", fmt.Errorf("price attestation not initialised")
	}
	domain := strings.TrimSpace(a.Domain)
	if domain == "" {
		return "", fmt.Errorf("price attestation: domain required")
	}
	symbol := strings.TrimSpace(a.Symbol)
	if symbol == "" {
		return "", fmt.Errorf("price attestation: symbol required")
	}
	if a.Price == nil || a.Price.Sign() <= 0 {
		return "", fmt.Errorf("price attestation: price required")
	}
	if a.Timestamp <= 0 {
		return "", fmt.Errorf("price attestation: timestamp required")
	}
	builder := strings.Builder{}
	builder.WriteString(strings.ToUpper(domain))
	builder.WriteString("|symbol=")
	builder.WriteString(strings.ToUpper(symbol))
	builder.WriteString("|price=")
	builder.WriteString(a.Price.String())
	builder.WriteString("|confidence=")
	builder.WriteString(fmt.Sprintf("%d", a.Confidence))
	builder.WriteString("|ts=")
	builder.WriteString(fmt.Sprintf("%d", a.Timestamp))
	return builder.String(), nil
}

// Hash computes the keccak256 digest of the canonical message.
func (a *PriceAttestation) Hash() ([]byte, error) {
	message, err := a.CanonicalMessage()
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256([]byte(message)), nil
}

// ID returns the hexadecimal representation of the canonical message digest.
func (a *PriceAttestation) ID() (string, error) {
	hash, err := a.Hash()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hash), nil
}

// Sign computes and attaches a recoverable secp256k1 signature over the
// canonical digest.
func (a *PriceAttestation) Sign(key *ecdsa.PrivateKey) error {
	if key == nil {
		return fmt.Errorf("price attestation: signing key required")
	}
	hash, err := a.Hash()
	if err != nil {
		return err
	}
	signature, err := ethcrypto.Sign(hash, key)
	if err != nil {
		return fmt.Errorf("price attestation: sign: %w", err)
	}
	a.Signature = signature
	return nil
}

// RecoverSigner derives the source address that produced the attached
// signature.
func (a *PriceAttestation) RecoverSigner() ([20]byte, error) {
	var addr [20]byte
	if a == nil || len(a.Signature) != 65 {
		return addr, fmt.Errorf("price attestation: signature required")
	}
	hash, err := a.Hash()
	if err != nil {
		return addr, err
	}
	pub, err := ethcrypto.SigToPub(hash, a.Signature)
	if err != nil {
		return addr, fmt.Errorf("price attestation: recover: %w", err)
	}
	copy(addr[:], ethcrypto.PubkeyToAddress(*pub).Bytes())
	return addr, nil
}
