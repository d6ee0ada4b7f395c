package oracle

import (
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestPriceAttestationCanonicalMessage(t *testing.T) {
	att, err := NewPriceAttestation(AttestationDomainV1, "song-001", big.NewInt(1000), 95, 1700000000, nil)
	if err != nil {
		t.Fatalf("new attestation: %v", err)
	}
	message, err := att.CanonicalMessage()
	if err != nil {
		t.Fatalf("canonical message: %v", err)
	}
	expected := "MRT_ORACLE_PRICE_V1|symbol=SONG-001|price=1000|confidence=95|ts=1700000000"
	if message != expected {
		t.Fatalf("unexpected canonical message: %q", message)
	}
	id, err := att.ID()
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	if len(id) != 64 {
		t.Fatalf("expected 32-byte hex digest, got %q", id)
	}
}

func TestPriceAttestationValidation(t *testing.T) {
	if _, err := NewPriceAttestation("", "SONG-001", big.NewInt(1), 90, 1, nil); err == nil {
		t.Fatalf("expected error for empty domain")
	}
	if _, err := NewPriceAttestation(AttestationDomainV1, "", big.NewInt(1), 90, 1, nil); err == nil {
		t.Fatalf("expected error for empty symbol")
	}
	if _, err := NewPriceAttestation(AttestationDomainV1, "SONG-001", nil, 90, 1, nil); err == nil {
		t.Fatalf("expected error for nil price")
	}
	if _, err := NewPriceAttestation(AttestationDomainV1, "SONG-001", big.NewInt(0), 90, 1, nil); err == nil {
		t.Fatalf("expected error for zero price")
	}
	if _, err := NewPriceAttestation(AttestationDomainV1, "SONG-001", big.NewInt(1), 49, 1, nil); err == nil {
		t.Fatalf("expected error for low confidence")
	}
	if _, err := NewPriceAttestation(AttestationDomainV1, "SONG-001", big.NewInt(1), 90, 0, nil); err == nil {
		t.Fatalf("expected error for missing timestamp")
	}
}

func TestPriceAttestationSignAndRecover(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	att, err := NewPriceAttestation(AttestationDomainV1, "SONG-001", big.NewInt(2500), 88, 1700000123, nil)
	if err != nil {
		t.Fatalf("new attestation: %v", err)
	}
	if _, err := att.RecoverSigner(); err == nil {
		t.Fatalf("expected recover failure without signature")
	}
	if err := att.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	signer, err := att.RecoverSigner()
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	var want [20]byte
	copy(want[:], ethcrypto.PubkeyToAddress(key.PublicKey).Bytes())
	if signer != want {
		t.Fatalf("recovered %x, want %x", signer, want)
	}

	att.Price = big.NewInt(9999)
	tampered, err := att.RecoverSigner()
	if err == nil && tampered == want {
		t.Fatalf("tampered payload must not recover the original signer")
	}
}
