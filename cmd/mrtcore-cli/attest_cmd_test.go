package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"mrtcore/crypto"
)

func writeTestKeystore(t *testing.T) (string, *crypto.PrivateKey) {
	t.Helper()
	t.Setenv(keystorePassEnv, "test-pass")
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "signer.keystore.json")
	if err := crypto.SaveToKeystore(path, key, "test-pass"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	return path, key
}

func TestRunAttestCommandSignsAttestation(t *testing.T) {
	path, key := writeTestKeystore(t)

	var stdout, stderr bytes.Buffer
	code := runAttestCommand([]string{
		"-key", path,
		"-symbol", "SONG-TSW-001",
		"-price", "1250000",
		"-ts", "1700000000",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr.String())
	}

	out := stdout.String()
	wantMessage := "MRT_ORACLE_PRICE_V1|symbol=SONG-TSW-001|price=1250000|confidence=95|ts=1700000000"
	if !strings.Contains(out, wantMessage) {
		t.Fatalf("expected canonical message %q in output, got %q", wantMessage, out)
	}
	if !strings.Contains(out, "Signature: 0x") {
		t.Fatalf("expected signature in output, got %q", out)
	}
	wantSource := key.PubKey().Address().String()
	if !strings.Contains(out, "Source:    "+wantSource) {
		t.Fatalf("expected recovered source %q in output, got %q", wantSource, out)
	}
}

func TestRunAttestCommandHonoursConfidenceFlag(t *testing.T) {
	path, _ := writeTestKeystore(t)

	var stdout, stderr bytes.Buffer
	code := runAttestCommand([]string{
		"-key", path,
		"-symbol", "SONG-TSW-001",
		"-price", "990000",
		"-confidence", "72",
		"-ts", "1700000500",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "|confidence=72|") {
		t.Fatalf("expected confidence in canonical message, got %q", stdout.String())
	}
}

func TestRunAttestCommandValidation(t *testing.T) {
	path, _ := writeTestKeystore(t)

	cases := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "missing key",
			args: []string{"-symbol", "SONG", "-price", "100"},
			want: "-key is required",
		},
		{
			name: "missing symbol",
			args: []string{"-key", path, "-price", "100"},
			want: "-symbol is required",
		},
		{
			name: "non-numeric price",
			args: []string{"-key", path, "-symbol", "SONG", "-price", "12.5"},
			want: "-price must be a positive base-10 integer",
		},
		{
			name: "zero price",
			args: []string{"-key", path, "-symbol", "SONG", "-price", "0"},
			want: "-price must be a positive base-10 integer",
		},
		{
			name: "confidence out of range",
			args: []string{"-key", path, "-symbol", "SONG", "-price", "100", "-confidence", "30"},
			want: "confidence",
		},
		{
			name: "unexpected positional argument",
			args: []string{"-key", path, "-symbol", "SONG", "-price", "100", "extra"},
			want: "unexpected argument",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := runAttestCommand(tc.args, &stdout, &stderr)
			if code != 1 {
				t.Fatalf("expected exit 1, got %d", code)
			}
			if !strings.Contains(stderr.String(), tc.want) {
				t.Fatalf("expected stderr to mention %q, got %q", tc.want, stderr.String())
			}
		})
	}
}

func TestRunAttestCommandRejectsWrongPassphrase(t *testing.T) {
	path, _ := writeTestKeystore(t)
	t.Setenv(keystorePassEnv, "wrong-pass")

	var stdout, stderr bytes.Buffer
	code := runAttestCommand([]string{
		"-key", path,
		"-symbol", "SONG",
		"-price", "100",
	}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "load keystore") {
		t.Fatalf("expected keystore error, got %q", stderr.String())
	}
}
