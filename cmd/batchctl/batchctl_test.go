package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/auth"
	"github.com/mmynk/batchsettle/internal/merkle"
)

const usdcHex = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"

const entriesCSV = `account,amount
0x1000000000000000000000000000000000000001,50
0x2000000000000000000000000000000000000002,30
0x3000000000000000000000000000000000000003,20
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestBuildThenVerify(t *testing.T) {
	in := writeFile(t, "entries.csv", entriesCSV)
	out := filepath.Join(t.TempDir(), "batch.json")

	if err := runBuild([]string{"-in", in, "-asset", usdcHex, "-out", out}, &bytes.Buffer{}); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("failed to open bundle: %v", err)
	}
	defer f.Close()
	bundle, err := readBundle(f)
	if err != nil {
		t.Fatalf("readBundle failed: %v", err)
	}

	if bundle.DeclaredTotal != 100 || bundle.LeafCount != 3 {
		t.Errorf("bundle totals = (%d, %d), want (100, 3)", bundle.DeclaredTotal, bundle.LeafCount)
	}
	l0 := merkle.LeafHash(common.HexToAddress("0x1000000000000000000000000000000000000001"), common.HexToAddress(usdcHex), 50)
	l1 := merkle.LeafHash(common.HexToAddress("0x2000000000000000000000000000000000000002"), common.HexToAddress(usdcHex), 30)
	l2 := merkle.LeafHash(common.HexToAddress("0x3000000000000000000000000000000000000003"), common.HexToAddress(usdcHex), 20)
	want := merkle.HashPair(merkle.HashPair(l0, l1), merkle.HashPair(l2, l2))
	if bundle.Root != want {
		t.Errorf("root = %s, want %s", bundle.Root.Hex(), want.Hex())
	}

	var stdout bytes.Buffer
	if err := runVerify([]string{"-in", out}, &stdout); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "ok: 3 leaves") {
		t.Errorf("unexpected verify output %q", stdout.String())
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	entries, err := readEntries(strings.NewReader(entriesCSV), "entries.csv", common.HexToAddress(usdcHex), 0)
	if err != nil {
		t.Fatalf("readEntries failed: %v", err)
	}
	bundle, err := buildBundle(entries)
	if err != nil {
		t.Fatalf("buildBundle failed: %v", err)
	}
	if err := verifyBundle(bundle); err != nil {
		t.Fatalf("fresh bundle should verify: %v", err)
	}

	tampered := *bundle
	tampered.Entries = append([]BundleEntry(nil), bundle.Entries...)
	tampered.Entries[1].Amount++
	if err := verifyBundle(&tampered); err == nil {
		t.Error("expected error for altered amount")
	}

	tampered.Entries[1] = bundle.Entries[1]
	tampered.DeclaredTotal = 99
	if err := verifyBundle(&tampered); err == nil {
		t.Error("expected error for wrong declared total")
	}
}

func TestReadEntries(t *testing.T) {
	t.Run("json with decimals", func(t *testing.T) {
		body := `[{"account":"0x1000000000000000000000000000000000000001","amount":"1.5"},
		          {"account":"0x2000000000000000000000000000000000000002","asset":"` + usdcHex + `","amount":"0.25"}]`
		entries, err := readEntries(strings.NewReader(body), "e.json", common.HexToAddress(usdcHex), 6)
		if err != nil {
			t.Fatalf("readEntries failed: %v", err)
		}
		if entries[0].Amount != 1_500_000 || entries[1].Amount != 250_000 {
			t.Errorf("amounts = (%d, %d), want (1500000, 250000)", entries[0].Amount, entries[1].Amount)
		}
	})

	bad := []struct {
		name, file, body string
	}{
		{name: "unknown extension", file: "e.txt", body: ""},
		{name: "bad account", file: "e.csv", body: "nobody,1\n"},
		{name: "zero amount", file: "e.csv", body: "0x1000000000000000000000000000000000000001,0\n"},
		{name: "too precise", file: "e.csv", body: "0x1000000000000000000000000000000000000001,0.5\n"},
		{name: "missing amount", file: "e.csv", body: "0x1000000000000000000000000000000000000001\n"},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readEntries(strings.NewReader(tt.body), tt.file, common.HexToAddress(usdcHex), 0); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("no asset", func(t *testing.T) {
		_, err := readEntries(strings.NewReader("0x1000000000000000000000000000000000000001,1\n"), "e.csv", common.Address{}, 0)
		if err == nil {
			t.Error("expected error without any asset")
		}
	})
}

func TestBuildBundleRejects(t *testing.T) {
	alice := common.HexToAddress("0x1000000000000000000000000000000000000001")
	usdc := common.HexToAddress(usdcHex)
	dai := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")

	if _, err := buildBundle(nil); err == nil {
		t.Error("expected error for empty batch")
	}
	if _, err := buildBundle([]merkle.Entry{{Account: alice, Asset: usdc, Amount: 1}, {Account: alice, Asset: dai, Amount: 1}}); err == nil {
		t.Error("expected error for mixed assets")
	}
	if _, err := buildBundle([]merkle.Entry{{Account: alice, Asset: usdc, Amount: 1}, {Account: alice, Asset: usdc, Amount: 1}}); err == nil {
		t.Error("expected error for duplicate entries")
	}
}

func TestToken(t *testing.T) {
	secret := "test-secret-key-at-least-32-bytes!"
	account := "0x1000000000000000000000000000000000000001"

	var stdout bytes.Buffer
	if err := runToken([]string{"-account", account, "-secret", secret, "-ttl", "5m"}, &stdout); err != nil {
		t.Fatalf("token failed: %v", err)
	}

	claims, err := auth.NewJWTManager(secret, 0).Validate(strings.TrimSpace(stdout.String()))
	if err != nil {
		t.Fatalf("minted token does not validate: %v", err)
	}
	if claims.Caller() != common.HexToAddress(account) {
		t.Errorf("caller = %s, want %s", claims.Caller().Hex(), account)
	}

	if err := runToken([]string{"-account", "nope", "-secret", secret}, &stdout); err == nil {
		t.Error("expected error for invalid account")
	}
	if err := runToken([]string{"-account", account, "-secret", "short"}, &stdout); err == nil {
		t.Error("expected error for short secret")
	}
}
