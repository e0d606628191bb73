package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/config"
	"github.com/mmynk/batchsettle/internal/merkle"
)

// inputEntry is one row of the entry list. Amount is in whole units.
type inputEntry struct {
	Account string `json:"account"`
	Asset   string `json:"asset,omitempty"`
	Amount  string `json:"amount"`
}

// Bundle is what build writes: the values CommitBatch needs plus a proof
// per leaf for the claimants.
type Bundle struct {
	Root          common.Hash    `json:"root"`
	Asset         common.Address `json:"asset"`
	DeclaredTotal int64          `json:"declared_total"`
	LeafCount     int            `json:"leaf_count"`
	Entries       []BundleEntry  `json:"entries"`
}

// BundleEntry is one leaf with its proof.
type BundleEntry struct {
	Index   int            `json:"index"`
	Account common.Address `json:"account"`
	Asset   common.Address `json:"asset"`
	Amount  int64          `json:"amount"`
	Leaf    common.Hash    `json:"leaf"`
	Proof   []common.Hash  `json:"proof"`
}

// readEntries parses a JSON array or a CSV file of account,amount[,asset].
// Amounts are scaled to base units by decimals.
func readEntries(r io.Reader, name string, defaultAsset common.Address, decimals int32) ([]merkle.Entry, error) {
	var rows []inputEntry
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		if err := json.NewDecoder(r).Decode(&rows); err != nil {
			return nil, fmt.Errorf("failed to parse entries: %w", err)
		}
	case ".csv":
		records, err := csv.NewReader(r).ReadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to parse entries: %w", err)
		}
		for i, rec := range records {
			if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "account") {
				continue
			}
			if len(rec) < 2 {
				return nil, fmt.Errorf("row %d: want account,amount[,asset]", i+1)
			}
			row := inputEntry{Account: strings.TrimSpace(rec[0]), Amount: strings.TrimSpace(rec[1])}
			if len(rec) > 2 {
				row.Asset = strings.TrimSpace(rec[2])
			}
			rows = append(rows, row)
		}
	default:
		return nil, fmt.Errorf("unsupported entry file %q, want .json or .csv", name)
	}

	entries := make([]merkle.Entry, len(rows))
	for i, row := range rows {
		if !common.IsHexAddress(row.Account) {
			return nil, fmt.Errorf("entry %d: invalid account %q", i, row.Account)
		}
		asset := defaultAsset
		if row.Asset != "" {
			if !common.IsHexAddress(row.Asset) {
				return nil, fmt.Errorf("entry %d: invalid asset %q", i, row.Asset)
			}
			asset = common.HexToAddress(row.Asset)
		}
		if asset == (common.Address{}) {
			return nil, fmt.Errorf("entry %d: no asset", i)
		}
		amount, err := config.ToBaseUnits(row.Amount, decimals)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if amount == 0 {
			return nil, fmt.Errorf("entry %d: amount must be positive", i)
		}
		entries[i] = merkle.Entry{Account: common.HexToAddress(row.Account), Asset: asset, Amount: amount}
	}
	return entries, nil
}

// buildBundle builds the tree over entries. All entries must share one asset,
// since a payout is opened for a single asset.
func buildBundle(entries []merkle.Entry) (*Bundle, error) {
	if len(entries) == 0 {
		return nil, merkle.ErrNoLeaves
	}
	asset := entries[0].Asset
	var total int64
	seen := make(map[merkle.Entry]int, len(entries))
	for i, e := range entries {
		if e.Asset != asset {
			return nil, fmt.Errorf("entry %d: asset %s differs from %s", i, e.Asset.Hex(), asset.Hex())
		}
		// identical entries share a leaf hash, so only one could be claimed
		if j, ok := seen[e]; ok {
			return nil, fmt.Errorf("entry %d duplicates entry %d", i, j)
		}
		seen[e] = i
		if total > total+e.Amount {
			return nil, errors.New("declared total overflows")
		}
		total += e.Amount
	}

	tree, err := merkle.BuildFromEntries(entries)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		Root:          tree.Root(),
		Asset:         asset,
		DeclaredTotal: total,
		LeafCount:     tree.Len(),
		Entries:       make([]BundleEntry, len(entries)),
	}
	for i, e := range entries {
		leaf, err := tree.Leaf(i)
		if err != nil {
			return nil, err
		}
		proof, err := tree.Proof(i)
		if err != nil {
			return nil, err
		}
		b.Entries[i] = BundleEntry{
			Index: i, Account: e.Account, Asset: e.Asset, Amount: e.Amount, Leaf: leaf, Proof: proof,
		}
	}
	return b, nil
}

// verifyBundle checks every proof against the root and the declared total.
func verifyBundle(b *Bundle) error {
	var total int64
	for _, e := range b.Entries {
		leaf := merkle.LeafHash(e.Account, e.Asset, e.Amount)
		if leaf != e.Leaf {
			return fmt.Errorf("entry %d: leaf hash does not match its fields", e.Index)
		}
		if !merkle.Verify(e.Proof, b.Root, leaf) {
			return fmt.Errorf("entry %d: proof does not verify", e.Index)
		}
		total += e.Amount
	}
	if total != b.DeclaredTotal {
		return fmt.Errorf("entries sum to %d, declared %d", total, b.DeclaredTotal)
	}
	return nil
}

func writeBundle(w io.Writer, b *Bundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

func readBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	return &b, nil
}
