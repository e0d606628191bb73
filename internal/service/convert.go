package service

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/pkg/api"
)

func toAPIPolicy(p *models.AssetPolicy) *api.AssetPolicy {
	return &api.AssetPolicy{
		Asset:     p.Asset,
		Enabled:   p.Enabled,
		SingleMax: p.SingleMax,
		DailyMax:  p.DailyMax,
		UpdatedAt: p.UpdatedAt,
	}
}

func toAPIBatch(b *models.Batch) *api.Batch {
	return &api.Batch{
		ID:            b.ID,
		Root:          b.Root,
		Asset:         b.Asset,
		DeclaredTotal: b.DeclaredTotal,
		LeafCount:     b.LeafCount,
		WindowEnd:     b.WindowEnd,
		Kind:          string(b.Kind),
		CommittedBy:   b.CommittedBy,
		CommittedAt:   b.CommittedAt,
	}
}

func toAPIPayout(p *models.PayoutView) *api.Payout {
	out := &api.Payout{
		BatchID:       p.BatchID,
		Root:          p.Root,
		Asset:         p.Asset,
		Status:        string(p.Status),
		DeclaredTotal: p.DeclaredTotal,
		ClaimedTotal:  p.ClaimedTotal,
		ReversedTotal: p.ReversedTotal,
		WindowEnd:     p.WindowEnd,
		OpenedAt:      p.OpenedAt,
	}
	if !p.SettledAt.IsZero() {
		out.SettledAt = timePtr(p.SettledAt)
	}
	return out
}

func toAPIClaim(c *models.Claim) *api.Claim {
	return &api.Claim{
		Leaf:      c.Leaf,
		Account:   c.Account,
		Amount:    c.Amount,
		ClaimedBy: c.ClaimedBy,
		ClaimedAt: c.ClaimedAt,
	}
}

func toAPIDispute(d *models.Dispute) *api.Dispute {
	out := &api.Dispute{
		ID:         d.ID,
		Reason:     d.Reason,
		RaisedBy:   d.RaisedBy,
		RaisedAt:   d.RaisedAt,
		Resolution: d.Resolution,
	}
	if d.ResolvedBy != (common.Address{}) {
		by := d.ResolvedBy
		out.ResolvedBy = &by
	}
	return out
}

func toAPIEntry(e *models.LedgerEntry) *api.LedgerEntry {
	return &api.LedgerEntry{
		ID:           e.ID,
		Kind:         string(e.Kind),
		Delta:        e.Delta,
		BalanceAfter: e.BalanceAfter,
		Reference:    e.Reference,
		CreatedBy:    e.CreatedBy,
		CreatedAt:    e.CreatedAt,
	}
}

func toAPIEvent(e *models.Event) *api.Event {
	return &api.Event{
		Seq:       e.Seq,
		ID:        e.ID,
		Type:      string(e.Type),
		BatchID:   e.BatchID,
		Account:   e.Account,
		Asset:     e.Asset,
		Amount:    e.Amount,
		Reason:    e.Reason,
		Reference: e.Reference,
		Actor:     e.Actor,
		CreatedAt: e.CreatedAt,
	}
}

func roleNames(roles []models.Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return names
}

func timePtr(t time.Time) *time.Time {
	return &t
}
