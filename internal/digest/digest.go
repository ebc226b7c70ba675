// Package digest builds the twice-daily market summaries.
package digest

import (
	"context"
	"fmt"
	"strings"

	"cryptopost_bot/internal/model"
	"cryptopost_bot/internal/price"
)

// Digest is one built market summary, ready for synthesis or direct use.
type Digest struct {
	Slot     model.DigestSlot
	Snapshot model.PriceSnapshot
	Summary  string
}

// Builder wraps the price capability and formats slot summaries. It does
// not retry; retry policy belongs to the scheduler.
type Builder struct {
	source    price.Source
	precision int
}

// New creates a Builder with the given change-figure precision.
func New(source price.Source) *Builder {
	return &Builder{source: source, precision: 2}
}

// Build fetches market data and formats the summary for slot.
// Fails with DigestError when the fetch fails or returns unusable figures.
func (b *Builder) Build(ctx context.Context, slot model.DigestSlot) (Digest, error) {
	snap, err := b.source.GetPrice(ctx)
	if err != nil {
		return Digest{}, &model.DigestError{Slot: slot, Err: err}
	}
	if snap.Current <= 0 || snap.Reference <= 0 {
		return Digest{}, &model.DigestError{
			Slot: slot,
			Err:  &model.PriceFetchError{Kind: model.FailMalformed, Err: fmt.Errorf("non-positive price %v/%v", snap.Current, snap.Reference)},
		}
	}

	change := (snap.Current - snap.Reference) / snap.Reference * 100

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s digest\n", snap.Symbol, slotLabel(slot))
	fmt.Fprintf(&sb, "$%.4f (%+.*f%%)", snap.Current, b.precision, change)
	if snap.Volume24h > 0 {
		fmt.Fprintf(&sb, "\n24h volume $%.0f", snap.Volume24h)
	}

	return Digest{Slot: slot, Snapshot: snap, Summary: sb.String()}, nil
}

func slotLabel(slot model.DigestSlot) string {
	if slot == model.SlotEvening {
		return "evening"
	}
	return "morning"
}
