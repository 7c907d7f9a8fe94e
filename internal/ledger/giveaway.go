package ledger

import "fmt"

// GiveawayShare is the split of one donation across eligible recipients
type GiveawayShare struct {
	Distributable int64
	PerRecipient  int64
	Moved         int64
	Retained      int64
}

// ComputeGiveawayShare caps the distributable amount at eligible*amountPerAccount and rounds each
// recipient's share down. Whatever the rounding leaves behind, plus any part of the donation above
// the cap, is retained by the pool.
func ComputeGiveawayShare(donated, amountPerAccount int64, eligible int) (GiveawayShare, error) {
	if donated <= 0 {
		return GiveawayShare{}, fmt.Errorf("%w: donation must be positive, got %d", ErrInvalidAmount, donated)
	}
	if amountPerAccount <= 0 {
		return GiveawayShare{}, fmt.Errorf("%w: amount per account must be positive, got %d", ErrInvalidAmount, amountPerAccount)
	}
	if eligible <= 0 {
		return GiveawayShare{}, ErrNoEligibleRecipients
	}

	count := int64(eligible)
	distributable := min(count*amountPerAccount, donated)
	per := distributable / count
	if per == 0 {
		return GiveawayShare{}, fmt.Errorf("%w: donation of %d cannot give %d recipients one bubble each", ErrInvalidAmount, donated, eligible)
	}
	moved := per * count
	return GiveawayShare{
		Distributable: distributable,
		PerRecipient:  per,
		Moved:         moved,
		Retained:      donated - moved,
	}, nil
}
