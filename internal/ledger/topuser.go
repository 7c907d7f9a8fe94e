package ledger

// Candidate is a queued account considered for top of queue
type Candidate struct {
	AccountId      int64
	QueuePosition  int64
	QueueSlotCount int64
	Progress       SlotProgress
}

// FrontierPosition is the absolute queue position of the candidate's lowest incomplete slot. ok is
// false when every slot is full.
func FrontierPosition(c Candidate) (position int64, ok bool) {
	slot := FrontierSlot(c.Progress, c.QueueSlotCount)
	if slot == 0 {
		return 0, false
	}
	return c.QueuePosition + int64(slot-1), true
}

// SelectTop picks the candidate with the smallest frontier position, ties broken by the smallest
// account id. It returns 0 when there is no eligible candidate.
func SelectTop(candidates []Candidate) int64 {
	var (
		winner   int64
		best     int64
		haveBest bool
	)
	for _, c := range candidates {
		if c.QueuePosition <= 0 || c.QueueSlotCount <= 0 {
			continue
		}
		pos, ok := FrontierPosition(c)
		if !ok {
			continue
		}
		if !haveBest || pos < best || (pos == best && c.AccountId < winner) {
			winner, best, haveBest = c.AccountId, pos, true
		}
	}
	return winner
}
