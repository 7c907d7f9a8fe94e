package ledger

import (
	"sort"

	"bubble-ledger-go/internal/models"
)

// QueueEntry is the queue-relevant view of one queued account
type QueueEntry struct {
	AccountId      int64
	QueuePosition  int64
	QueueSlotCount int64
}

// PlanRebalance compacts queued entries into a dense ordering starting at 1. Entries are ordered by
// current position, ties by account id, and each account occupies a run as wide as its slot count.
// Only entries whose position changes are returned; next is the first free position afterwards.
func PlanRebalance(entries []QueueEntry) (changes []models.PositionChange, next int64) {
	queued := make([]QueueEntry, 0, len(entries))
	for _, e := range entries {
		if e.QueuePosition > 0 {
			queued = append(queued, e)
		}
	}
	sort.SliceStable(queued, func(i, j int) bool {
		if queued[i].QueuePosition != queued[j].QueuePosition {
			return queued[i].QueuePosition < queued[j].QueuePosition
		}
		return queued[i].AccountId < queued[j].AccountId
	})

	cursor := int64(1)
	for _, e := range queued {
		if e.QueuePosition != cursor {
			changes = append(changes, models.PositionChange{
				AccountId:   e.AccountId,
				OldPosition: e.QueuePosition,
				NewPosition: cursor,
			})
		}
		if e.QueueSlotCount > 0 {
			cursor += e.QueueSlotCount
		}
	}
	return changes, cursor
}

// AppendPosition returns the position for an account joining the queue with width slots, and the
// new tracker watermark.
func AppendPosition(watermark, width int64) (position, newWatermark int64) {
	if width < 1 {
		width = 1
	}
	position = watermark + 1
	return position, watermark + width
}
