package ledger

import (
	"fmt"

	"bubble-ledger-go/internal/models"
)

// SlotState is the queue-relevant part of a target account
type SlotState struct {
	QueuePosition  int64
	QueueSlotCount int64
	Progress       SlotProgress
}

// SlotOutcome is the result of applying one contribution to a slot
type SlotOutcome struct {
	State          SlotState
	TargetSlot     int
	NewProgress    int64
	StoredProgress int64
	Completed      bool
	BubblesEarned  int64
	QueueAdvanced  bool
}

// ValidateAmount checks a single contribution amount
func ValidateAmount(amount int64) error {
	if amount < 1 || amount > models.SlotCapacity {
		return fmt.Errorf("%w: %d must be between 1 and %d", ErrInvalidAmount, amount, models.SlotCapacity)
	}
	return nil
}

// FrontierSlot returns the lowest slot index whose progress is below capacity, or 0 when the
// account has no incomplete slot.
func FrontierSlot(progress SlotProgress, slotCount int64) int {
	for slot := 1; int64(slot) <= slotCount; slot++ {
		if progress.Get(slot) < models.SlotCapacity {
			return slot
		}
	}
	return 0
}

// ApplyToSlot adds amount to targetSlot of state. A targetSlot of 0 selects the frontier slot.
//
// When the slot reaches capacity the target earns SlotCapacity, the overflow stays in the slot and
// the slot count drops by one. Progress left on slot indexes past the remaining count is no longer
// addressable, so it is paid out with BubblesEarned instead of being dropped.
func ApplyToSlot(state SlotState, targetSlot int, amount int64) (SlotOutcome, error) {
	if err := ValidateAmount(amount); err != nil {
		return SlotOutcome{}, err
	}
	if state.QueueSlotCount <= 0 {
		return SlotOutcome{}, fmt.Errorf("%w: target holds no open slots", ErrInvalidSlot)
	}
	if targetSlot == 0 {
		targetSlot = FrontierSlot(state.Progress, state.QueueSlotCount)
		if targetSlot == 0 {
			return SlotOutcome{}, fmt.Errorf("%w: target has no incomplete slot", ErrInvalidSlot)
		}
	}
	if targetSlot < 1 || int64(targetSlot) > state.QueueSlotCount {
		return SlotOutcome{}, fmt.Errorf("%w: slot %d outside 1..%d", ErrInvalidSlot, targetSlot, state.QueueSlotCount)
	}

	next := SlotState{
		QueuePosition:  state.QueuePosition,
		QueueSlotCount: state.QueueSlotCount,
		Progress:       state.Progress.Clone(),
	}
	newProgress := next.Progress.Get(targetSlot) + amount
	outcome := SlotOutcome{TargetSlot: targetSlot, NewProgress: newProgress}

	if newProgress < models.SlotCapacity {
		next.Progress[targetSlot] = newProgress
		outcome.StoredProgress = newProgress
		outcome.State = next
		return outcome, nil
	}

	overflow := newProgress - models.SlotCapacity
	if overflow == 0 {
		delete(next.Progress, targetSlot)
	} else {
		next.Progress[targetSlot] = overflow
	}
	outcome.Completed = true
	outcome.BubblesEarned = models.SlotCapacity

	next.QueueSlotCount--
	for _, slot := range next.Progress.Slots() {
		if int64(slot) > next.QueueSlotCount {
			outcome.BubblesEarned += next.Progress[slot]
			delete(next.Progress, slot)
		}
	}
	if next.QueueSlotCount <= 0 {
		next = AdvanceOnSlotCompletion(next)
		outcome.QueueAdvanced = true
	}
	outcome.StoredProgress = next.Progress.Get(targetSlot)

	outcome.State = next
	return outcome, nil
}

// AdvanceOnSlotCompletion releases the queue position of an account whose last slot completed.
func AdvanceOnSlotCompletion(state SlotState) SlotState {
	if state.QueueSlotCount > 0 {
		return state
	}
	return SlotState{QueuePosition: 0, QueueSlotCount: 0, Progress: SlotProgress{}}
}

// ShouldAssignInitialPosition reports whether an account receiving its first bubbles takes queue
// position 1. It must be evaluated before the balance increment.
func ShouldAssignInitialPosition(balance, queuePosition int64, positionOneTaken bool) bool {
	return balance == 0 && queuePosition == 0 && !positionOneTaken
}
