package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAmount(t *testing.T) {
	for _, amount := range []int64{1, 200, 400} {
		assert.NoError(t, ValidateAmount(amount))
	}
	for _, amount := range []int64{0, -1, 401} {
		assert.ErrorIs(t, ValidateAmount(amount), ErrInvalidAmount)
	}
}

func TestApplyToSlot_CompletionArithmetic(t *testing.T) {
	state := SlotState{QueuePosition: 3, QueueSlotCount: 2, Progress: SlotProgress{}}

	first, err := ApplyToSlot(state, 1, 150)
	require.NoError(t, err)
	assert.False(t, first.Completed)
	assert.Equal(t, int64(150), first.NewProgress)
	assert.Equal(t, SlotProgress{1: 150}, first.State.Progress)
	assert.Zero(t, first.BubblesEarned)

	second, err := ApplyToSlot(first.State, 1, 300)
	require.NoError(t, err)
	assert.True(t, second.Completed)
	assert.Equal(t, int64(450), second.NewProgress)
	assert.Equal(t, int64(50), second.StoredProgress)
	assert.Equal(t, SlotProgress{1: 50}, second.State.Progress)
	assert.Equal(t, int64(400), second.BubblesEarned)
	assert.Equal(t, int64(1), second.State.QueueSlotCount)
	assert.Equal(t, int64(3), second.State.QueuePosition)
	assert.False(t, second.QueueAdvanced)

	// the input state is left untouched
	assert.Equal(t, SlotProgress{1: 150}, first.State.Progress)
}

func TestApplyToSlot_ExactCompletionDeletesKey(t *testing.T) {
	state := SlotState{QueuePosition: 1, QueueSlotCount: 3, Progress: SlotProgress{1: 100, 2: 30}}
	out, err := ApplyToSlot(state, 1, 300)
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, SlotProgress{2: 30}, out.State.Progress)
	assert.Equal(t, int64(2), out.State.QueueSlotCount)
}

func TestApplyToSlot_QueueAdvance(t *testing.T) {
	state := SlotState{QueuePosition: 4, QueueSlotCount: 1, Progress: SlotProgress{1: 390}}
	out, err := ApplyToSlot(state, 1, 10)
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.True(t, out.QueueAdvanced)
	assert.Equal(t, SlotState{QueuePosition: 0, QueueSlotCount: 0, Progress: SlotProgress{}}, out.State)
	assert.Equal(t, int64(400), out.BubblesEarned)
}

func TestApplyToSlot_QueueAdvancePaysOverflow(t *testing.T) {
	state := SlotState{QueuePosition: 4, QueueSlotCount: 1, Progress: SlotProgress{1: 390}}
	out, err := ApplyToSlot(state, 1, 40)
	require.NoError(t, err)
	assert.True(t, out.QueueAdvanced)
	assert.Equal(t, int64(430), out.BubblesEarned)
	assert.Empty(t, out.State.Progress)
	assert.Zero(t, out.StoredProgress)
}

func TestApplyToSlot_OrphanedProgressPaidOut(t *testing.T) {
	// completing slot 1 of 3 leaves slot 3 past the remaining count
	state := SlotState{QueuePosition: 1, QueueSlotCount: 3, Progress: SlotProgress{1: 350, 2: 20, 3: 70}}
	out, err := ApplyToSlot(state, 1, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.State.QueueSlotCount)
	assert.Equal(t, SlotProgress{1: 10, 2: 20}, out.State.Progress)
	assert.Equal(t, int64(470), out.BubblesEarned)

	// conservation: escrow before + amount == escrow after + earned
	assert.Equal(t, state.Progress.Total()+60, out.State.Progress.Total()+out.BubblesEarned)
}

func TestApplyToSlot_FrontierSelection(t *testing.T) {
	state := SlotState{QueuePosition: 2, QueueSlotCount: 2, Progress: SlotProgress{1: 400, 2: 5}}
	out, err := ApplyToSlot(state, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, out.TargetSlot)
	assert.Equal(t, int64(10), out.StoredProgress)
}

func TestApplyToSlot_Rejections(t *testing.T) {
	queued := SlotState{QueuePosition: 1, QueueSlotCount: 2, Progress: SlotProgress{}}

	_, err := ApplyToSlot(queued, 3, 10)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = ApplyToSlot(queued, -1, 10)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = ApplyToSlot(SlotState{}, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = ApplyToSlot(queued, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ApplyToSlot(queued, 1, 401)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestApplyToSlot_SlotBound(t *testing.T) {
	state := SlotState{QueuePosition: 1, QueueSlotCount: 5, Progress: SlotProgress{}}
	amounts := []int64{399, 1, 400, 250, 250, 37, 163, 400, 12}
	for _, amount := range amounts {
		if state.QueueSlotCount == 0 {
			break
		}
		out, err := ApplyToSlot(state, 1, amount)
		require.NoError(t, err)
		for slot, v := range out.State.Progress {
			assert.GreaterOrEqual(t, v, int64(0), "slot %d", slot)
			assert.Less(t, v, int64(400), "slot %d", slot)
		}
		state = out.State
	}
}

func TestShouldAssignInitialPosition(t *testing.T) {
	assert.True(t, ShouldAssignInitialPosition(0, 0, false))
	assert.False(t, ShouldAssignInitialPosition(0, 0, true))
	assert.False(t, ShouldAssignInitialPosition(10, 0, false))
	assert.False(t, ShouldAssignInitialPosition(0, 3, false))
}
