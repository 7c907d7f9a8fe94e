package common

import (
	"testing"

	"bubble-ledger-go/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	assert.Equal(t, "0.0%", Percent(0, 0))
	assert.Equal(t, "12.5%", Percent(50, 400))
	assert.Equal(t, "33.3%", Percent(1, 3))
	assert.Equal(t, "100.0%", Percent(400, 400))
}

func TestSlotSummary(t *testing.T) {
	t.Run("no slots", func(t *testing.T) {
		assert.Equal(t, "no open slots", SlotSummary(models.Account{}))
	})

	t.Run("partial progress", func(t *testing.T) {
		summary := SlotSummary(models.Account{QueueSlotCount: 2, SlotProgress: `{"1":100}`})
		assert.Equal(t, "#1 100/400 (25.0%), #2 0/400 (0.0%)", summary)
	})

	t.Run("corrupted progress is flagged", func(t *testing.T) {
		summary := SlotSummary(models.Account{QueueSlotCount: 1, SlotProgress: `{"1":"x"}`})
		assert.Contains(t, summary, "#1 0/400 (0.0%)")
		assert.Contains(t, summary, "[recovered:")
	})
}

func TestGiveawaySummary(t *testing.T) {
	summary := GiveawaySummary(25, models.GiveawayResult{
		RecipientCount:     3,
		AmountPerRecipient: 8,
		AmountMoved:        24,
		Retained:           1,
	})
	assert.Equal(t, "3 recipients x 8 bubbles = 24 moved (96.0% of donation), 1 retained", summary)
}
