package common

import (
	"fmt"
	"strings"

	"bubble-ledger-go/internal/ledger"
	"bubble-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

const (
	// Default separator widths
	DefaultWidth = 80
	WideWidth    = 100
)

var hundred = decimal.NewFromInt(100)

// PrintSeparator prints a separator line with the specified character and width
func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a formatted header with title and separators
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

// PrintFooter prints a formatted footer with message and separators
func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// BoxPrefix returns the appropriate box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// Percent renders part/whole as a percentage with one decimal place. A zero whole renders as 0.0%.
func Percent(part, whole int64) string {
	if whole == 0 {
		return "0.0%"
	}
	return decimal.NewFromInt(part).
		Div(decimal.NewFromInt(whole)).
		Mul(hundred).
		StringFixed(1) + "%"
}

// SlotSummary renders each open slot of the account as "#n progress/capacity (pct)".
func SlotSummary(account models.Account) string {
	if account.QueueSlotCount <= 0 {
		return "no open slots"
	}
	decoded := ledger.DecodeSlotProgress(account.SlotProgress, int(account.QueueSlotCount))
	parts := make([]string, 0, account.QueueSlotCount)
	for slot := 1; slot <= int(account.QueueSlotCount); slot++ {
		progress := decoded.Progress.Get(slot)
		parts = append(parts, fmt.Sprintf("#%d %d/%d (%s)",
			slot, progress, models.SlotCapacity, Percent(progress, models.SlotCapacity)))
	}
	summary := strings.Join(parts, ", ")
	if decoded.Recovered {
		summary += " [recovered: " + decoded.Reason + "]"
	}
	return summary
}

// GiveawaySummary describes how a distribution split the donation.
func GiveawaySummary(donated int64, result models.GiveawayResult) string {
	return fmt.Sprintf("%d recipients x %d bubbles = %d moved (%s of donation), %d retained",
		result.RecipientCount,
		result.AmountPerRecipient,
		result.AmountMoved,
		Percent(result.AmountMoved, donated),
		result.Retained)
}
