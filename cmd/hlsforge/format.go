package main

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var countPrinter = message.NewPrinter(language.English)

// formatCount renders a count with thousands separators so large queues
// stay readable in terminal summaries.
func formatCount(n int64) string {
	return countPrinter.Sprintf("%d", n)
}
