// Package miscutils holds small formatting helpers for terminal output.
package miscutils

import (
	"fmt"
	"time"
)

// FormatDuration renders d with two decimals in the largest unit below it,
// e.g. "850ns", "12.50μs", "3.25ms" or "1.50s". Negative durations keep their sign.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d < 0 {
		return "-" + FormatDuration(-d)
	}

	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fμs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// CeilSeconds returns the number of whole seconds needed to cover d.
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
