// Package tui renders CLI output for queue inspection and drain progress.
// Simple, streaming, no complex TUI - just clean prompts and output.
package tui

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/pulseflow/pulseflow/pkg/queue"
	"github.com/pulseflow/pulseflow/pkg/resilience"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// PrintHeader prints the application banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  PULSEFLOW") + mutedStyle.Render(" v"+version))
	fmt.Println(mutedStyle.Render("  Durable client-side analytics pipeline"))
	fmt.Println()
}

// PrintQueueStats renders a queue snapshot.
func PrintQueueStats(stats queue.Stats) {
	fmt.Println()
	fmt.Println(accentStyle.Render("▸ QUEUE"))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Size:"), titleStyle.Render(fmt.Sprintf("%d", stats.Size)))

	if stats.OldestEnqueuedAt != nil {
		fmt.Printf("  %s %s\n", mutedStyle.Render("Oldest:"),
			titleStyle.Render(formatAge(time.Since(*stats.OldestEnqueuedAt))))
	}
	if stats.NewestEnqueuedAt != nil {
		fmt.Printf("  %s %s\n", mutedStyle.Render("Newest:"),
			titleStyle.Render(formatAge(time.Since(*stats.NewestEnqueuedAt))))
	}

	if len(stats.RetryDistribution) > 0 {
		fmt.Println()
		fmt.Println(mutedStyle.Render("  Retries:"))
		counts := make([]int, 0, len(stats.RetryDistribution))
		for retries := range stats.RetryDistribution {
			counts = append(counts, retries)
		}
		sort.Ints(counts)
		for _, retries := range counts {
			fmt.Printf("    %s %d\n",
				mutedStyle.Render(fmt.Sprintf("%dx:", retries)),
				stats.RetryDistribution[retries])
		}
	}
	fmt.Println()
}

// PrintBreakerState renders the circuit breaker snapshot.
func PrintBreakerState(snap resilience.Snapshot) {
	fmt.Println(accentStyle.Render("▸ CIRCUIT"))

	state := snap.State.String()
	if snap.State == resilience.CircuitClosed {
		fmt.Printf("  %s %s\n", mutedStyle.Render("State:"), successStyle.Render(state))
	} else {
		fmt.Printf("  %s %s\n", mutedStyle.Render("State:"), accentStyle.Render(state))
	}
	fmt.Printf("  %s %d\n", mutedStyle.Render("Failures:"), snap.FailureCount)
	fmt.Println()
}

// PrintDrainReport prints results after a drain.
func PrintDrainReport(delivered, remaining int, duration time.Duration) {
	fmt.Println()
	if remaining == 0 {
		fmt.Println(successStyle.Render("  ✓ QUEUE DRAINED"))
	} else {
		fmt.Println(accentStyle.Render("  ✗ DRAIN INCOMPLETE"))
	}
	fmt.Println()
	fmt.Printf("  %s %d\n", mutedStyle.Render("Delivered:"), delivered)
	fmt.Printf("  %s %d\n", mutedStyle.Render("Remaining:"), remaining)
	fmt.Printf("  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(duration)))
	fmt.Println()
}

// PrintError renders an error line.
func PrintError(err error) {
	fmt.Println(accentStyle.Render("  ✗ " + err.Error()))
}

// PrintSuccess renders a success line.
func PrintSuccess(msg string) {
	fmt.Println(successStyle.Render("  ✓ " + msg))
}

// ShowProgress creates a progress bar for a drain.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// Spinner shows a simple loading indicator.
func Spinner(message string, done chan bool) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	i := 0
	for {
		select {
		case <-done:
			fmt.Printf("\r%s %s\n", successStyle.Render("✓"), message)
			return
		default:
			fmt.Printf("\r%s %s", accentStyle.Render(frames[i]), message)
			i = (i + 1) % len(frames)
			time.Sleep(80 * time.Millisecond)
		}
	}
}

// ClearLine clears the current line.
func ClearLine() {
	fmt.Print("\r\033[K")
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%dm ago", int(d.Hours()), int(d.Minutes())%60)
	}
}
