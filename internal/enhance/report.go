package enhance

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/book-expert/vibe-creator/internal/core"
	"github.com/book-expert/vibe-creator/internal/fsutil"
)

// Report text.
const (
	reportTitle       = "STUDIO REPORT"
	reportActions     = "Applied enhancements:"
	reportUnavailable = "Unable to get audio info for comparison."
	columnOriginal    = "Original"
	columnEnhanced    = "Enhanced"
	bitRateUnknown    = "unknown"
	bitsPerKilobit    = 1000
	rowFile           = "File"
	rowFormat         = "Format"
	rowSize           = "Size"
	rowBitRate        = "Bitrate"
	rowDuration       = "Duration"
	columnGap         = "  "
)

var (
	reportTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#00AAAA"))

	reportHeaderStyle = lipgloss.NewStyle().
				Bold(true)

	reportLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#888888"))

	reportActionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFA500"))
)

// Report compares a file's properties before and after enhancement.
// Enhanced is nil when the output could not be re-probed.
type Report struct {
	Original *core.StreamInfo
	Enhanced *core.StreamInfo
	Actions  []string
}

// Row is one line of the comparison: a label and the before/after values.
type Row struct {
	Label    string
	Original string
	Enhanced string
}

// Rows returns the comparison table, or nil when either side has no info.
func (r *Report) Rows() []Row {
	if r.Original == nil || r.Enhanced == nil {
		return nil
	}

	return []Row{
		{rowFile, filepath.Base(r.Original.Path), filepath.Base(r.Enhanced.Path)},
		{rowFormat, strings.ToUpper(r.Original.Codec), strings.ToUpper(r.Enhanced.Codec)},
		{rowSize, fsutil.FormatFileSize(r.Original.SizeBytes), fsutil.FormatFileSize(r.Enhanced.SizeBytes)},
		{rowBitRate, FormatBitRate(r.Original.BitRate), FormatBitRate(r.Enhanced.BitRate)},
		{rowDuration, formatSeconds(r.Original.DurationSeconds), formatSeconds(r.Enhanced.DurationSeconds)},
	}
}

// String renders the report for a terminal.
func (r *Report) String() string {
	rows := r.Rows()
	if rows == nil {
		return reportUnavailable + "\n"
	}

	labelWidth, originalWidth := 0, len(columnOriginal)
	for _, row := range rows {
		labelWidth = max(labelWidth, len(row.Label))
		originalWidth = max(originalWidth, len(row.Original))
	}

	var sb strings.Builder

	sb.WriteString(reportTitleStyle.Render(reportTitle))
	sb.WriteString("\n\n")
	sb.WriteString(strings.Repeat(" ", labelWidth) + columnGap)
	sb.WriteString(reportHeaderStyle.Render(fmt.Sprintf("%-*s", originalWidth, columnOriginal)))
	sb.WriteString(columnGap)
	sb.WriteString(reportHeaderStyle.Render(columnEnhanced))
	sb.WriteString("\n")

	for _, row := range rows {
		sb.WriteString(reportLabelStyle.Render(fmt.Sprintf("%-*s", labelWidth, row.Label)))
		sb.WriteString(columnGap)
		sb.WriteString(fmt.Sprintf("%-*s", originalWidth, row.Original))
		sb.WriteString(columnGap)
		sb.WriteString(row.Enhanced)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(reportHeaderStyle.Render(reportActions))
	sb.WriteString("\n")

	for _, action := range r.Actions {
		sb.WriteString("  - ")
		sb.WriteString(reportActionStyle.Render(action))
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatBitRate renders a bit rate in kbps, or "unknown" when it was not reported.
func FormatBitRate(bitRate int64) string {
	if bitRate <= 0 {
		return bitRateUnknown
	}

	return fmt.Sprintf("%d kbps", bitRate/bitsPerKilobit)
}

func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.2f sec", seconds)
}
