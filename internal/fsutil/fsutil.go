// Package fsutil provides naming and formatting helpers for generated audio files.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Naming constants.
const (
	defaultTrackName      = "track"
	enhancedSuffix        = "_ENHANCED"
	uniqueIDLength        = 8
	defaultDirPermissions = 0o750
	extWAV                = ".wav"
	extMP3                = ".mp3"
	extFLAC               = ".flac"
	extOGG                = ".ogg"
)

// Data size constants.
const (
	kilobyte = 1024
	megabyte = kilobyte * 1024
)

// Time and size formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
)

// SafeName keeps letters, digits, '_', '-' and spaces, drops everything else
// and trims trailing spaces. An empty result becomes "track".
func SafeName(name string) string {
	var builder strings.Builder

	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == ' ' {
			builder.WriteRune(r)
		}
	}

	safe := strings.TrimRight(builder.String(), " ")
	if safe == "" {
		return defaultTrackName
	}

	return safe
}

// UniqueName returns "<safe name>_<short id>.wav" so concurrent requests for the
// same track name never write the same file.
func UniqueName(name string) string {
	return fmt.Sprintf("%s_%s%s", SafeName(name), ShortID(), extWAV)
}

// ShortID returns the first characters of a random UUID.
func ShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:uniqueIDLength]
}

// EnhancedPath returns the sibling path an enhanced copy of input is written to.
// The source file is never the target.
func EnhancedPath(input, ext string) string {
	return SuffixedPath(input, enhancedSuffix, ext)
}

// SuffixedPath returns "<dir>/<stem><suffix><ext>" for input.
func SuffixedPath(input, suffix, ext string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))

	return filepath.Join(filepath.Dir(input), stem+suffix+ext)
}

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, defaultDirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// IsAudioFile reports whether filename has an extension the pipeline can read.
func IsAudioFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extWAV, extMP3, extFLAC, extOGG:
		return true
	default:
		return false
	}
}

// FormatDuration formats seconds as "45.2s", "5m 30.5s" or "1h 15m".
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remainingSeconds := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, remainingSeconds)
	}

	hours := int(seconds / secondsInHour)
	remainingMinutes := int((seconds - float64(hours*secondsInHour)) / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}

// FormatFileSize formats a byte count in KB below one megabyte and in MB above.
func FormatFileSize(bytes int64) string {
	if bytes < megabyte {
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	}

	return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
}
