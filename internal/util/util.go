package util

import (
	"os"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Constants
var (
	// File extensions accepted as page images
	ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

	// multiSpace collapses runs of whitespace left over after sanitizing
	multiSpace = regexp.MustCompile(`\s{2,}`)
)

// Logger interface for handling logs
type Logger interface {
	Info(msg string)
	Warning(msg string)
	Error(msg string)
}

// SimpleLogger is a basic logger that outputs to stdout via a log function
type SimpleLogger struct {
	RunID   string
	LogFunc func(level, message string)
}

// NewSimpleLogger creates a new simple logger
func NewSimpleLogger(runID string, logFunc func(level, message string)) *SimpleLogger {
	return &SimpleLogger{
		RunID:   runID,
		LogFunc: logFunc,
	}
}

// Info logs an informational message
func (l *SimpleLogger) Info(msg string) {
	if l.LogFunc != nil {
		l.LogFunc("INFO", msg)
	}
}

// Warning logs a warning message
func (l *SimpleLogger) Warning(msg string) {
	if l.LogFunc != nil {
		l.LogFunc("WARNING", msg)
	}
}

// Error logs an error message
func (l *SimpleLogger) Error(msg string) {
	if l.LogFunc != nil {
		l.LogFunc("ERROR", msg)
	}
}

// NoopLogger is a logger that does nothing
type NoopLogger struct{}

func (l *NoopLogger) Info(msg string)    {}
func (l *NoopLogger) Warning(msg string) {}
func (l *NoopLogger) Error(msg string)   {}

// IsImageFile checks if a filename has an image extension
func IsImageFile(filename string) bool {
	lowerName := strings.ToLower(filename)
	for _, ext := range ImageExtensions {
		if strings.HasSuffix(lowerName, ext) {
			return true
		}
	}
	return false
}

// SanitizeSeriesName makes a series title safe to use as a directory name.
// Accented characters are decomposed and stripped of combining marks so
// staging paths stay ASCII-friendly, then filesystem-reserved characters
// are replaced with underscores.
func SanitizeSeriesName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, name)
	if err != nil {
		result = name
	}

	invalidChars := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	for _, char := range invalidChars {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = multiSpace.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// DirExists checks if a directory exists
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
