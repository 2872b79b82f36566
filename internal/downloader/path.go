package downloader

import (
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultFilenameMaxLen caps sanitized file names
const DefaultFilenameMaxLen = 160

// placeholderName replaces names that sanitize to nothing
const placeholderName = "item"

// partialSuffix marks remux output that is not complete yet
const partialSuffix = ".part.mp4"

var unsafeRuns = regexp.MustCompile(`[^A-Za-z0-9._ -]+`)

// SanitizeFilename maps text to a portable file name: every run of characters
// outside [A-Za-z0-9._ -] becomes a single underscore, surrounding spaces and
// then dots are trimmed, an empty result becomes "item", and the result is
// cut to maxLen bytes (DefaultFilenameMaxLen when maxLen <= 0).
func SanitizeFilename(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultFilenameMaxLen
	}

	name := unsafeRuns.ReplaceAllString(text, "_")
	name = strings.TrimSpace(name)
	name = strings.Trim(name, ".")
	if name == "" {
		name = placeholderName
	}

	if len(name) > maxLen {
		name = name[:maxLen]
	}
	return name
}

// EpisodeFilename is the sanitized "{show} - {episode}.mp4" name of a job
func EpisodeFilename(showName, episodeName string, maxLen int) string {
	return SanitizeFilename(showName+" - "+episodeName+".mp4", maxLen)
}

// TargetPath returns where a job's media file is written
func TargetPath(mediaDir string, j Job, maxLen int) string {
	return filepath.Join(mediaDir, EpisodeFilename(j.showLabel(), j.episodeLabel(), maxLen))
}

// partialPath is the in-progress name of target
func partialPath(target string) string {
	return strings.TrimSuffix(target, filepath.Ext(target)) + partialSuffix
}
