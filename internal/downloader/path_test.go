package downloader

import (
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var allowListed = regexp.MustCompile(`^[A-Za-z0-9._ -]+$`)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Show - Ep 1.mp4", "Show - Ep 1.mp4"},
		{"unsafe runs collapse", "Show: Name? / Ep 1*.mp4", "Show_ Name_ _ Ep 1_.mp4"},
		{"diacritics", "Las Fierbinți - Ep 3.mp4", "Las Fierbin_i - Ep 3.mp4"},
		{"trim spaces then dots", "  ..hidden..  ", "hidden"},
		{"empty", "", "item"},
		{"only dots", "...", "item"},
		{"only spaces", "   ", "item"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input, 160))
		})
	}
}

func TestSanitizeFilename_AllowListAndLength(t *testing.T) {
	got := SanitizeFilename("Show: Name? / Ep 1*.mp4", 160)

	assert.NotEmpty(t, got)
	assert.Regexp(t, allowListed, got)
	assert.LessOrEqual(t, len(got), 160)

	long := SanitizeFilename(strings.Repeat("a", 500), 20)
	assert.Len(t, long, 20)

	assert.Len(t, SanitizeFilename(strings.Repeat("b", 500), 0), DefaultFilenameMaxLen)
}

func TestTargetPath(t *testing.T) {
	j := Job{ShowID: "12", ShowName: "Vlad", EpisodeID: "7", EpisodeName: "Episodul 7"}
	assert.Equal(t, filepath.Join("/media", "Vlad - Episodul 7.mp4"), TargetPath("/media", j, 0))

	// ids stand in for missing names
	bare := Job{ShowID: "12", EpisodeID: "7"}
	assert.Equal(t, filepath.Join("/media", "12 - 7.mp4"), TargetPath("/media", bare, 0))
}

func TestPartialPath(t *testing.T) {
	assert.Equal(t, "/media/Vlad - Ep 1.part.mp4", partialPath("/media/Vlad - Ep 1.mp4"))
}
