// Package classifier decides whether a show is a film or a serial and infers
// season/episode numbers from free-text episode titles.
package classifier

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind is the library bucket a show is filed under
type Kind string

const (
	KindFilm   Kind = "film"
	KindSerial Kind = "serial"
)

// Classify files a show by its episode count: at most one episode is a film.
// The threshold is fixed.
func Classify(episodeCount int) Kind {
	if episodeCount <= 1 {
		return KindFilm
	}
	return KindSerial
}

// Guess is the season/episode pair inferred from a title; nil means unknown
type Guess struct {
	Season  *int
	Episode *int
}

// rule is one title convention. season and episode are submatch indexes,
// 0 when the convention does not carry that number.
type rule struct {
	name    string
	pattern *regexp.Regexp
	season  int
	episode int
}

// rules are tried in order; the first match wins. New conventions go after
// the "ep" row so they never override an episode-only title.
var rules = []rule{
	// S01E02, s1e2, S01 E02
	{"sxxexx", regexp.MustCompile(`(?i)\bS(\d{1,2})\s*E(\d{1,3})\b`), 1, 2},
	// Sezonul 1 Episodul 2, Sezon 1 Ep 2, Sezon 1 - Ep. 2
	{"sezon", regexp.MustCompile(`(?i)\bsezon(?:ul)?\s*(\d{1,2})\b.*?\b(?:ep(?:isod(?:ul)?)?|ep\.)\s*(\d{1,3})\b`), 1, 2},
	// Ep 12, Ep. 12, Episodul 12
	{"ep", regexp.MustCompile(`(?i)\b(?:ep(?:isod(?:ul)?)?|ep\.)\s*(\d{1,3})\b`), 0, 1},
	// Conventions below only apply to titles the Romanian forms leave unmatched.
	// S01-E05
	{"sxx-exx", regexp.MustCompile(`(?i)\bS(\d{1,2})\s*-\s*E(\d{1,3})\b`), 1, 2},
	// 1x05, 01x05
	{"nxnn", regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{1,3})\b`), 1, 2},
	// Season 1 Episode 5
	{"season", regexp.MustCompile(`(?i)\bseason\s*(\d{1,2})\b.*?\bepisode\s*(\d{1,3})\b`), 1, 2},
	// Saison 1 Episode 5, Saison 1 Épisode 5
	{"saison", regexp.MustCompile(`(?i)\bsaison\s*(\d{1,2})\s*[eé]pisode\s*(\d{1,3})\b`), 1, 2},
	// Temporada 1 Episodio 5
	{"temporada", regexp.MustCompile(`(?i)\btemporada\s*(\d{1,2})\s*episodio\s*(\d{1,3})\b`), 1, 2},
	// Staffel 1 Folge 5
	{"staffel", regexp.MustCompile(`(?i)\bstaffel\s*(\d{1,2})\s*folge\s*(\d{1,3})\b`), 1, 2},
	// Episode 12
	{"episode", regexp.MustCompile(`(?i)\bepisode\s*(\d{1,3})\b`), 0, 1},
}

// ParseSeasonEpisode infers season and episode numbers from an episode title.
// It is best effort: unmatched titles yield an empty guess.
func ParseSeasonEpisode(title string) Guess {
	t := strings.TrimSpace(title)
	if t == "" {
		return Guess{}
	}

	for _, r := range rules {
		m := r.pattern.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		return Guess{
			Season:  submatchInt(m, r.season),
			Episode: submatchInt(m, r.episode),
		}
	}
	return Guess{}
}

func submatchInt(m []string, idx int) *int {
	if idx <= 0 || idx >= len(m) {
		return nil
	}
	n, err := strconv.Atoi(m[idx])
	if err != nil {
		return nil
	}
	return &n
}

// SeasonOr returns the inferred season or def when unknown
func (g Guess) SeasonOr(def int) int {
	if g.Season == nil {
		return def
	}
	return *g.Season
}
