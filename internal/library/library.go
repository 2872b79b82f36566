// Package library assembles the harvested catalog into the nested
// category -> kind -> show -> season -> episode tree. Build is a pure
// transform: no network or disk access happens here.
package library

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/glefebvre/vodharvest/internal/catalog"
	"github.com/glefebvre/vodharvest/internal/classifier"
)

// TimeFormat is the second-precision UTC layout of GeneratedAt
const TimeFormat = "2006-01-02T15:04:05Z"

// DefaultSeason holds episodes whose season could not be inferred
const DefaultSeason = 1

// unknownEpisode sorts episodes without an inferred number last
const unknownEpisode = 999999

// Library is the root of the tree
type Library struct {
	GeneratedAt string                  `json:"generatedAt"`
	Categories  map[string]CategoryNode `json:"categories"`
}

// CategoryNode splits a category into films and serials
type CategoryNode struct {
	Filme   []FilmItem   `json:"filme"`
	Seriale []SerialItem `json:"seriale"`
}

// ShowInfo is the show part shared by films and serials
type ShowInfo struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    *string `json:"category"`
	CategoryRaw *string `json:"categoryRaw"`
	Img         *string `json:"img"`
	Link        *string `json:"link"`
}

// FilmItem is a show with at most one episode
type FilmItem struct {
	ShowInfo
	Episode *FilmEpisode `json:"episode"`
}

// FilmEpisode is the single episode of a film.
// Stream is omitted unless streams were requested, and null when unresolved.
type FilmEpisode struct {
	ID     string          `json:"id"`
	Name   *string         `json:"name"`
	Date   *string         `json:"date"`
	Link   *string         `json:"link"`
	Stream json.RawMessage `json:"stream,omitempty"`
}

// SerialItem is a show with its episodes bucketed by season
type SerialItem struct {
	ShowInfo
	Seasons []Season `json:"seasons"`
}

// Season is one season bucket
type Season struct {
	Season   int             `json:"season"`
	Episodes []SerialEpisode `json:"episodes"`
}

// SerialEpisode carries the inferred episode number (null when unknown)
type SerialEpisode struct {
	ID      string          `json:"id"`
	Name    *string         `json:"name"`
	Date    *string         `json:"date"`
	Link    *string         `json:"link"`
	Episode *int            `json:"episode"`
	Stream  json.RawMessage `json:"stream,omitempty"`
}

// Build assembles the library. Categories are keyed by catalog.Show.CategoryKey,
// shows within a category are ordered by (name, id), seasons ascending, and
// episodes within a season by (number, date, id) with unknown numbers last.
// The output does not depend on the order of the inputs beyond show identity.
func Build(shows []catalog.Show, episodesByShow map[string][]catalog.Episode, includeStreams bool, streams map[string]string, now time.Time) Library {
	lib := Library{
		GeneratedAt: now.UTC().Format(TimeFormat),
		Categories:  make(map[string]CategoryNode),
	}

	b := builder{includeStreams: includeStreams, streams: streams}

	for _, group := range catalog.GroupByCategory(shows) {
		node := CategoryNode{
			Filme:   []FilmItem{},
			Seriale: []SerialItem{},
		}

		for _, s := range group.Shows {
			eps := episodesByShow[s.ID]
			switch classifier.Classify(len(eps)) {
			case classifier.KindFilm:
				node.Filme = append(node.Filme, b.film(s, eps))
			default:
				node.Seriale = append(node.Seriale, b.serial(s, eps))
			}
		}

		lib.Categories[group.Key] = node
	}

	return lib
}

type builder struct {
	includeStreams bool
	streams        map[string]string
}

func (b builder) film(s catalog.Show, eps []catalog.Episode) FilmItem {
	item := FilmItem{ShowInfo: showInfo(s)}
	if len(eps) == 1 {
		ep := eps[0]
		item.Episode = &FilmEpisode{
			ID:     ep.ID,
			Name:   ep.Name,
			Date:   ep.Date,
			Link:   ep.Link,
			Stream: b.stream(s.ID, ep.ID),
		}
	}
	return item
}

func (b builder) serial(s catalog.Show, eps []catalog.Episode) SerialItem {
	buckets := make(map[int][]SerialEpisode)

	for _, ep := range eps {
		guess := classifier.ParseSeasonEpisode(ep.Title())
		season := guess.SeasonOr(DefaultSeason)
		buckets[season] = append(buckets[season], SerialEpisode{
			ID:      ep.ID,
			Name:    ep.Name,
			Date:    ep.Date,
			Link:    ep.Link,
			Episode: guess.Episode,
			Stream:  b.stream(s.ID, ep.ID),
		})
	}

	numbers := make([]int, 0, len(buckets))
	for n := range buckets {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	seasons := make([]Season, 0, len(numbers))
	for _, n := range numbers {
		episodes := buckets[n]
		sortEpisodes(episodes)
		seasons = append(seasons, Season{Season: n, Episodes: episodes})
	}

	return SerialItem{ShowInfo: showInfo(s), Seasons: seasons}
}

// stream returns the JSON value of the stream field, nil to omit it
func (b builder) stream(showID, episodeID string) json.RawMessage {
	if !b.includeStreams || episodeID == "" {
		return nil
	}
	url, ok := b.streams[catalog.StreamKey(showID, episodeID)]
	if !ok {
		return json.RawMessage("null")
	}
	encoded, err := json.Marshal(url)
	if err != nil {
		return json.RawMessage("null")
	}
	return encoded
}

func sortEpisodes(episodes []SerialEpisode) {
	sort.SliceStable(episodes, func(i, j int) bool {
		ni, nj := episodeNumber(episodes[i]), episodeNumber(episodes[j])
		if ni != nj {
			return ni < nj
		}
		di, dj := deref(episodes[i].Date), deref(episodes[j].Date)
		if di != dj {
			return di < dj
		}
		return episodes[i].ID < episodes[j].ID
	})
}

func episodeNumber(e SerialEpisode) int {
	if e.Episode == nil {
		return unknownEpisode
	}
	return *e.Episode
}

func showInfo(s catalog.Show) ShowInfo {
	return ShowInfo{
		ID:          s.ID,
		Name:        s.Name,
		Category:    s.Category,
		CategoryRaw: s.CategoryRaw,
		Img:         s.Img,
		Link:        s.Link,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Stats summarizes a library
type Stats struct {
	Categories int
	Films      int
	Serials    int
	Seasons    int
	Episodes   int
}

// Stats counts the nodes of the tree
func (l Library) Stats() Stats {
	st := Stats{Categories: len(l.Categories)}
	for _, node := range l.Categories {
		st.Films += len(node.Filme)
		for _, f := range node.Filme {
			if f.Episode != nil {
				st.Episodes++
			}
		}
		st.Serials += len(node.Seriale)
		for _, s := range node.Seriale {
			st.Seasons += len(s.Seasons)
			for _, season := range s.Seasons {
				st.Episodes += len(season.Episodes)
			}
		}
	}
	return st
}

// CategoryKeys returns the category keys in output order
func (l Library) CategoryKeys() []string {
	keys := make([]string, 0, len(l.Categories))
	for k := range l.Categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
