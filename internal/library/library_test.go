package library

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/glefebvre/vodharvest/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 6, 789, time.FixedZone("EET", 2*3600))

func strPtr(s string) *string { return &s }

func mkShow(id, name, category string) catalog.Show {
	s := catalog.Show{ID: id, Name: name}
	if category != "" {
		s.Category = strPtr(category)
	}
	return s
}

func mkEpisode(id, name, date string) catalog.Episode {
	e := catalog.Episode{ID: id, Name: strPtr(name)}
	if date != "" {
		e.Date = strPtr(date)
	}
	return e
}

func TestBuild_FilmOrdering(t *testing.T) {
	shows := []catalog.Show{mkShow("2", "B", "X"), mkShow("1", "A", "X")}

	lib := Build(shows, nil, false, nil, fixedNow)

	require.Contains(t, lib.Categories, "X")
	filme := lib.Categories["X"].Filme
	require.Len(t, filme, 2)
	assert.Equal(t, "1", filme[0].ID)
	assert.Equal(t, "A", filme[0].Name)
	assert.Equal(t, "2", filme[1].ID)
	assert.Nil(t, filme[0].Episode)
	assert.Empty(t, lib.Categories["X"].Seriale)
}

func TestBuild_GeneratedAt(t *testing.T) {
	lib := Build(nil, nil, false, nil, fixedNow)
	assert.Equal(t, "2024-03-09T12:05:06Z", lib.GeneratedAt)
	assert.Empty(t, lib.Categories)
}

func TestBuild_UnknownCategory(t *testing.T) {
	lib := Build([]catalog.Show{mkShow("1", "A", "")}, nil, false, nil, fixedNow)
	assert.Equal(t, []string{"unknown"}, lib.CategoryKeys())
}

func TestBuild_FilmWithSingleEpisodeAndStream(t *testing.T) {
	shows := []catalog.Show{mkShow("10", "Movie", "Filme")}
	eps := map[string][]catalog.Episode{"10": {mkEpisode("e1", "Movie", "2024-01-01")}}
	streams := map[string]string{"10:e1": "http://cdn/movie.m3u8"}

	lib := Build(shows, eps, true, streams, fixedNow)

	film := lib.Categories["Filme"].Filme[0]
	require.NotNil(t, film.Episode)
	assert.Equal(t, "e1", film.Episode.ID)
	assert.JSONEq(t, `"http://cdn/movie.m3u8"`, string(film.Episode.Stream))
}

func TestBuild_StreamFieldPresence(t *testing.T) {
	shows := []catalog.Show{mkShow("10", "Movie", "Filme")}
	eps := map[string][]catalog.Episode{"10": {mkEpisode("e1", "Movie", "")}}

	without, err := json.Marshal(Build(shows, eps, false, nil, fixedNow))
	require.NoError(t, err)
	assert.NotContains(t, string(without), `"stream"`)

	unresolved, err := json.Marshal(Build(shows, eps, true, map[string]string{}, fixedNow))
	require.NoError(t, err)
	assert.Contains(t, string(unresolved), `"stream":null`)
}

func TestBuild_SerialSeasonsAndOrdering(t *testing.T) {
	shows := []catalog.Show{mkShow("s", "Serial", "Seriale")}
	eps := map[string][]catalog.Episode{"s": {
		mkEpisode("e5", "Sezonul 2 Episodul 1", ""),
		mkEpisode("e4", "Bonus", "2024-02-02"),
		mkEpisode("e3", "Ep 2", ""),
		mkEpisode("e2", "S01E01", ""),
		mkEpisode("e1", "Extra", "2024-01-01"),
	}}

	lib := Build(shows, eps, false, nil, fixedNow)

	seriale := lib.Categories["Seriale"].Seriale
	require.Len(t, seriale, 1)
	seasons := seriale[0].Seasons
	require.Len(t, seasons, 2)

	assert.Equal(t, 1, seasons[0].Season)
	var ids []string
	for _, e := range seasons[0].Episodes {
		ids = append(ids, e.ID)
	}
	// numbered first, then unknown numbers by date
	assert.Equal(t, []string{"e2", "e3", "e1", "e4"}, ids)
	assert.Nil(t, seasons[0].Episodes[2].Episode)

	assert.Equal(t, 2, seasons[1].Season)
	require.Len(t, seasons[1].Episodes, 1)
	require.NotNil(t, seasons[1].Episodes[0].Episode)
	assert.Equal(t, 1, *seasons[1].Episodes[0].Episode)
}

func TestBuild_EpisodeTieBreakByID(t *testing.T) {
	shows := []catalog.Show{mkShow("s", "Serial", "X")}
	eps := map[string][]catalog.Episode{"s": {
		mkEpisode("b", "Ep 1", "2024-01-01"),
		mkEpisode("a", "Ep 1", "2024-01-01"),
	}}

	lib := Build(shows, eps, false, nil, fixedNow)
	episodes := lib.Categories["X"].Seriale[0].Seasons[0].Episodes
	assert.Equal(t, "a", episodes[0].ID)
	assert.Equal(t, "b", episodes[1].ID)
}

func TestBuild_Deterministic(t *testing.T) {
	shows := []catalog.Show{mkShow("1", "A", "X"), mkShow("2", "B", "Y"), mkShow("3", "C", "X")}
	reversed := []catalog.Show{shows[2], shows[1], shows[0]}

	a, err := json.Marshal(Build(shows, nil, false, nil, fixedNow))
	require.NoError(t, err)
	b, err := json.Marshal(Build(reversed, nil, false, nil, fixedNow))
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestLibraryJSONShape(t *testing.T) {
	shows := []catalog.Show{mkShow("1", "A", "X")}
	data, err := json.Marshal(Build(shows, nil, false, nil, fixedNow))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"generatedAt": "2024-03-09T12:05:06Z",
		"categories": {
			"X": {
				"filme": [{"id":"1","name":"A","category":"X","categoryRaw":null,"img":null,"link":null,"episode":null}],
				"seriale": []
			}
		}
	}`, string(data))
}

func TestStats(t *testing.T) {
	shows := []catalog.Show{mkShow("f", "Film", "X"), mkShow("s", "Serial", "Y")}
	eps := map[string][]catalog.Episode{
		"f": {mkEpisode("1", "Film", "")},
		"s": {mkEpisode("2", "S01E01", ""), mkEpisode("3", "S02E01", "")},
	}

	st := Build(shows, eps, false, nil, fixedNow).Stats()
	assert.Equal(t, Stats{Categories: 2, Films: 1, Serials: 1, Seasons: 2, Episodes: 3}, st)
}
