// Package export writes the harvest artifacts to the output directory.
// Every file is written to a temp file first and renamed into place.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/glefebvre/vodharvest/internal/catalog"
	"github.com/glefebvre/vodharvest/internal/library"
	"github.com/spf13/afero"
)

// Artifact suffixes; file names are "{module}_vod_{suffix}"
const (
	ArtifactShows          = "shows.json"
	ArtifactShowsCSV       = "shows.csv"
	ArtifactByCategory     = "by_category.json"
	ArtifactEpisodesByShow = "episodes_by_show.json"
	ArtifactStreams        = "streams_by_episode.json"
	ArtifactLibrary        = "library.json"
)

// CSVColumns are the columns of the flat show listing
var CSVColumns = []string{"id", "name", "date", "category", "categoryRaw", "link", "img"}

// Writer writes artifacts for one module into one directory
type Writer struct {
	fs      afero.Fs
	dir     string
	module  string
	written []string
}

// Option customizes a Writer
type Option func(*Writer)

// WithFs replaces the filesystem
func WithFs(fs afero.Fs) Option {
	return func(w *Writer) {
		w.fs = fs
	}
}

// New creates a writer rooted at dir
func New(dir, module string, opts ...Option) *Writer {
	w := &Writer{
		fs:     afero.NewOsFs(),
		dir:    dir,
		module: module,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the full path of an artifact
func (w *Writer) Path(suffix string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_vod_%s", w.module, suffix))
}

// Written lists the artifacts written so far, in write order
func (w *Writer) Written() []string {
	return append([]string(nil), w.written...)
}

// WriteShows writes the flat show list as the upstream objects
func (w *Writer) WriteShows(shows []catalog.Show) error {
	items := make([]json.RawMessage, 0, len(shows))
	for _, s := range shows {
		items = append(items, rawOrEmpty(s.Raw))
	}
	return w.writeJSON(ArtifactShows, items)
}

// WriteByCategory writes {category: [show...]} with groups and shows in group order
func (w *Writer) WriteByCategory(groups []catalog.CategoryGroup) error {
	out := make(map[string][]json.RawMessage, len(groups))
	for _, g := range groups {
		items := make([]json.RawMessage, 0, len(g.Shows))
		for _, s := range g.Shows {
			items = append(items, rawOrEmpty(s.Raw))
		}
		out[g.Key] = items
	}
	return w.writeJSON(ArtifactByCategory, out)
}

// WriteShowsCSV writes the flat show list with the fixed column set.
// Missing and null fields are empty, strings are written as is and any
// other JSON value as its literal text.
func (w *Writer) WriteShowsCSV(shows []catalog.Show) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.UseCRLF = true

	if err := cw.Write(CSVColumns); err != nil {
		return err
	}
	for _, s := range shows {
		if err := cw.Write(csvRow(s.Raw)); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to encode csv: %w", err)
	}

	return w.writeFile(ArtifactShowsCSV, buf.Bytes())
}

type episodeList struct {
	Episodes []json.RawMessage `json:"episodes"`
}

// WriteEpisodesByShow writes {showId: {"episodes": [episode...]}}
func (w *Writer) WriteEpisodesByShow(episodesByShow map[string][]catalog.Episode) error {
	out := make(map[string]episodeList, len(episodesByShow))
	for id, eps := range episodesByShow {
		items := make([]json.RawMessage, 0, len(eps))
		for _, ep := range eps {
			items = append(items, rawOrEmpty(ep.Raw))
		}
		out[id] = episodeList{Episodes: items}
	}
	return w.writeJSON(ArtifactEpisodesByShow, out)
}

// WriteStreams writes the "{showId}:{episodeId}" -> url map
func (w *Writer) WriteStreams(streams map[string]string) error {
	if streams == nil {
		streams = map[string]string{}
	}
	return w.writeJSON(ArtifactStreams, streams)
}

// WriteLibrary writes the library tree
func (w *Writer) WriteLibrary(lib library.Library) error {
	return w.writeJSON(ArtifactLibrary, lib)
}

func (w *Writer) writeJSON(suffix string, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", suffix, err)
	}
	return w.writeFile(suffix, buf.Bytes())
}

func (w *Writer) writeFile(suffix string, data []byte) error {
	target := w.Path(suffix)

	if err := w.fs.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := afero.TempFile(w.fs, w.dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		w.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(target), err)
	}
	if err := tmp.Close(); err != nil {
		w.fs.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", filepath.Base(target), err)
	}
	if err := w.fs.Rename(tmpPath, target); err != nil {
		w.fs.Remove(tmpPath)
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(target), err)
	}

	w.written = append(w.written, target)
	return nil
}

func rawOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}

func csvRow(raw json.RawMessage) []string {
	var fields map[string]json.RawMessage
	json.Unmarshal(raw, &fields)

	row := make([]string, len(CSVColumns))
	for i, col := range CSVColumns {
		row[i] = csvCell(fields[col])
	}
	return row
}

func csvCell(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || string(v) == "null" {
		return ""
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	}
	return string(v)
}
