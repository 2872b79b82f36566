package catalog

import (
	"sort"
)

// CategoryGroup is one category of the grouped catalog
type CategoryGroup struct {
	Key   string
	Shows []Show
}

// Dedupe keeps one show per non-empty id. A later duplicate replaces an
// earlier one in place, so the result keeps first-seen order while the
// values are last-wins. Shows without an id are dropped.
func Dedupe(shows []Show) []Show {
	index := make(map[string]int, len(shows))
	out := make([]Show, 0, len(shows))

	for _, s := range shows {
		if s.ID == "" {
			continue
		}
		if i, ok := index[s.ID]; ok {
			out[i] = s
			continue
		}
		index[s.ID] = len(out)
		out = append(out, s)
	}
	return out
}

// SortForExport orders shows by (category, name), the order of the flat show artifacts
func SortForExport(shows []Show) {
	sort.SliceStable(shows, func(i, j int) bool {
		ci, cj := shows[i].exportCategory(), shows[j].exportCategory()
		if ci != cj {
			return ci < cj
		}
		return shows[i].Name < shows[j].Name
	})
}

// GroupByCategory buckets shows by CategoryKey. Groups are ordered by key and
// shows within a group by (name, id).
func GroupByCategory(shows []Show) []CategoryGroup {
	buckets := make(map[string][]Show)
	for _, s := range shows {
		key := s.CategoryKey()
		buckets[key] = append(buckets[key], s)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]CategoryGroup, 0, len(keys))
	for _, k := range keys {
		members := buckets[k]
		sort.SliceStable(members, func(i, j int) bool {
			if members[i].Name != members[j].Name {
				return members[i].Name < members[j].Name
			}
			return members[i].ID < members[j].ID
		})
		groups = append(groups, CategoryGroup{Key: k, Shows: members})
	}
	return groups
}

// StreamKey is the "{showId}:{episodeId}" key of the stream map
func StreamKey(showID, episodeID string) string {
	return showID + ":" + episodeID
}
