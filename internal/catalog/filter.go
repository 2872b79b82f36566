package catalog

import (
	"fmt"
	"regexp"

	"github.com/glefebvre/vodharvest/internal/config"
)

// Filter attributes
const (
	AttributeCategory = "category"
	AttributeName     = "name"
)

// Filter represents a compiled filter on one show attribute
type Filter struct {
	Attribute       string
	IncludePatterns []*regexp.Regexp
	ExcludePatterns []*regexp.Regexp
}

// FilterSet holds the filters applied to the catalog after dedup
type FilterSet struct {
	filters []Filter
}

// NewFilterSet compiles the category and name filters from configuration
func NewFilterSet(cfg config.FilterConfig) (*FilterSet, error) {
	fs := &FilterSet{}

	if err := fs.add(AttributeCategory, cfg.Category.IncludePatterns, cfg.Category.ExcludePatterns); err != nil {
		return nil, fmt.Errorf("failed to load category filters: %w", err)
	}
	if err := fs.add(AttributeName, cfg.Name.IncludePatterns, cfg.Name.ExcludePatterns); err != nil {
		return nil, fmt.Errorf("failed to load name filters: %w", err)
	}

	return fs, nil
}

// Matches checks a value against the filters of one attribute.
// Excludes win over includes; with include patterns at least one must match.
func (fs *FilterSet) Matches(attribute, value string) bool {
	for _, filter := range fs.filters {
		if filter.Attribute != attribute {
			continue
		}

		for _, exclude := range filter.ExcludePatterns {
			if exclude.MatchString(value) {
				return false
			}
		}

		if len(filter.IncludePatterns) > 0 {
			matched := false
			for _, include := range filter.IncludePatterns {
				if include.MatchString(value) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
	}

	return true
}

// MatchesShow checks a show against every filter
func (fs *FilterSet) MatchesShow(s Show) bool {
	return fs.Matches(AttributeCategory, s.CategoryKey()) && fs.Matches(AttributeName, s.Name)
}

// Apply returns the shows that pass the filters, preserving order
func (fs *FilterSet) Apply(shows []Show) []Show {
	if fs == nil || len(fs.filters) == 0 {
		return shows
	}

	out := make([]Show, 0, len(shows))
	for _, s := range shows {
		if fs.MatchesShow(s) {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of loaded filters
func (fs *FilterSet) Count() int {
	return len(fs.filters)
}

func (fs *FilterSet) add(attribute string, includePatterns, excludePatterns []string) error {
	filter := Filter{Attribute: attribute}

	for _, pattern := range includePatterns {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("failed to compile include pattern '%s': %w", pattern, err)
		}
		filter.IncludePatterns = append(filter.IncludePatterns, compiled)
	}

	for _, pattern := range excludePatterns {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("failed to compile exclude pattern '%s': %w", pattern, err)
		}
		filter.ExcludePatterns = append(filter.ExcludePatterns, compiled)
	}

	// Only keep filters that have patterns
	if len(filter.IncludePatterns) > 0 || len(filter.ExcludePatterns) > 0 {
		fs.filters = append(fs.filters, filter)
	}

	return nil
}

// ValidatePattern validates a regex pattern
func ValidatePattern(pattern string) error {
	_, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}
	return nil
}
