package search

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var languageRe = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z]{2,8})?$`)

// Builder validates and normalizes caller-supplied search parameters
// into an immutable Config. All validation happens here, before any
// network activity.
type Builder struct {
	defaultTimeout time.Duration
	knownEngines   map[string]struct{}
}

// NewBuilder creates a builder. knownEngines is an optional allow-list;
// when empty, engine names pass through unchecked.
func NewBuilder(defaultTimeout time.Duration, knownEngines []string) *Builder {
	b := &Builder{defaultTimeout: defaultTimeout}
	if len(knownEngines) > 0 {
		b.knownEngines = make(map[string]struct{}, len(knownEngines))
		for _, e := range knownEngines {
			b.knownEngines[e] = struct{}{}
		}
	}
	return b
}

// Build produces a Config from the query and optional overrides.
// It is deterministic: the same input always yields a field-equal Config.
func (b *Builder) Build(query string, opts *Options) (Config, error) {
	if opts == nil {
		opts = &Options{}
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return Config{}, &ValidationError{Field: "query", Reason: "must not be empty"}
	}

	if opts.Page < 0 {
		return Config{}, &ValidationError{Field: "page", Reason: fmt.Sprintf("must be >= 1, got %d", opts.Page)}
	}
	page := opts.Page
	if page == 0 {
		page = 1
	}

	safeSearch := opts.SafeSearch
	switch safeSearch {
	case "":
		safeSearch = SafeSearchModerate
	case SafeSearchOff, SafeSearchModerate, SafeSearchStrict:
	default:
		return Config{}, &ValidationError{Field: "safe_search", Reason: fmt.Sprintf("unrecognized level %q", safeSearch)}
	}

	language := opts.Language
	if language == "" {
		language = "auto"
	}
	if language != "auto" && !languageRe.MatchString(language) {
		return Config{}, &ValidationError{Field: "language", Reason: fmt.Sprintf("unrecognized code %q", language)}
	}

	categories := opts.Categories
	if len(categories) == 0 {
		categories = []Category{CategoryGeneral}
	}
	seen := make(map[Category]struct{}, len(categories))
	deduped := make([]Category, 0, len(categories))
	for _, c := range categories {
		if _, ok := knownCategories[c]; !ok {
			return Config{}, &ValidationError{Field: "categories", Reason: fmt.Sprintf("unknown category %q", c)}
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		deduped = append(deduped, c)
	}

	engines := make([]string, 0, len(opts.Engines))
	for _, e := range opts.Engines {
		if b.knownEngines != nil {
			if _, ok := b.knownEngines[e]; !ok {
				return Config{}, &ValidationError{Field: "engines", Reason: fmt.Sprintf("unknown engine %q", e)}
			}
		}
		engines = append(engines, e)
	}

	timeRange := opts.TimeRange
	switch timeRange {
	case "", TimeRangeDay, TimeRangeWeek, TimeRangeMonth, TimeRangeYear:
	default:
		return Config{}, &ValidationError{Field: "time_range", Reason: fmt.Sprintf("unrecognized range %q", timeRange)}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}

	format := opts.Format
	switch format {
	case "":
		format = FormatJSON
	case FormatJSON, FormatHTML:
	default:
		return Config{}, &ValidationError{Field: "format", Reason: fmt.Sprintf("unrecognized format %q", format)}
	}

	return Config{
		Query:      query,
		Categories: deduped,
		Engines:    engines,
		Language:   language,
		Page:       page,
		SafeSearch: safeSearch,
		TimeRange:  timeRange,
		Timeout:    timeout,
		Format:     format,
	}, nil
}
