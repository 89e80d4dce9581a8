package search

import "time"

// Category is a backend-defined search domain grouping.
type Category string

const (
	CategoryGeneral     Category = "general"
	CategoryImages      Category = "images"
	CategoryNews        Category = "news"
	CategoryVideos      Category = "videos"
	CategoryMusic       Category = "music"
	CategoryFiles       Category = "files"
	CategoryIT          Category = "it"
	CategoryScience     Category = "science"
	CategoryMap         Category = "map"
	CategorySocialMedia Category = "social media"
)

var knownCategories = map[Category]struct{}{
	CategoryGeneral:     {},
	CategoryImages:      {},
	CategoryNews:        {},
	CategoryVideos:      {},
	CategoryMusic:       {},
	CategoryFiles:       {},
	CategoryIT:          {},
	CategoryScience:     {},
	CategoryMap:         {},
	CategorySocialMedia: {},
}

// SafeSearchLevel is the three-tier content filtering strictness setting.
type SafeSearchLevel string

const (
	SafeSearchOff      SafeSearchLevel = "off"
	SafeSearchModerate SafeSearchLevel = "moderate"
	SafeSearchStrict   SafeSearchLevel = "strict"
)

// Param returns the numeric value the backend expects for the level.
func (l SafeSearchLevel) Param() string {
	switch l {
	case SafeSearchOff:
		return "0"
	case SafeSearchStrict:
		return "2"
	default:
		return "1"
	}
}

// TimeRange restricts results to a recency window. The empty value
// means no restriction.
type TimeRange string

const (
	TimeRangeDay   TimeRange = "day"
	TimeRangeWeek  TimeRange = "week"
	TimeRangeMonth TimeRange = "month"
	TimeRangeYear  TimeRange = "year"
)

// Format hints which payload shape the backend should return.
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// Options are caller-supplied overrides for a single search call.
// Zero values mean "use the default".
type Options struct {
	Categories []Category
	Engines    []string
	Language   string
	Page       int
	SafeSearch SafeSearchLevel
	TimeRange  TimeRange
	Timeout    time.Duration
	Format     Format
}

// Config is a validated, immutable per-call search configuration.
// Build one through Builder.Build; do not construct directly.
type Config struct {
	Query      string
	Categories []Category
	Engines    []string
	Language   string
	Page       int
	SafeSearch SafeSearchLevel
	TimeRange  TimeRange
	Timeout    time.Duration
	Format     Format
}

// Result is one normalized search result.
type Result struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Content   string `json:"content,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Response is the normalized outcome of one search call. Result order
// is preserved from the backend.
type Response struct {
	Results         []Result      `json:"results"`
	NumberOfResults int           `json:"number_of_results"`
	Suggestions     []string      `json:"suggestions,omitempty"`
	InstanceURL     string        `json:"instance_url,omitempty"`
	Elapsed         time.Duration `json:"-"`
}
