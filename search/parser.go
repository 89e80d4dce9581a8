package search

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"
)

// ContentKind declares the payload shape a parser variant handles.
type ContentKind int

const (
	KindUnknown ContentKind = iota
	KindJSON
	KindHTML
)

// DetectKind maps a Content-Type header value to a payload kind.
func DetectKind(contentType string) ContentKind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		return KindJSON
	case strings.Contains(ct, "html"):
		return KindHTML
	default:
		return KindUnknown
	}
}

// Parser normalizes a raw backend payload into a Response. Both
// variants share the contract: entries missing a title or URL are
// skipped, never fatal.
type Parser interface {
	Parse(payload []byte, base *url.URL) (*Response, error)
}

// ParserFor returns the parser variant for the declared payload kind.
func ParserFor(kind ContentKind) (Parser, error) {
	switch kind {
	case KindJSON:
		return jsonParser{}, nil
	case KindHTML:
		return htmlParser{}, nil
	default:
		return nil, &SearchError{Reason: "unsupported payload content type"}
	}
}

// Parse normalizes payload according to kind, resolving relative
// thumbnail URLs against base when given.
func Parse(payload []byte, kind ContentKind, base *url.URL) (*Response, error) {
	p, err := ParserFor(kind)
	if err != nil {
		return nil, err
	}
	return p.Parse(payload, base)
}

// Wire shape of the backend JSON response. Image results carry the
// thumbnail under img_src, web results under thumbnail.
type wireResponse struct {
	Results []struct {
		Title     string `json:"title"`
		URL       string `json:"url"`
		Content   string `json:"content"`
		Thumbnail string `json:"thumbnail"`
		ImgSrc    string `json:"img_src"`
	} `json:"results"`
	NumberOfResults int      `json:"number_of_results"`
	Suggestions     []string `json:"suggestions"`
}

type jsonParser struct{}

func (jsonParser) Parse(payload []byte, base *url.URL) (*Response, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, &SearchError{Reason: "empty payload"}
	}

	var wire wireResponse
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, &SearchError{Reason: "payload is not valid JSON", Err: err}
	}

	resp := &Response{
		Results:     make([]Result, 0, len(wire.Results)),
		Suggestions: wire.Suggestions,
	}
	for _, entry := range wire.Results {
		if entry.Title == "" || entry.URL == "" {
			continue
		}
		thumb := entry.Thumbnail
		if thumb == "" {
			thumb = entry.ImgSrc
		}
		resp.Results = append(resp.Results, Result{
			Title:     entry.Title,
			URL:       entry.URL,
			Content:   strings.TrimSpace(entry.Content),
			Thumbnail: resolveThumbnail(thumb, base),
		})
	}

	resp.NumberOfResults = wire.NumberOfResults
	if resp.NumberOfResults <= 0 {
		resp.NumberOfResults = len(resp.Results)
	}
	return resp, nil
}

// resolveThumbnail makes relative thumbnail paths absolute. When
// resolution is not possible the thumbnail is dropped rather than
// failing the parse.
func resolveThumbnail(thumb string, base *url.URL) string {
	if thumb == "" {
		return ""
	}
	ref, err := url.Parse(thumb)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return thumb
	}
	if base == nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
