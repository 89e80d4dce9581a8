package search

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlParser normalizes the backend's HTML result page. The structural
// convention: each result lives in an article.result (or div.result)
// container with an h3 > a title link, a .content snippet, and an
// optional img.thumbnail; suggestions are input[name=q] values under
// #suggestions.
type htmlParser struct{}

func (htmlParser) Parse(payload []byte, base *url.URL) (*Response, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, &SearchError{Reason: "empty payload"}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, &SearchError{Reason: "payload is not parseable HTML", Err: err}
	}

	resp := &Response{Results: []Result{}}

	doc.Find("article.result, div.result").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("h3 a").First()
		if link.Length() == 0 {
			link = s.Find("a").First()
		}
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		href = absoluteURL(href, base)
		if title == "" || href == "" {
			return
		}

		thumb, _ := s.Find("img.thumbnail").First().Attr("src")
		resp.Results = append(resp.Results, Result{
			Title:     title,
			URL:       href,
			Content:   strings.TrimSpace(s.Find(".content").First().Text()),
			Thumbnail: resolveThumbnail(thumb, base),
		})
	})

	doc.Find("#suggestions input[name='q']").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("value"); ok && v != "" {
			resp.Suggestions = append(resp.Suggestions, v)
		}
	})

	resp.NumberOfResults = len(resp.Results)
	return resp, nil
}

// absoluteURL resolves href against base and returns "" when the result
// is not an absolute URL, which causes the entry to be skipped.
func absoluteURL(href string, base *url.URL) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return href
	}
	if base == nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
