package instance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultDirectoryURL is the public instance directory document.
const DefaultDirectoryURL = "https://searx.space/data/instances.json"

const maxDirectorySize = 16 << 20

// The directory document keys instances by URL. Only the fields that
// drive registration are decoded.
type directoryDocument struct {
	Instances map[string]directoryEntry `json:"instances"`
}

type directoryEntry struct {
	NetworkType string `json:"network_type"`
	HTTP        struct {
		StatusCode int `json:"status_code"`
	} `json:"http"`
	Uptime struct {
		UptimeDay float64 `json:"uptimeDay"`
	} `json:"uptime"`
}

// Fetcher pulls the public instance directory and turns reachable
// entries into instances. An optional on-disk cache short-circuits
// re-fetching within its TTL.
type Fetcher struct {
	client       *http.Client
	directoryURL string
	cache        *Cache
	logger       *zap.Logger
}

// NewFetcher creates a fetcher. cache may be nil.
func NewFetcher(directoryURL string, cache *Cache, logger *zap.Logger) *Fetcher {
	if directoryURL == "" {
		directoryURL = DefaultDirectoryURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:       &http.Client{Timeout: 30 * time.Second},
		directoryURL: directoryURL,
		cache:        cache,
		logger:       logger,
	}
}

// Fetch returns the instances the directory reports as answering.
// Entries with unparsable URLs are skipped.
func (f *Fetcher) Fetch(ctx context.Context) ([]*Instance, error) {
	raw, cached := f.cachedDocument()
	if !cached {
		var err error
		raw, err = f.download(ctx)
		if err != nil {
			return nil, err
		}
		if f.cache != nil {
			if err := f.cache.Put(raw); err != nil {
				f.logger.Warn("failed to cache instance directory", zap.Error(err))
			}
		}
	}

	var doc directoryDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode instance directory: %w", err)
	}

	instances := make([]*Instance, 0, len(doc.Instances))
	for rawURL, entry := range doc.Instances {
		if entry.HTTP.StatusCode != http.StatusOK {
			continue
		}
		inst, err := New(rawURL)
		if err != nil {
			f.logger.Debug("skipping directory entry", zap.String("url", rawURL), zap.Error(err))
			continue
		}
		if entry.NetworkType == "tor" {
			inst.IsTor = true
		}
		inst.Uptime = entry.Uptime.UptimeDay
		instances = append(instances, inst)
	}

	f.logger.Info("instance directory fetched",
		zap.Int("total", len(doc.Instances)),
		zap.Int("usable", len(instances)),
		zap.Bool("from_cache", cached))
	return instances, nil
}

func (f *Fetcher) cachedDocument() ([]byte, bool) {
	if f.cache == nil {
		return nil, false
	}
	return f.cache.Get()
}

func (f *Fetcher) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.directoryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instance directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instance directory returned HTTP %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDirectorySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read instance directory: %w", err)
	}
	return raw, nil
}
