// Package news はクリニックからのお知らせフィードの取得を提供する。
// 外部RSS/Atomフィードを定期的に読み込み、ホームページに表示する。
package news

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/minato/clinicport/internal/model"
)

// Sanitizer はフィード本文の無害化インターフェース。
type Sanitizer interface {
	SanitizeSummary(input string) string
}

// Service はお知らせフィードの取得とキャッシュを行う。
// フィードの取得失敗はホームページの表示を妨げてはならないため、
// 失敗時は空のリストに縮退する。
type Service struct {
	feedURL   string
	parser    *gofeed.Parser
	sanitizer Sanitizer
	cacheTTL  time.Duration
	maxItems  int
	logger    *slog.Logger

	mu        sync.Mutex
	cached    []model.NewsItem
	fetchedAt time.Time
}

// NewService はServiceを生成する。
// httpClientにはSSRF防止付きクライアントを渡すことを想定している。
// feedURLが空の場合、Latestは常に空のリストを返す。
func NewService(feedURL string, httpClient *http.Client, sanitizer Sanitizer, cacheTTL time.Duration, logger *slog.Logger) *Service {
	parser := gofeed.NewParser()
	parser.Client = httpClient
	return &Service{
		feedURL:   feedURL,
		parser:    parser,
		sanitizer: sanitizer,
		cacheTTL:  cacheTTL,
		maxItems:  5,
		logger:    logger,
	}
}

// Latest は最新のお知らせを返す。キャッシュが有効な間は再取得しない。
// 取得に失敗した場合は空のリストを返し、エラーは返さない。
func (s *Service) Latest(ctx context.Context) []model.NewsItem {
	if s.feedURL == "" {
		return []model.NewsItem{}
	}

	s.mu.Lock()
	if s.cached != nil && time.Since(s.fetchedAt) < s.cacheTTL {
		items := s.cached
		s.mu.Unlock()
		return items
	}
	s.mu.Unlock()

	items := s.fetch(ctx)

	s.mu.Lock()
	s.cached = items
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	return items
}

// fetch はフィードを取得してNewsItemに変換する。
func (s *Service) fetch(ctx context.Context) []model.NewsItem {
	feed, err := s.parser.ParseURLWithContext(s.feedURL, ctx)
	if err != nil {
		s.logger.Warn("お知らせフィードの取得に失敗しました",
			slog.String("feed_url", s.feedURL),
			slog.String("error", err.Error()),
		)
		return []model.NewsItem{}
	}

	items := make([]model.NewsItem, 0, s.maxItems)
	for _, entry := range feed.Items {
		if len(items) >= s.maxItems {
			break
		}
		item := model.NewsItem{
			Title:   entry.Title,
			Link:    entry.Link,
			Summary: s.sanitizer.SanitizeSummary(entry.Description),
		}
		if entry.PublishedParsed != nil {
			item.PublishedAt = *entry.PublishedParsed
		}
		items = append(items, item)
	}
	return items
}
