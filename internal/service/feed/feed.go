package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
)

// Item — модель статьи ленты. Создаётся при разборе фида,
// дальше по значению передаётся оркестратору и наблюдателям.
type Item struct {
	ID            string
	PublishedDate time.Time
	Title         string
	Link          string
	Description   string
	ImageLink     string
}

// Fetcher абстракция источника ленты. Один вызов — один полный список статей.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]Item, error)
}

// RSSFetcher реализует Fetcher поверх gofeed (RSS/Atom/JSON).
type RSSFetcher struct {
	parser *gofeed.Parser
	limit  int // максимум статей на выдачу; <=0 — без ограничения
}

// New создаёт фетчер с ограничением на количество статей.
func New(limit int) *RSSFetcher {
	return &RSSFetcher{parser: gofeed.NewParser(), limit: limit}
}

// Fetch скачивает и разбирает ленту, возвращая первые limit статей в порядке фида.
// При ошибке сети или разбора список не возвращается вовсе (без частичных результатов).
func (f *RSSFetcher) Fetch(ctx context.Context, feedURL string) ([]Item, error) {
	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("feed fetch %s: %w", feedURL, err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		pub := time.Now()
		if it.PublishedParsed != nil {
			pub = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			pub = *it.UpdatedParsed
		}

		desc := it.Description
		if desc == "" {
			desc = it.Content
		}
		desc = stripHTML(desc)

		img := ""
		if it.Image != nil {
			img = it.Image.URL
		}

		items = append(items, Item{
			ID:            uuid.NewString(),
			PublishedDate: pub,
			Title:         strings.TrimSpace(stripHTML(it.Title)),
			Link:          it.Link,
			Description:   desc,
			ImageLink:     img,
		})
		if f.limit > 0 && len(items) == f.limit {
			break
		}
	}
	return items, nil
}

// stripHTML убирает теги и схлопывает пробелы: текст пойдёт в синтез речи,
// разметка там не нужна.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
