package main

import (
	"RSSVoiceReader/internal/config"
	"RSSVoiceReader/internal/service/feed"
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Утилита для проверки ленты: скачивает и разбирает фид, печатает статьи,
// которые пойдут в чтение.
func main() {
	cfg := config.NewConfig()

	ctx, cancel := context.WithTimeoutCause(context.Background(), 30*time.Second, errors.New("feed fetch timeout"))
	defer cancel()

	fetcher := feed.New(cfg.NumberOfItems)
	items, err := fetcher.Fetch(ctx, cfg.FeedURL)
	if err != nil {
		fmt.Println("Не удалось загрузить ленту:", err)
		os.Exit(1)
	}

	fmt.Printf("%s — %d статей\n\n", cfg.FeedHeading, len(items))
	for i, it := range items {
		fmt.Printf("%d. %s\n", i+1, it.Title)
		fmt.Printf("   %s (%s)\n", it.Link, it.PublishedDate.Format(time.RFC822))
		if cfg.DebugMode && it.Description != "" {
			fmt.Printf("   %s\n", it.Description)
		}
	}
}
