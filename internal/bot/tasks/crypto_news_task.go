package tasks

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
)

type rssItem struct {
	Title string `xml:"title"`
	Link  string `xml:"link"`
	GUID  string `xml:"guid"`
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

// newCryptoNewsTask creates the scheduled task that posts fresh crypto news
// headlines to the configured groups. Already-posted items are tracked by
// feed GUID so restarts and overlapping ticks never repost.
func newCryptoNewsTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "crypto_news")
	httpClient := &http.Client{Timeout: deps.Config.News.Timeout}

	return func(ctx context.Context) error {
		cfg := deps.Config.News
		if len(cfg.GroupIDs) == 0 {
			log.InfoContext(ctx, "No target groups configured, skipping")
			return nil
		}

		items, err := fetchFeed(ctx, httpClient, cfg.FeedURL)
		if err != nil {
			return fmt.Errorf("failed to fetch news feed: %w", err)
		}

		client, err := deps.Session.Current(ctx)
		if err != nil {
			return fmt.Errorf("session unavailable: %w", err)
		}

		posted := 0
		for _, item := range items {
			if posted >= cfg.MaxPerTick {
				break
			}
			guid := item.GUID
			if guid == "" {
				guid = item.Link
			}
			if guid == "" {
				continue
			}

			sent, err := deps.Store.WasNewsSent(ctx, guid)
			if err != nil {
				return err
			}
			if sent {
				continue
			}

			text := fmt.Sprintf("📰 %s\n%s", strings.TrimSpace(item.Title), strings.TrimSpace(item.Link))
			delivered := false
			for _, groupID := range cfg.GroupIDs {
				if err := client.SendText(ctx, groupID, text, nil); err != nil {
					log.WarnContext(ctx, "Failed to post news item", "group_id", groupID, "error", err)
					continue
				}
				delivered = true
			}
			if !delivered {
				continue
			}

			if err := deps.Store.MarkNewsSent(ctx, guid); err != nil {
				return err
			}
			posted++
		}

		log.InfoContext(ctx, "News tick finished", "posted", posted, "feed_items", len(items))
		return nil
	}
}

func fetchFeed(ctx context.Context, client *http.Client, url string) ([]rssItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var feed rssFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}
	return feed.Channel.Items, nil
}
