// Package rss serves the newest public memories as an RSS 2.0 feed.
package rss

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"
	"github.com/yuin/goldmark"

	"github.com/mnemo-labs/mnemod/internal/profile"
	"github.com/mnemo-labs/mnemod/store"
)

// maxFeedItems bounds the feed length.
const maxFeedItems = 20

type RSSService struct {
	Profile *profile.Profile
	Store   *store.Store
}

func NewRSSService(profile *profile.Profile, store *store.Store) *RSSService {
	return &RSSService{
		Profile: profile,
		Store:   store,
	}
}

// RegisterRoutes mounts the feed under both route prefixes.
func (s *RSSService) RegisterRoutes(echoServer *echo.Echo) {
	echoServer.GET("/memories/rss.xml", s.GetMemoryFeed)
	echoServer.GET("/api/v1/memories/rss.xml", s.GetMemoryFeed)
}

// GetMemoryFeed renders the newest public memories as RSS. Private
// memories never appear in the feed.
// GET /memories/rss.xml
func (s *RSSService) GetMemoryFeed(c echo.Context) error {
	ctx := c.Request().Context()

	visibility := store.VisibilityPublic
	memories, err := s.Store.ListMemories(ctx, &store.FindMemory{
		Visibility: &visibility,
		Limit:      maxFeedItems,
	})
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to list memories")
	}

	baseURL := c.Scheme() + "://" + c.Request().Host
	feed := &feeds.Feed{
		Title:       "mnemod memories",
		Link:        &feeds.Link{Href: baseURL},
		Description: "Recent memories captured by this mnemod instance",
		Created:     time.Now(),
	}

	feed.Items = make([]*feeds.Item, 0, len(memories))
	for _, memory := range memories {
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          fmt.Sprintf("%s/memories/%d", baseURL, memory.ID),
			Title:       memory.Title,
			Link:        &feeds.Link{Href: fmt.Sprintf("%s/memories/%d", baseURL, memory.ID)},
			Description: renderHTML(memory.Content),
			Created:     time.Unix(memory.CreatedTs, 0),
		})
	}

	rss, err := feed.ToRss()
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to render feed")
	}
	return c.Blob(http.StatusOK, "application/rss+xml", []byte(rss))
}

// renderHTML converts markdown content to HTML for feed readers. On a
// conversion failure the raw text is served instead.
func renderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return markdown
	}
	return buf.String()
}
