// Package songlink resolves music-service links (Spotify, Apple Music, Deezer,
// ...) through the song.link API so they can be searched on YouTube.
package songlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.song.link/v1-alpha.1/links"

// Platform represents a music streaming platform
type Platform string

const (
	PlatformYouTube      Platform = "youtube"
	PlatformYouTubeMusic Platform = "youtubeMusic"
	PlatformSpotify      Platform = "spotify"
	PlatformAppleMusic   Platform = "appleMusic"
	PlatformDeezer       Platform = "deezer"
	PlatformTidal        Platform = "tidal"
	PlatformYandex       Platform = "yandex"
)

// ErrNoMatch is returned when song.link knows nothing usable about a link.
var ErrNoMatch = errors.New("songlink: no match")

// hosts that song.link can resolve.
var musicHosts = []string{
	"open.spotify.com",
	"music.apple.com",
	"deezer.com",
	"deezer.page.link",
	"tidal.com",
	"music.yandex.",
	"music.youtube.com",
	"song.link",
	"odesli.co",
}

// Track is what a link resolves to.
type Track struct {
	Artist     string
	Title      string
	Cover      string
	YouTubeURL string // direct YouTube link when song.link has one
}

// SearchText returns the text to search for on YouTube.
func (t *Track) SearchText() string {
	switch {
	case t.Artist != "" && t.Title != "":
		return t.Artist + " - " + t.Title
	default:
		return t.Title
	}
}

type apiResponse struct {
	EntityUniqueId     string                            `json:"entityUniqueId"`
	LinksByPlatform    map[string]platformLink           `json:"linksByPlatform"`
	EntitiesByUniqueId map[string]entitiesByUniqueIdItem `json:"entitiesByUniqueId"`
}

type platformLink struct {
	EntityUniqueId string `json:"entityUniqueId"`
	URL            string `json:"url"`
}

type entitiesByUniqueIdItem struct {
	Title        string `json:"title,omitempty"`
	ArtistName   string `json:"artistName,omitempty"`
	ThumbnailUrl string `json:"thumbnailUrl,omitempty"`
}

// Client talks to the song.link API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client. An empty baseURL selects the public API.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// IsMusicLink reports whether s looks like a link song.link can resolve.
func IsMusicLink(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, h := range musicHosts {
		if strings.Contains(host, h) {
			return true
		}
	}
	return false
}

// Resolve fetches track information for a music link.
func (c *Client) Resolve(ctx context.Context, raw string) (*Track, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse API URL: %w", err)
	}

	q := u.Query()
	q.Set("url", strings.TrimSpace(raw))
	q.Set("userCountry", "US")
	q.Set("songIfSingle", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("song.link API returned status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return pick(&body)
}

// Priority order for reading metadata
var priority = []Platform{
	PlatformSpotify,
	PlatformAppleMusic,
	PlatformDeezer,
	PlatformTidal,
	PlatformYouTubeMusic,
	PlatformYouTube,
	PlatformYandex,
}

func pick(body *apiResponse) (*Track, error) {
	t := &Track{}

	if yt, ok := body.LinksByPlatform[string(PlatformYouTube)]; ok {
		t.YouTubeURL = yt.URL
	}

	ids := make([]string, 0, len(priority)+1)
	for _, p := range priority {
		if pl, ok := body.LinksByPlatform[string(p)]; ok && pl.EntityUniqueId != "" {
			ids = append(ids, pl.EntityUniqueId)
		}
	}
	if body.EntityUniqueId != "" {
		ids = append(ids, body.EntityUniqueId)
	}

	for _, id := range ids {
		ent, ok := body.EntitiesByUniqueId[id]
		if !ok || ent.Title == "" {
			continue
		}
		t.Title = ent.Title
		t.Artist = ent.ArtistName
		t.Cover = ent.ThumbnailUrl
		break
	}

	if t.Title == "" && t.YouTubeURL == "" {
		return nil, ErrNoMatch
	}

	return t, nil
}
