// Package spotify looks up album information for a track on Spotify.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
	auth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNotFound is returned when the search has no track.
var ErrNotFound = errors.New("spotify: track not found")

// Config holds client-credentials settings.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string // defaults to the Spotify accounts service
	BaseURL      string // defaults to the Spotify Web API
}

// Album is the album a track belongs to.
type Album struct {
	Name  string
	Cover string
}

// Client searches the Spotify catalog.
type Client struct {
	api *spotify.Client
}

// New creates a client authenticated with client credentials. Tokens are
// refreshed automatically.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify: client id and secret are required")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = auth.TokenURL
	}

	conf := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}

	var opts []spotify.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(cfg.BaseURL))
	}

	return &Client{api: spotify.New(conf.Client(ctx), opts...)}, nil
}

// FindAlbum returns the album of the best match for title by artist.
func (c *Client) FindAlbum(ctx context.Context, title, artist string) (*Album, error) {
	q := "track:" + title
	if artist != "" {
		q += " artist:" + artist
	}

	res, err := c.api.Search(ctx, q, spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return nil, fmt.Errorf("spotify search: %w", err)
	}
	if res.Tracks == nil || len(res.Tracks.Tracks) == 0 {
		return nil, ErrNotFound
	}

	track := res.Tracks.Tracks[0]
	album := &Album{Name: strings.TrimSpace(track.Album.Name)}
	if len(track.Album.Images) > 0 {
		album.Cover = track.Album.Images[0].URL
	}
	if album.Name == "" {
		return nil, ErrNotFound
	}

	return album, nil
}
