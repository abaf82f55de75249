// Package pipeline turns a song query into a tagged MP3 on local disk.
//
// A query goes through three stages: an optional link resolver that turns
// music-service links into search text, the downloader, and the tagger. When
// the source reports no album an optional album finder fills it in.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/maya-florenko/imusic/internal/downloader"
	"github.com/maya-florenko/imusic/internal/metadata"
	"github.com/maya-florenko/imusic/internal/songlink"
	"github.com/maya-florenko/imusic/internal/spotify"
	"github.com/rs/zerolog/log"
)

const (
	UnknownTitle  = "Unknown Title"
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"

	maxCoverSize = 5 << 20
)

// Result is a downloaded and tagged song. The caller owns Path.
type Result struct {
	Path   string
	Title  string
	Artist string
	Album  string
}

// Resolver turns a music-service link into a track description.
type Resolver interface {
	Resolve(ctx context.Context, link string) (*songlink.Track, error)
}

// AlbumFinder looks up the album of a track.
type AlbumFinder interface {
	FindAlbum(ctx context.Context, title, artist string) (*spotify.Album, error)
}

// Pipeline runs the stages for one query.
type Pipeline struct {
	dl       downloader.Downloader
	resolver Resolver
	albums   AlbumFinder
	http     *http.Client
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResolver enables music-link resolution.
func WithResolver(r Resolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

// WithAlbumFinder enables album lookup for sources without one.
func WithAlbumFinder(a AlbumFinder) Option {
	return func(p *Pipeline) { p.albums = a }
}

// New creates a pipeline backed by dl.
func New(dl downloader.Downloader, opts ...Option) *Pipeline {
	p := &Pipeline{
		dl:   dl,
		http: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run searches for query, downloads the best audio into dir and tags it.
// Files written to dir are left for the caller to remove.
func (p *Pipeline) Run(ctx context.Context, query, dir string) (*Result, error) {
	target, cover := p.target(ctx, query)

	d, err := p.dl.Download(ctx, target, dir)
	if err != nil {
		return nil, classify(err)
	}

	res := &Result{
		Path:   d.Path,
		Title:  firstNonEmpty(d.Title, UnknownTitle),
		Artist: firstNonEmpty(d.Artist, d.Uploader, UnknownArtist),
		Album:  firstNonEmpty(d.Album, UnknownAlbum),
	}

	if d.Album == "" && p.albums != nil {
		artist := firstNonEmpty(d.Artist, d.Uploader)
		if album, err := p.albums.FindAlbum(ctx, res.Title, artist); err == nil {
			res.Album = album.Name
			cover = firstNonEmpty(album.Cover, cover)
		} else {
			log.Debug().Err(err).Str("title", res.Title).Msg("album lookup")
		}
	}

	cover = firstNonEmpty(cover, d.Thumbnail)

	tags := metadata.Tags{Title: res.Title, Artist: res.Artist, Album: res.Album}
	if cover != "" {
		tags.Cover, tags.CoverMIME = p.fetchCover(ctx, cover)
	}
	if err := metadata.WriteFile(res.Path, tags); err != nil {
		// untagged audio is still worth sending
		log.Warn().Err(err).Str("path", res.Path).Msg("write tags")
	}

	return res, nil
}

// target picks what to hand to the downloader: a direct YouTube link when a
// music link resolves to one, search text otherwise.
func (p *Pipeline) target(ctx context.Context, query string) (target, cover string) {
	if p.resolver == nil || !songlink.IsMusicLink(query) {
		return downloader.Search(query), ""
	}

	t, err := p.resolver.Resolve(ctx, query)
	if err != nil {
		log.Debug().Err(err).Str("query", query).Msg("resolve music link")
		return downloader.Search(query), ""
	}
	if t.YouTubeURL != "" {
		return t.YouTubeURL, t.Cover
	}
	return downloader.Search(t.SearchText()), t.Cover
}

func (p *Pipeline) fetchCover(ctx context.Context, url string) ([]byte, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ""
	}
	resp, err := p.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("download cover")
		return nil, ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ""
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverSize))
	if err != nil {
		return nil, ""
	}
	return data, resp.Header.Get("Content-Type")
}

func classify(err error) error {
	switch {
	case errors.Is(err, downloader.ErrCredentials):
		return &Error{Kind: KindCredentials, Err: err}
	case errors.Is(err, downloader.ErrNotFound):
		return &Error{Kind: KindNotFound, Err: err}
	default:
		return &Error{Kind: KindDownload, Err: fmt.Errorf("download: %w", err)}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
