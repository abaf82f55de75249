// Package downloader fetches the best audio stream for a search query or a
// video link with yt-dlp and converts it to MP3.
package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCredentials means the cookie file is missing or was rejected.
	ErrCredentials = errors.New("downloader: search backend credentials unavailable")
	// ErrNotFound means the search returned nothing.
	ErrNotFound = errors.New("downloader: no results")
)

// Download is a finished audio file plus the metadata yt-dlp reported.
type Download struct {
	Path      string
	Title     string
	Artist    string
	Album     string
	Uploader  string
	Thumbnail string
}

// Downloader is an interface for downloading tracks
type Downloader interface {
	// Download fetches target (a URL or a search expression) into dir.
	Download(ctx context.Context, target, dir string) (*Download, error)
}

// Runner executes a command and returns its stdout and stderr.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// YTDLP downloads through the yt-dlp binary.
type YTDLP struct {
	binary  string
	cookies string
	run     Runner
}

// Option configures YTDLP.
type Option func(*YTDLP)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(y *YTDLP) { y.run = r }
}

// NewYTDLP creates a downloader using binary and the cookie file at cookies.
func NewYTDLP(binary, cookies string, opts ...Option) *YTDLP {
	if binary == "" {
		binary = "yt-dlp"
	}
	y := &YTDLP{binary: binary, cookies: cookies, run: execRunner}
	for _, o := range opts {
		o(y)
	}
	return y
}

// Search turns free text into a yt-dlp search expression for the top hit.
func Search(query string) string {
	return "ytsearch1:" + query
}

type videoInfo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
	Uploader  string `json:"uploader"`
	Thumbnail string `json:"thumbnail"`
}

// Download implements Downloader.
func (y *YTDLP) Download(ctx context.Context, target, dir string) (*Download, error) {
	if _, err := os.Stat(y.cookies); err != nil {
		return nil, fmt.Errorf("%w: cookie file %q: %v", ErrCredentials, y.cookies, err)
	}

	name := uuid.NewString()
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--cookies", y.cookies,
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--print-json",
		"-o", filepath.Join(dir, name+".%(ext)s"),
		target,
	}

	stdout, stderr, err := y.run(ctx, y.binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("yt-dlp: %w", ctx.Err())
		}
		if credentialProblem(stderr) {
			return nil, fmt.Errorf("%w: %s", ErrCredentials, firstLine(stderr))
		}
		return nil, fmt.Errorf("yt-dlp: %w: %s", err, firstLine(stderr))
	}

	info, err := parseInfo(stdout)
	if err != nil {
		return nil, err
	}

	path, err := findOutput(dir, name)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("id", info.ID).Str("path", path).Msg("yt-dlp download finished")

	return &Download{
		Path:      path,
		Title:     info.Title,
		Artist:    info.Artist,
		Album:     info.Album,
		Uploader:  info.Uploader,
		Thumbnail: info.Thumbnail,
	}, nil
}

// parseInfo reads the first JSON document yt-dlp printed.
func parseInfo(stdout []byte) (*videoInfo, error) {
	for _, line := range bytes.Split(stdout, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var info videoInfo
		if err := json.Unmarshal(line, &info); err != nil {
			return nil, fmt.Errorf("decode yt-dlp output: %w", err)
		}
		return &info, nil
	}
	return nil, ErrNotFound
}

// findOutput locates the converted file, preferring the .mp3.
func findOutput(dir, name string) (string, error) {
	mp3 := filepath.Join(dir, name+".mp3")
	if _, err := os.Stat(mp3); err == nil {
		return mp3, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	matches, _ := filepath.Glob(filepath.Join(dir, name+".*"))
	if len(matches) > 0 {
		return matches[0], nil
	}
	return "", fmt.Errorf("yt-dlp produced no file in %s", dir)
}

var credentialHints = []string{
	"sign in to confirm",
	"cookies",
	"login required",
	"http error 403",
}

func credentialProblem(stderr []byte) bool {
	s := strings.ToLower(string(stderr))
	for _, h := range credentialHints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
