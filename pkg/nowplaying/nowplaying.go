// Package nowplaying holds the normalized track shape shared by every
// metadata protocol, plus the song-change merge applied on each poll.
package nowplaying

import (
	"errors"
	"strings"
	"time"
)

// maxHistory is the number of displaced songs kept per stream.
const maxHistory = 2

// ErrUnsupported marks a stream that cannot deliver metadata over the
// protocol being polled. Monitors keep retrying but log it only once.
var ErrUnsupported = errors.New("metadata unsupported")

// Track is one normalized poll result. Artist may be empty when the
// protocol only carries a single title string.
type Track struct {
	Artist string `json:"artist,omitempty"`
	Title  string `json:"title,omitempty"`
	Raw    string `json:"raw"`
}

// Same reports whether two tracks are the same song. Identity is
// artist+title; Raw is display-only and ignored.
func (t Track) Same(o Track) bool {
	return t.Artist == o.Artist && t.Title == o.Title
}

// SplitTitle splits a combined "Artist - Title" string on the first
// separator. Without a separator the whole string is the title.
func SplitTitle(s string) Track {
	if artist, title, ok := strings.Cut(s, " - "); ok {
		return Track{
			Artist: strings.TrimSpace(artist),
			Title:  strings.TrimSpace(title),
			Raw:    s,
		}
	}
	return Track{Title: s, Raw: s}
}

// Song is a displaced history item.
type Song struct {
	Artist    string    `json:"artist,omitempty"`
	Title     string    `json:"title,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Entry is the cached state for one stream: the current track, when it
// was last observed, and up to two previously played songs,
// most-recent-first.
type Entry struct {
	Track
	Timestamp time.Time `json:"timestamp"`
	History   []Song    `json:"history,omitempty"`
}

// Merge folds a freshly polled track into the previous entry for the
// same stream and reports whether the song changed. An unchanged song
// refreshes Timestamp and Raw but leaves History alone. A new song
// pushes the previous entry onto History, capped at two items.
func Merge(prev *Entry, t Track, now time.Time) (Entry, bool) {
	if prev == nil {
		return Entry{Track: t, Timestamp: now}, true
	}

	if prev.Same(t) {
		next := *prev
		next.Raw = t.Raw
		next.Timestamp = now
		next.History = append([]Song(nil), prev.History...)
		return next, false
	}

	history := make([]Song, 0, maxHistory)
	history = append(history, Song{
		Artist:    prev.Artist,
		Title:     prev.Title,
		Timestamp: prev.Timestamp,
	})
	if len(prev.History) > 0 {
		history = append(history, prev.History[:min(len(prev.History), maxHistory-1)]...)
	}

	return Entry{Track: t, Timestamp: now, History: history}, true
}
