package model

import (
	"math"
	"slices"
)

// Game kinds as declared in bundle manifests.
const (
	GameKindCLI = "CLI"
	GameKindGUI = "GUI"
)

// Version is one uploaded archive of a game.
type Version struct {
	Checksum    string `json:"checksum"`
	ArchivePath string `json:"path"`
}

// Review is a single player rating with its comment.
type Review struct {
	User    string  `json:"user"`
	Score   int     `json:"score"`
	Comment string  `json:"comment"`
	Time    float64 `json:"time"`
}

// Game is one catalogue entry. The zero value is not usable; entries are
// created by the catalogue on the first committed upload.
//
// Ownership is fixed at creation and never changes afterwards.
type Game struct {
	ID            int                `json:"id"`
	Name          string             `json:"name"`
	Owner         string             `json:"owner"`
	Description   string             `json:"description"`
	Kind          string             `json:"type"`
	MinPlayers    int                `json:"min_players"`
	MaxPlayers    int                `json:"max_players"`
	LatestVersion string             `json:"latest_version"`
	Versions      map[string]Version `json:"versions"`
	Reviews       []Review           `json:"reviews,omitempty"`
	PlayedBy      []string           `json:"played_by,omitempty"`
}

// AverageScore returns the mean review score rounded to one decimal,
// or 0 when there are no reviews.
func (g *Game) AverageScore() float64 {
	if len(g.Reviews) == 0 {
		return 0
	}
	total := 0
	for _, r := range g.Reviews {
		total += r.Score
	}
	avg := float64(total) / float64(len(g.Reviews))
	return math.Round(avg*10) / 10
}

// RecentReviews returns up to the last n reviews, oldest first.
func (g *Game) RecentReviews(n int) []Review {
	if len(g.Reviews) <= n {
		return g.Reviews
	}
	return g.Reviews[len(g.Reviews)-n:]
}

// HasPlayed reports whether username appears in the play history.
func (g *Game) HasPlayed(username string) bool {
	return slices.Contains(g.PlayedBy, username)
}

// MarkPlayed records the given players in the play history.
// Duplicates never accumulate. Returns true if the history changed.
func (g *Game) MarkPlayed(usernames []string) bool {
	changed := false
	for _, u := range usernames {
		if !slices.Contains(g.PlayedBy, u) {
			g.PlayedBy = append(g.PlayedBy, u)
			changed = true
		}
	}
	return changed
}
