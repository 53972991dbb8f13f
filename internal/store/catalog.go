package store

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/udisondev/gamehub/internal/model"
)

var (
	ErrGameNotFound = errors.New("game not found")
	ErrNotOwner     = errors.New("you do not own this game")
	ErrNotPlayed    = errors.New("you must play this game first")
)

// UploadMeta is the metadata a developer declares in UPLOAD_INIT.
type UploadMeta struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	Description string `json:"description"`
	Kind        string `json:"type"`
	MinPlayers  int    `json:"min_players"`
	MaxPlayers  int    `json:"max_players"`
}

// Catalog is the authoritative in-memory table of games, versions, reviews,
// and play history, backed by a JSON snapshot written on every change.
//
// Methods return deep copies; the only mutation paths are the Commit/Add/Mark/
// Remove methods, so ownership and play-history invariants hold in one place.
type Catalog struct {
	mu    sync.RWMutex
	path  string
	games map[string]*model.Game
}

// NewCatalog loads the games snapshot at path, creating an empty catalogue
// when the file does not exist yet.
func NewCatalog(path string) (*Catalog, error) {
	c := &Catalog{
		path:  path,
		games: map[string]*model.Game{},
	}

	loaded := map[string]*model.Game{}
	found, err := readSnapshot(path, &loaded)
	if err != nil {
		return nil, fmt.Errorf("loading catalogue: %w", err)
	}
	if found {
		c.games = loaded
	}

	return c, nil
}

// Get returns a deep copy of the named game.
func (c *Catalog) Get(name string) (model.Game, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	g, ok := c.games[name]
	if !ok {
		return model.Game{}, false
	}
	return cloneGame(g), true
}

// GetByID returns a deep copy of the game with the given numeric id.
func (c *Catalog) GetByID(id int) (model.Game, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, g := range c.games {
		if g.ID == id {
			return cloneGame(g), true
		}
	}
	return model.Game{}, false
}

// List returns deep copies of all games ordered by id.
func (c *Catalog) List() []model.Game {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Game, 0, len(c.games))
	for _, g := range c.games {
		out = append(out, cloneGame(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OwnedBy returns deep copies of all games owned by the given developer,
// ordered by id.
func (c *Catalog) OwnedBy(owner string) []model.Game {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []model.Game
	for _, g := range c.games {
		if g.Owner == owner {
			out = append(out, cloneGame(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CommitUpload records a verified archive in the catalogue. A new name
// creates the game with the caller as immutable owner; an existing name
// requires the caller to be the owner and overwrites the mutable metadata
// from the newest manifest.
func (c *Catalog) CommitUpload(owner string, meta UploadMeta, archivePath string) (model.Game, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, exists := c.games[meta.Name]
	if exists {
		if g.Owner != owner {
			return model.Game{}, ErrNotOwner
		}
	} else {
		g = &model.Game{
			ID:       len(c.games) + 1,
			Name:     meta.Name,
			Owner:    owner,
			Versions: map[string]model.Version{},
		}
		c.games[meta.Name] = g
	}

	g.Description = meta.Description
	g.Kind = meta.Kind
	g.MinPlayers = meta.MinPlayers
	g.MaxPlayers = meta.MaxPlayers
	g.LatestVersion = meta.Version
	g.Versions[meta.Version] = model.Version{
		Checksum:    meta.Checksum,
		ArchivePath: archivePath,
	}

	c.persistLocked()
	return cloneGame(g), nil
}

// AddReview appends a review. The caller must appear in the game's play
// history. The score is clamped to 1..5.
func (c *Catalog) AddReview(name, user string, score int, comment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.games[name]
	if !ok {
		return ErrGameNotFound
	}
	if !g.HasPlayed(user) {
		return ErrNotPlayed
	}

	g.Reviews = append(g.Reviews, model.Review{
		User:    user,
		Score:   min(5, max(1, score)),
		Comment: comment,
		Time:    float64(time.Now().UnixNano()) / float64(time.Second),
	})

	c.persistLocked()
	return nil
}

// MarkPlayed adds the given players to the game's play history,
// deduplicated. The snapshot is written only when the history changed.
func (c *Catalog) MarkPlayed(name string, players []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.games[name]
	if !ok {
		return
	}
	if g.MarkPlayed(players) {
		c.persistLocked()
	}
}

// Remove deletes the catalogue entry. Owner-only; archives on disk are
// retained. The caller is responsible for checking room references first.
func (c *Catalog) Remove(name, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.games[name]
	if !ok {
		return ErrGameNotFound
	}
	if g.Owner != owner {
		return ErrNotOwner
	}

	delete(c.games, name)
	c.persistLocked()
	return nil
}

func (c *Catalog) persistLocked() {
	if err := writeSnapshot(c.path, c.games); err != nil {
		slog.Error("persisting games snapshot", "error", err)
	}
}

func cloneGame(g *model.Game) model.Game {
	cp := *g
	cp.Versions = maps.Clone(g.Versions)
	cp.Reviews = slices.Clone(g.Reviews)
	cp.PlayedBy = slices.Clone(g.PlayedBy)
	return cp
}
