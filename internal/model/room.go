package model

import "slices"

// Room statuses on the wire.
const (
	RoomStatusWaiting = "waiting"
	RoomStatusPlaying = "playing"
)

// Room is a transient matchmaking container. Rooms live only in memory and
// are destroyed when the last member leaves. All mutation happens on the hub
// loop goroutine.
type Room struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	GameID     int      `json:"game_id"`
	GameName   string   `json:"game_name"`
	Host       string   `json:"host"`
	Members    []string `json:"members"`
	MaxPlayers int      `json:"max_players"`
	MinPlayers int      `json:"min_players"`
	Status     string   `json:"status"`
}

// HasMember reports whether username is in the room.
func (r *Room) HasMember(username string) bool {
	return slices.Contains(r.Members, username)
}

// IsFull reports whether the room has reached max_players.
func (r *Room) IsFull() bool {
	return len(r.Members) >= r.MaxPlayers
}

// RemoveMember drops username from the room, transferring the host role to
// the first remaining member when the host left. Returns true if the room is
// now empty and should be destroyed.
func (r *Room) RemoveMember(username string) bool {
	i := slices.Index(r.Members, username)
	if i >= 0 {
		r.Members = slices.Delete(r.Members, i, i+1)
	}
	if len(r.Members) == 0 {
		return true
	}
	if r.Host == username {
		r.Host = r.Members[0]
	}
	return false
}

// Snapshot returns a deep copy safe to hand to workers or marshal outside
// the hub loop.
func (r *Room) Snapshot() Room {
	cp := *r
	cp.Members = slices.Clone(r.Members)
	return cp
}
