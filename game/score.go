package game

import (
	"github.com/lefinal/pairs-server/deck"
	"time"
)

const (
	// MatchPoints is awarded for each found pair.
	MatchPoints = 10
	// ForfeitBonus is awarded to the remaining player when the opponent leaves a
	// running game.
	ForfeitBonus = 50
)

// FinishReason is the reason for a game being finished.
type FinishReason string

const (
	// FinishCompleted is used when all pairs were found.
	FinishCompleted FinishReason = "completed"
	// FinishForfeit is used when a player left a running game.
	FinishForfeit FinishReason = "forfeit"
)

// PlayerResult is the final result of a player.
type PlayerResult struct {
	PlayerID     string `json:"player_id"`
	Name         string `json:"name"`
	Score        int    `json:"score"`
	MatchedPairs int    `json:"matched_pairs"`
	Winner       bool   `json:"winner"`
}

// Outcome is the final result of a finished game.
type Outcome struct {
	RoomID     string          `json:"room_id"`
	Difficulty deck.Difficulty `json:"difficulty"`
	Theme      string          `json:"theme"`
	Reason     FinishReason    `json:"reason"`
	// Tie is set when a completed game ended with equal scores. No player is
	// winner then.
	Tie        bool           `json:"tie"`
	Players    []PlayerResult `json:"players"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Winner returns the result of the winning player.
func (o Outcome) Winner() (PlayerResult, bool) {
	for _, p := range o.Players {
		if p.Winner {
			return p, true
		}
	}
	return PlayerResult{}, false
}

// finishCompleted finishes the game after all pairs were found. The player with
// the strictly greater score wins.
func (r *Room) finishCompleted() {
	r.Phase = PhaseFinished
	r.FinishReason = FinishCompleted
	best := -1
	bestCount := 0
	for _, p := range r.Players {
		p.Active = false
		switch {
		case p.Score > best:
			best = p.Score
			bestCount = 1
		case p.Score == best:
			bestCount++
		}
	}
	for _, p := range r.Players {
		p.Winner = bestCount == 1 && p.Score == best
	}
}

// finishForfeit finishes the game with the given player winning
// unconditionally.
func (r *Room) finishForfeit(winner *Player) {
	r.Phase = PhaseFinished
	r.FinishReason = FinishForfeit
	winner.Score += ForfeitBonus
	winner.Active = false
	winner.Winner = true
}

// IsTie checks whether a completed game ended without winner.
func (r *Room) IsTie() bool {
	if r.Phase != PhaseFinished || r.FinishReason != FinishCompleted {
		return false
	}
	for _, p := range r.Players {
		if p.Winner {
			return false
		}
	}
	return true
}

// Outcome returns the Outcome of a finished game. Players that left a running
// game are included.
func (r *Room) Outcome(finishedAt time.Time) (Outcome, bool) {
	if r.Phase != PhaseFinished {
		return Outcome{}, false
	}
	o := Outcome{
		RoomID:     r.ID,
		Difficulty: r.Difficulty,
		Theme:      r.Theme,
		Reason:     r.FinishReason,
		Tie:        r.IsTie(),
		Players:    make([]PlayerResult, 0, len(r.Players)+len(r.departed)),
		FinishedAt: finishedAt,
	}
	add := func(p Player) {
		o.Players = append(o.Players, PlayerResult{
			PlayerID:     p.ID,
			Name:         p.Name,
			Score:        p.Score,
			MatchedPairs: p.MatchedPairs,
			Winner:       p.Winner,
		})
	}
	for _, p := range r.Players {
		add(*p)
	}
	for _, p := range r.departed {
		add(p)
	}
	return o, true
}
