package domain

import "time"

// Player holds a player's account and cumulative progression totals.
// PasswordHash is a bcrypt hash and never leaves the storage/auth layers.
type Player struct {
	PlayerID     string    `json:"player_id"`
	PasswordHash string    `json:"-"`
	TotalScore   int64     `json:"total_score"`
	MatchCount   int64     `json:"match_count"`
	Achievements []int64   `json:"achievements"`
	CreatedAt    time.Time `json:"created_at"`
}

// Skill is the derived matchmaking attribute: average score per match.
// Zero for players with no completed matches.
func (p *Player) Skill() float64 {
	if p.MatchCount == 0 {
		return 0
	}
	return float64(p.TotalScore) / float64(p.MatchCount)
}

// PlayerProfile is the API view of a player's own account.
type PlayerProfile struct {
	PlayerID     string  `json:"player_id"`
	TotalScore   int64   `json:"total_score"`
	MatchCount   int64   `json:"match_count"`
	Achievements []int64 `json:"achievements"`
}

// PlayerResult is one player's score delta in a submitted match result.
type PlayerResult struct {
	PlayerID   string `json:"player_id"`
	ScoreDelta int64  `json:"score_delta"`
}

// MatchResult is the body of a submit-match-result request.
type MatchResult struct {
	Players []PlayerResult `json:"players"`
}
