package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/lefinal/pairs-server/errors"
	"github.com/lefinal/pairs-server/game"
)

// DefaultLeaderboardLimit is the number of entries returned by Mall.Leaderboard
// if no valid limit is given.
const DefaultLeaderboardLimit = 10

// MaxLeaderboardLimit is the maximum number of entries returned by
// Mall.Leaderboard.
const MaxLeaderboardLimit = 100

// LeaderboardEntry holds aggregated results of all players with the same name.
type LeaderboardEntry struct {
	// Name is the player name.
	Name string `json:"name"`
	// Games is the number of finished games.
	Games int `json:"games"`
	// Wins is the number of won games.
	Wins int `json:"wins"`
	// BestScore is the highest score reached in a single game.
	BestScore int `json:"best_score"`
	// LastWinAt is the finish time of the last won game. It is not set if no
	// game was won.
	LastWinAt nulls.Time `json:"last_win_at"`
}

// RecordOutcome saves the given game.Outcome along with all player results.
// It returns the id of the created record.
func (m *Mall) RecordOutcome(ctx context.Context, outcome game.Outcome) (uuid.UUID, error) {
	resultID := uuid.New()
	// Begin tx.
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, errors.NewDBTxBeginError(err)
	}
	defer m.rollbackTx(ctx, tx, "record outcome failed")
	// Insert outcome.
	q, _, err := m.dialect.Insert(goqu.T("game_results")).Rows(goqu.Record{
		"id":          resultID.String(),
		"room_id":     outcome.RoomID,
		"difficulty":  string(outcome.Difficulty),
		"theme":       outcome.Theme,
		"reason":      string(outcome.Reason),
		"tie":         outcome.Tie,
		"finished_at": outcome.FinishedAt.UTC(),
	}).ToSQL()
	if err != nil {
		return uuid.Nil, errors.NewQueryToSQLError(err, errors.Details{"room_id": outcome.RoomID})
	}
	_, err = tx.Exec(ctx, q)
	if err != nil {
		return uuid.Nil, errors.NewExecQueryError(err, "insert game result", q)
	}
	// Insert player results.
	if len(outcome.Players) > 0 {
		rows := make([]interface{}, 0, len(outcome.Players))
		for _, p := range outcome.Players {
			rows = append(rows, goqu.Record{
				"result_id":     resultID.String(),
				"player_id":     p.PlayerID,
				"name":          p.Name,
				"score":         p.Score,
				"matched_pairs": p.MatchedPairs,
				"winner":        p.Winner,
			})
		}
		q, _, err = m.dialect.Insert(goqu.T("game_result_players")).Rows(rows...).ToSQL()
		if err != nil {
			return uuid.Nil, errors.NewQueryToSQLError(err, errors.Details{"room_id": outcome.RoomID})
		}
		_, err = tx.Exec(ctx, q)
		if err != nil {
			return uuid.Nil, errors.NewExecQueryError(err, "insert player results", q)
		}
	}
	// Commit tx.
	err = tx.Commit(ctx)
	if err != nil {
		return uuid.Nil, errors.NewDBTxCommitError(err)
	}
	return resultID, nil
}

// Leaderboard retrieves the best players ordered by wins and best score. The
// limit is clamped to MaxLeaderboardLimit and defaults to
// DefaultLeaderboardLimit.
func (m *Mall) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	limit = ClampLeaderboardLimit(limit)
	// Build query.
	q, _, err := m.dialect.From(goqu.T("game_result_players").As("p")).
		InnerJoin(goqu.T("game_results").As("r"), goqu.On(goqu.I("p.result_id").Eq(goqu.I("r.id")))).
		Select(goqu.I("p.name"),
			goqu.COUNT(goqu.Star()).As("games"),
			goqu.L("COUNT(*) FILTER (WHERE p.winner)").As("wins"),
			goqu.MAX(goqu.I("p.score")).As("best_score"),
			goqu.L("MAX(r.finished_at) FILTER (WHERE p.winner)").As("last_win_at")).
		GroupBy(goqu.I("p.name")).
		Order(goqu.C("wins").Desc(), goqu.C("best_score").Desc(), goqu.I("p.name").Asc()).
		Limit(uint(limit)).ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, nil)
	}
	// Query.
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, "query db", q)
	}
	defer rows.Close()
	// Scan.
	entries := make([]LeaderboardEntry, 0)
	for rows.Next() {
		var entry LeaderboardEntry
		err = rows.Scan(&entry.Name,
			&entry.Games,
			&entry.Wins,
			&entry.BestScore,
			&entry.LastWinAt)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, "scan row", q)
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.NewScanDBRowError(err, "read rows", q)
	}
	return entries, nil
}

// ClampLeaderboardLimit returns DefaultLeaderboardLimit for non-positive limits
// and caps the given one at MaxLeaderboardLimit.
func ClampLeaderboardLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}
