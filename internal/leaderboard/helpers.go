package leaderboard

import ws "github.com/gokatarajesh/codearena/pkg/http/ws"

func toWSEntries(entries []Entry) []ws.LeaderboardEntry {
	result := make([]ws.LeaderboardEntry, len(entries))
	for i, e := range entries {
		result[i] = ws.LeaderboardEntry{
			Rank:        e.Rank,
			UserID:      e.UserID.String(),
			DisplayName: e.DisplayName,
			TotalScore:  e.TotalScore,
			GamesPlayed: e.GamesPlayed,
			Wins:        e.Wins,
		}
	}
	return result
}
