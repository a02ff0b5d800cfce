package domain

const (
	EventNameGameFinished       = "game.finished"
	EventNameResultRecorded     = "result.recorded"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// EventGameFinished is published by the creator's engine once the
// final advancement write lands.
type EventGameFinished struct {
	Code   string
	Mode   Mode
	Scores map[string]int
}

func (EventGameFinished) Name() string { return EventNameGameFinished }

type EventResultRecorded struct {
	Result GameResult
}

func (EventResultRecorded) Name() string { return EventNameResultRecorded }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
