package domain

import "time"

// Status is the phase of a room. Transitions only run
// waiting -> in-game -> finished, plus finished -> waiting on reset.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusInGame   Status = "in-game"
	StatusFinished Status = "finished"
)

// Mode selects the scoring policy for a game.
type Mode string

const (
	// ModeNormal scores every player independently per question.
	ModeNormal Mode = "normal"
	// ModeRush awards only the first correct answer per question.
	ModeRush Mode = "rush"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// TimeLimit is the per-question countdown for the difficulty.
func (d Difficulty) TimeLimit() time.Duration {
	switch d {
	case DifficultyMedium:
		return 20 * time.Second
	case DifficultyHard:
		return 15 * time.Second
	default:
		return 30 * time.Second
	}
}

// Room is the shared session document. Every participant reads it in
// full; writes go through the room store as atomic field updates.
type Room struct {
	Code      string    `json:"code"`
	Status    Status    `json:"status"`
	CreatorID string    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`

	Players map[string]Player `json:"players"`

	// Questions is populated once at game start and immutable until
	// the next reset. CurrentQuestionIndex is -1 outside a game.
	Questions                []Question `json:"questions,omitempty"`
	CurrentQuestionIndex     int        `json:"current_question_index"`
	CurrentQuestionStartTime time.Time  `json:"current_question_start_time,omitempty"`

	// Answers maps question index -> player identity -> answer.
	Answers map[int]map[string]Answer `json:"answers,omitempty"`
	// LockedPlayers maps question index -> identities excluded from
	// scoring after a wrong attempt. Rush mode only.
	LockedPlayers map[int][]string `json:"locked_players,omitempty"`

	Difficulty      Difficulty `json:"difficulty"`
	QuestionCount   int        `json:"question_count"`
	GameMode        Mode       `json:"game_mode"`
	PreloadMediaURL string     `json:"preload_media_url,omitempty"`
}

type Player struct {
	Name    string `json:"name"`
	Score   int    `json:"score"`
	IsReady bool   `json:"is_ready"`
}

type Question struct {
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Media         *Media   `json:"media,omitempty"`
	Source        string   `json:"source,omitempty"` // film|game
	Type          int      `json:"type"`
}

type Media struct {
	ImageURL  string `json:"image_url,omitempty"`
	AudioURL  string `json:"audio_url,omitempty"`
	QuoteText string `json:"quote_text,omitempty"`
}

// Answer carries the store-assigned write time, never a client clock.
type Answer struct {
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// AllReady reports whether the room has players and all readied up.
func (r *Room) AllReady() bool {
	for _, p := range r.Players {
		if !p.IsReady {
			return false
		}
	}
	return len(r.Players) > 0
}

// HasAnswered reports whether the identity already answered the index.
func (r *Room) HasAnswered(idx int, identity string) bool {
	_, ok := r.Answers[idx][identity]
	return ok
}

// IsLockedOut reports whether the identity is excluded from the index
// after a wrong rush-mode attempt.
func (r *Room) IsLockedOut(idx int, identity string) bool {
	for _, id := range r.LockedPlayers[idx] {
		if id == identity {
			return true
		}
	}
	return false
}

// CurrentQuestion returns the open question, or false outside a game.
func (r *Room) CurrentQuestion() (Question, bool) {
	if r.Status != StatusInGame || r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex >= len(r.Questions) {
		return Question{}, false
	}
	return r.Questions[r.CurrentQuestionIndex], true
}

// GameResult is one finished game reported by one player session.
type GameResult struct {
	ResultID   string
	Identity   string
	Score      int
	Mode       Mode
	RecordTime time.Time
}

// Leaderboard is the per-mode global top list, sorted by score in
// descending order.
type Leaderboard struct {
	Mode    Mode
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	Identity string
	Score    int
}
