package roomstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/minhvu/quoterush/internal/domain"
)

// Top-level scalar fields of the room hash.
const (
	FieldStatus                   = "status"
	FieldCreatorID                = "creatorId"
	FieldCreatedAt                = "createdAt"
	FieldDifficulty               = "difficulty"
	FieldQuestionCount            = "questionCount"
	FieldGameMode                 = "gameMode"
	FieldQuestions                = "questions"
	FieldCurrentQuestionIndex     = "currentQuestionIndex"
	FieldCurrentQuestionStartTime = "currentQuestionStartTime"
	FieldPreloadMediaURL          = "preloadMediaUrl"
)

const (
	playerPrefix = "player:"
	answerPrefix = "answer:"
	lockedPrefix = "locked:"
)

// PlayerField names the hash field holding one player's entry.
func PlayerField(identity string) string {
	return playerPrefix + identity
}

// AnswerField names the hash field holding one (question, player)
// answer. Written at most once per pair.
func AnswerField(idx int, identity string) string {
	return fmt.Sprintf("%s%d:%s", answerPrefix, idx, identity)
}

// LockedField names the hash field holding the rush-mode lockout set
// for a question index.
func LockedField(idx int) string {
	return fmt.Sprintf("%s%d", lockedPrefix, idx)
}

type wireAnswer struct {
	Answer    string `json:"answer"`
	Timestamp int64  `json:"timestamp"` // unix milli, store server clock
}

func EncodePlayer(p domain.Player) string {
	b, _ := json.Marshal(p)
	return string(b)
}

func EncodeQuestions(qs []domain.Question) string {
	b, _ := json.Marshal(qs)
	return string(b)
}

func EncodeAnswer(a domain.Answer) string {
	b, _ := json.Marshal(wireAnswer{
		Answer:    a.Answer,
		Timestamp: a.Timestamp.UnixMilli(),
	})
	return string(b)
}

func EncodeLocked(identities []string) string {
	b, _ := json.Marshal(identities)
	return string(b)
}

func EncodeTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func EncodeInt(n int) string {
	return strconv.Itoa(n)
}

// DecodeRoom rebuilds a room from its raw hash fields. Decoding is
// tolerant of partially-written documents: unknown fields are skipped
// and absent game fields leave their zero values in place.
func DecodeRoom(code string, fields map[string]string) (*domain.Room, error) {
	r := &domain.Room{
		Code:                 code,
		Players:              make(map[string]domain.Player),
		Answers:              make(map[int]map[string]domain.Answer),
		LockedPlayers:        make(map[int][]string),
		CurrentQuestionIndex: -1,
	}

	for field, val := range fields {
		var err error
		switch {
		case field == FieldStatus:
			r.Status = domain.Status(val)
		case field == FieldCreatorID:
			r.CreatorID = val
		case field == FieldCreatedAt:
			r.CreatedAt, err = decodeTime(val)
		case field == FieldDifficulty:
			r.Difficulty = domain.Difficulty(val)
		case field == FieldQuestionCount:
			r.QuestionCount, err = strconv.Atoi(val)
		case field == FieldGameMode:
			r.GameMode = domain.Mode(val)
		case field == FieldQuestions:
			err = json.Unmarshal([]byte(val), &r.Questions)
		case field == FieldCurrentQuestionIndex:
			r.CurrentQuestionIndex, err = strconv.Atoi(val)
		case field == FieldCurrentQuestionStartTime:
			r.CurrentQuestionStartTime, err = decodeTime(val)
		case field == FieldPreloadMediaURL:
			r.PreloadMediaURL = val
		case strings.HasPrefix(field, playerPrefix):
			err = decodePlayer(r, strings.TrimPrefix(field, playerPrefix), val)
		case strings.HasPrefix(field, answerPrefix):
			err = decodeAnswer(r, strings.TrimPrefix(field, answerPrefix), val)
		case strings.HasPrefix(field, lockedPrefix):
			err = decodeLocked(r, strings.TrimPrefix(field, lockedPrefix), val)
		}

		if err != nil {
			return nil, fmt.Errorf("roomstore: decode room %s field %s: %w", code, field, err)
		}
	}

	return r, nil
}

func decodePlayer(r *domain.Room, identity, val string) error {
	var p domain.Player
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return err
	}

	r.Players[identity] = p
	return nil
}

func decodeAnswer(r *domain.Room, rest, val string) error {
	idxStr, identity, ok := strings.Cut(rest, ":")
	if !ok {
		return fmt.Errorf("malformed answer field %q", rest)
	}

	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return err
	}

	var w wireAnswer
	if err := json.Unmarshal([]byte(val), &w); err != nil {
		return err
	}

	if r.Answers[idx] == nil {
		r.Answers[idx] = make(map[string]domain.Answer)
	}
	r.Answers[idx][identity] = domain.Answer{
		Answer:    w.Answer,
		Timestamp: time.UnixMilli(w.Timestamp),
	}
	return nil
}

func decodeLocked(r *domain.Room, idxStr, val string) error {
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return err
	}

	var ids []string
	if err := json.Unmarshal([]byte(val), &ids); err != nil {
		return err
	}

	r.LockedPlayers[idx] = ids
	return nil
}

func decodeTime(val string) (time.Time, error) {
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	return time.UnixMilli(ms), nil
}

// GameFields lists every field belonging to the in-game portion of the
// document: the question set, cursor, and all recorded answers and
// lockouts. Used to clear game state on reset.
func GameFields(r *domain.Room) []string {
	fields := []string{
		FieldQuestions,
		FieldCurrentQuestionIndex,
		FieldCurrentQuestionStartTime,
		FieldPreloadMediaURL,
	}

	for idx, byPlayer := range r.Answers {
		for identity := range byPlayer {
			fields = append(fields, AnswerField(idx, identity))
		}
	}
	for idx := range r.LockedPlayers {
		fields = append(fields, LockedField(idx))
	}

	return fields
}
