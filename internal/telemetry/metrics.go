package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnswersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoterush_answers_submitted_total",
		Help: "Answers accepted into room documents.",
	})

	QuestionsAdvanced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoterush_questions_advanced_total",
		Help: "Question-advance transitions written by creator engines.",
	})

	GamesFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoterush_games_finished_total",
		Help: "Games transitioned to finished.",
	})
)
