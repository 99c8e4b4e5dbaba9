package service

import (
	"math"
	"strings"

	"github.com/noah-isme/skora-go-api/internal/dto"
)

// gradeFixedForm scores a deterministic (non-coding) question. It is a total
// function: malformed or missing answers score zero, they never error.
func gradeFixedForm(question dto.Question, answer dto.AnswerValue) dto.QuestionResult {
	result := dto.QuestionResult{
		QuestionID: question.ID,
		UserAnswer: answer,
		MaxPoints:  question.Points,
	}

	var correct bool
	switch question.Type {
	case dto.QuestionTypeMultipleChoice:
		correct = multipleChoiceCorrect(question.CorrectAnswer, answer)
	case dto.QuestionTypeTrueFalse:
		correct = trueFalseCorrect(question.CorrectAnswer, answer)
	case dto.QuestionTypeShortAnswer:
		correct = shortAnswerCorrect(question.CorrectAnswer, answer)
	}

	if correct {
		result.EarnedPoints = question.Points
		result.IsCorrect = true
	}

	return result
}

// multipleChoiceCorrect handles both single-answer and multi-answer (set)
// semantics. Multi-answer requires exact set equality: an extra selection is
// as wrong as a missing one.
func multipleChoiceCorrect(expected, submitted dto.AnswerValue) bool {
	if expected.IsEmpty() {
		return false
	}

	if len(expected) > 1 {
		if len(submitted) != len(expected) {
			return false
		}

		chosen := make(map[string]bool, len(submitted))
		for _, value := range submitted {
			chosen[value] = true
		}

		for _, value := range expected {
			if !chosen[value] {
				return false
			}
		}

		return true
	}

	return !submitted.IsEmpty() && submitted.First() == expected.First()
}

func trueFalseCorrect(expected, submitted dto.AnswerValue) bool {
	if expected.IsEmpty() || submitted.IsEmpty() {
		return false
	}

	return submitted.First() == expected.First()
}

// shortAnswerCorrect compares case-insensitively after trimming, accepting a
// match against any one of the listed answers.
func shortAnswerCorrect(accepted, submitted dto.AnswerValue) bool {
	if submitted.IsEmpty() {
		return false
	}

	given := strings.ToLower(strings.TrimSpace(submitted.First()))
	if given == "" {
		return false
	}

	for _, candidate := range accepted {
		if given == strings.ToLower(strings.TrimSpace(candidate)) {
			return true
		}
	}

	return false
}

// buildCodingResult converts a test case run into a question result with
// proportional credit. Full credit requires every case to pass.
func buildCodingResult(question dto.Question, answer dto.AnswerValue, run dto.CodingRun) dto.QuestionResult {
	result := dto.QuestionResult{
		QuestionID: question.ID,
		UserAnswer: answer,
		MaxPoints:  question.Points,
		CodingRun:  &run,
	}

	if run.Total == 0 {
		return result
	}

	result.EarnedPoints = round2(float64(run.Passed) / float64(run.Total) * question.Points)
	result.IsCorrect = run.Passed == run.Total

	return result
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
