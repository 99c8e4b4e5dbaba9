package dto

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/noah-isme/skora-go-api/internal/models"
)

// Question type identifiers accepted in a grading request.
const (
	QuestionTypeMultipleChoice = "multiple-choice"
	QuestionTypeTrueFalse      = "true-false"
	QuestionTypeShortAnswer    = "short-answer"
	QuestionTypeCoding         = "coding"
)

// AnswerValue is a submitted or expected answer. Clients send either a single
// scalar (string, bool, number) or an array of them; both are normalised to a
// list of strings so graders can treat single- and multi-valued answers
// uniformly.
type AnswerValue []string

// UnmarshalJSON accepts a scalar or an array of scalars.
func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch value := raw.(type) {
	case nil:
		*a = nil
	case []interface{}:
		values := make([]string, 0, len(value))
		for _, item := range value {
			values = append(values, scalarToString(item))
		}
		*a = values
	default:
		*a = []string{scalarToString(value)}
	}

	return nil
}

// MarshalJSON emits a single scalar for one-element answers and an array otherwise.
func (a AnswerValue) MarshalJSON() ([]byte, error) {
	if len(a) == 1 {
		return json.Marshal(a[0])
	}
	return json.Marshal([]string(a))
}

// First returns the first value, or an empty string when nothing was submitted.
func (a AnswerValue) First() string {
	if len(a) == 0 {
		return ""
	}
	return a[0]
}

// IsEmpty reports whether the answer carries no values at all.
func (a AnswerValue) IsEmpty() bool {
	return len(a) == 0
}

func scalarToString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// TestCase is one (input, expected output) pair checked against a coding answer.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsHidden       bool   `json:"isHidden,omitempty"`
}

// Question describes one question definition inside a grading request.
type Question struct {
	ID            string      `json:"id" validate:"required"`
	Type          string      `json:"type" validate:"required,oneof=multiple-choice true-false short-answer coding"`
	Points        float64     `json:"points" validate:"gte=0"`
	CorrectAnswer AnswerValue `json:"correctAnswer,omitempty"`
	Language      string      `json:"language,omitempty"`
	TestCases     []TestCase  `json:"testCases,omitempty"`
}

// GradeExamRequest is the trigger payload that starts a grading job.
type GradeExamRequest struct {
	JobID     string                 `json:"jobId"`
	UserID    string                 `json:"userId" validate:"required"`
	ExamID    string                 `json:"examId" validate:"required"`
	Answers   map[string]AnswerValue `json:"answers"`
	Questions []Question             `json:"questions" validate:"required,min=1,dive"`
	StartTime time.Time              `json:"startTime"`
}

// TestCaseResult reports the outcome of a single test case, in input order.
type TestCaseResult struct {
	TestIndex      int    `json:"testIndex"`
	Passed         bool   `json:"passed"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	ActualOutput   string `json:"actualOutput"`
	Error          string `json:"error,omitempty"`
	IsHidden       bool   `json:"isHidden,omitempty"`
}

// CodingRun aggregates the test case outcomes for one coding question.
type CodingRun struct {
	Passed  int              `json:"passed"`
	Total   int              `json:"total"`
	Results []TestCaseResult `json:"results"`
}

// QuestionResult records the grading outcome for a single question.
type QuestionResult struct {
	QuestionID   string      `json:"questionId"`
	UserAnswer   AnswerValue `json:"userAnswer"`
	EarnedPoints float64     `json:"earnedPoints"`
	MaxPoints    float64     `json:"maxPoints"`
	IsCorrect    bool        `json:"isCorrect"`
	CodingRun    *CodingRun  `json:"codingRun,omitempty"`
}

// ExamResultPayload is the final result attached to a completed job.
type ExamResultPayload struct {
	Questions       []QuestionResult `json:"questions"`
	EarnedPoints    float64          `json:"earnedPoints"`
	TotalPoints     float64          `json:"totalPoints"`
	Percentage      float64          `json:"percentage"`
	Grade           string           `json:"grade"`
	DurationSeconds int64            `json:"durationSeconds"`
	CompletedAt     time.Time        `json:"completedAt"`
}

// GradingJobResponse is returned to pollers watching a job.
type GradingJobResponse struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	ExamID          string          `json:"examId"`
	Status          string          `json:"status"`
	Progress        int             `json:"progress"`
	GradedQuestions int             `json:"gradedQuestions"`
	TotalQuestions  int             `json:"totalQuestions"`
	ResultData      json.RawMessage `json:"resultData,omitempty"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// NewGradingJobResponse converts the persisted job record to its API shape.
func NewGradingJobResponse(job models.GradingJob) GradingJobResponse {
	response := GradingJobResponse{
		ID:              job.ID,
		UserID:          job.UserID,
		ExamID:          job.ExamID,
		Status:          job.Status,
		Progress:        job.Progress,
		GradedQuestions: job.GradedQuestions,
		TotalQuestions:  job.TotalQuestions,
		ErrorMessage:    job.ErrorMessage,
		UpdatedAt:       job.UpdatedAt,
	}

	if len(job.ResultData) > 0 {
		response.ResultData = json.RawMessage(job.ResultData)
	}

	return response
}
