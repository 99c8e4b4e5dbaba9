package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnswerValueNormalisesScalars(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		expected AnswerValue
	}{
		{"string", `"B"`, AnswerValue{"B"}},
		{"array", `["A","C"]`, AnswerValue{"A", "C"}},
		{"bool", `true`, AnswerValue{"true"}},
		{"number", `42`, AnswerValue{"42"}},
		{"null", `null`, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var value AnswerValue
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &value))
			require.Equal(t, tc.expected, value)
		})
	}
}

func TestAnswerValueAccessors(t *testing.T) {
	require.True(t, AnswerValue(nil).IsEmpty())
	require.Empty(t, AnswerValue(nil).First())
	require.Equal(t, "B", AnswerValue{"B", "C"}.First())
}

func TestGradeExamRequestDecodesMixedAnswerShapes(t *testing.T) {
	raw := `{
		"userId": "user-1",
		"examId": "exam-1",
		"answers": {
			"q1": "B",
			"q2": ["A", "C"],
			"q3": true,
			"q4": "print('hi')"
		},
		"questions": [
			{"id": "q1", "type": "multiple-choice", "points": 1, "correctAnswer": "B"},
			{"id": "q4", "type": "coding", "points": 2, "language": "python", "testCases": [
				{"input": "1", "expectedOutput": "1", "isHidden": true}
			]}
		]
	}`

	var payload GradeExamRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	require.Equal(t, AnswerValue{"B"}, payload.Answers["q1"])
	require.Equal(t, AnswerValue{"A", "C"}, payload.Answers["q2"])
	require.Equal(t, AnswerValue{"true"}, payload.Answers["q3"])
	require.Equal(t, AnswerValue{"B"}, payload.Questions[0].CorrectAnswer)
	require.True(t, payload.Questions[1].TestCases[0].IsHidden)
}
