package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/skora-go-api/internal/dto"
	"github.com/noah-isme/skora-go-api/internal/models"
	"github.com/noah-isme/skora-go-api/internal/repository"
)

type stubJobRepo struct {
	mu          sync.Mutex
	jobs        map[string]*models.GradingJob
	progressSeq []int
	statusSeq   []string
	updateErr   error
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{jobs: map[string]*models.GradingJob{}}
}

func (s *stubJobRepo) Create(ctx context.Context, job *models.GradingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *stubJobRepo) GetByID(ctx context.Context, id string) (models.GradingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.GradingJob{}, gorm.ErrRecordNotFound
	}
	return *job, nil
}

func (s *stubJobRepo) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return s.updateErr
	}

	job, ok := s.jobs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}

	for key, value := range fields {
		switch key {
		case "status":
			job.Status = value.(string)
			s.statusSeq = append(s.statusSeq, job.Status)
		case "progress":
			job.Progress = value.(int)
			s.progressSeq = append(s.progressSeq, job.Progress)
		case "graded_questions":
			job.GradedQuestions = value.(int)
		case "total_questions":
			job.TotalQuestions = value.(int)
		case "result_data":
			job.ResultData = value.(datatypes.JSON)
		case "error_message":
			job.ErrorMessage = value.(string)
		}
	}
	job.UpdatedAt = time.Now()

	return nil
}

func (s *stubJobRepo) job(t *testing.T, id string) models.GradingJob {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	require.True(t, ok)
	return *job
}

type stubResultRepo struct {
	mu      sync.Mutex
	created []models.ExamResult
	err     error
}

func (s *stubResultRepo) Create(ctx context.Context, result *models.ExamResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, *result)
	return nil
}

func (s *stubResultRepo) GetByUserAndExam(ctx context.Context, userID, examID string) (models.ExamResult, error) {
	return models.ExamResult{}, gorm.ErrRecordNotFound
}

type stubDraftRepo struct {
	mu      sync.Mutex
	deleted [][2]string
	err     error
}

func (s *stubDraftRepo) Create(ctx context.Context, draft *models.ExamDraft) error {
	return nil
}

func (s *stubDraftRepo) GetByUserAndExam(ctx context.Context, userID, examID string) (models.ExamDraft, error) {
	return models.ExamDraft{}, gorm.ErrRecordNotFound
}

func (s *stubDraftRepo) DeleteByUserAndExam(ctx context.Context, userID, examID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, [2]string{userID, examID})
	return nil
}

type stubRunner struct {
	mu    sync.Mutex
	calls int
	run   func(code, language string, testCases []dto.TestCase) dto.CodingRun
}

func (s *stubRunner) Run(ctx context.Context, code, language string, testCases []dto.TestCase) dto.CodingRun {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.run != nil {
		return s.run(code, language, testCases)
	}

	results := make([]dto.TestCaseResult, len(testCases))
	for i := range testCases {
		results[i] = dto.TestCaseResult{TestIndex: i, Passed: true}
	}
	return dto.CodingRun{Passed: len(testCases), Total: len(testCases), Results: results}
}

type gradingFixture struct {
	service GradingService
	jobs    *stubJobRepo
	results *stubResultRepo
	drafts  *stubDraftRepo
	runner  *stubRunner
}

func newGradingFixture(cache *redis.Client) gradingFixture {
	jobs := newStubJobRepo()
	results := &stubResultRepo{}
	drafts := &stubDraftRepo{}
	runner := &stubRunner{}
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewGradingService(jobs, results, drafts, runner, cache, time.Minute, validate, zerolog.Nop())

	return gradingFixture{service: svc, jobs: jobs, results: results, drafts: drafts, runner: runner}
}

func mixedExamPayload() dto.GradeExamRequest {
	return dto.GradeExamRequest{
		UserID: "user-1",
		ExamID: "exam-1",
		Answers: map[string]dto.AnswerValue{
			"q1": {"B"},
			"q2": {"paris"},
			"q3": {"print(input())"},
		},
		Questions: []dto.Question{
			{ID: "q1", Type: dto.QuestionTypeMultipleChoice, Points: 1, CorrectAnswer: dto.AnswerValue{"B"}},
			{ID: "q2", Type: dto.QuestionTypeShortAnswer, Points: 1, CorrectAnswer: dto.AnswerValue{"paris", "Paris "}},
			{ID: "q3", Type: dto.QuestionTypeCoding, Points: 2, Language: "python", TestCases: []dto.TestCase{
				{Input: "1", ExpectedOutput: "1"},
				{Input: "2", ExpectedOutput: "2"},
			}},
		},
		StartTime: time.Now().Add(-90 * time.Second),
	}
}

func TestGradingServiceCompletesMixedExam(t *testing.T) {
	fixture := newGradingFixture(nil)
	payload := mixedExamPayload()

	job, err := fixture.service.StartJob(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, models.GradingJobStatusPending, job.Status)
	require.Equal(t, 3, job.TotalQuestions)

	fixture.service.Process(context.Background(), job.ID, payload)

	final := fixture.jobs.job(t, job.ID)
	require.Equal(t, models.GradingJobStatusCompleted, final.Status)
	require.Equal(t, 100, final.Progress)
	require.Equal(t, 3, final.GradedQuestions)
	require.Empty(t, final.ErrorMessage)
	require.NotEmpty(t, final.ResultData)

	require.Len(t, fixture.results.created, 1)
	record := fixture.results.created[0]
	require.Equal(t, 4.0, record.EarnedPoints)
	require.Equal(t, 4.0, record.TotalPoints)
	require.Equal(t, 100.0, record.Percentage)
	require.Equal(t, "A", record.Grade)
	require.GreaterOrEqual(t, record.DurationSeconds, int64(90))

	require.Equal(t, [][2]string{{"user-1", "exam-1"}}, fixture.drafts.deleted)

	// Progress must be monotonic and end at exactly 100.
	previous := 0
	for _, value := range fixture.jobs.progressSeq {
		require.GreaterOrEqual(t, value, previous)
		previous = value
	}
	require.Equal(t, 100, previous)
	require.Equal(t, []string{models.GradingJobStatusProcessing, models.GradingJobStatusCompleted}, fixture.jobs.statusSeq)
}

func TestGradingServicePartialCodingCreditStillCompletes(t *testing.T) {
	fixture := newGradingFixture(nil)
	fixture.runner.run = func(code, language string, testCases []dto.TestCase) dto.CodingRun {
		results := make([]dto.TestCaseResult, len(testCases))
		for i := range testCases {
			results[i] = dto.TestCaseResult{TestIndex: i, Error: "Traceback"}
		}
		results[0].Passed = true
		results[0].Error = ""
		return dto.CodingRun{Passed: 1, Total: len(testCases), Results: results}
	}

	payload := dto.GradeExamRequest{
		UserID:  "user-2",
		ExamID:  "exam-2",
		Answers: map[string]dto.AnswerValue{"q1": {"code"}},
		Questions: []dto.Question{
			{ID: "q1", Type: dto.QuestionTypeCoding, Points: 3, Language: "python", TestCases: []dto.TestCase{
				{Input: "1", ExpectedOutput: "1"},
				{Input: "2", ExpectedOutput: "2"},
				{Input: "3", ExpectedOutput: "3"},
				{Input: "4", ExpectedOutput: "4"},
			}},
		},
	}

	job, err := fixture.service.StartJob(context.Background(), payload)
	require.NoError(t, err)
	fixture.service.Process(context.Background(), job.ID, payload)

	final := fixture.jobs.job(t, job.ID)
	require.Equal(t, models.GradingJobStatusCompleted, final.Status)

	require.Len(t, fixture.results.created, 1)
	require.InDelta(t, 0.75, fixture.results.created[0].EarnedPoints, 0.001)
	require.Equal(t, "F", fixture.results.created[0].Grade)
}

func TestGradingServiceBlankCodeSkipsSandbox(t *testing.T) {
	fixture := newGradingFixture(nil)

	payload := dto.GradeExamRequest{
		UserID:  "user-3",
		ExamID:  "exam-3",
		Answers: map[string]dto.AnswerValue{"q1": {"   \n\t"}},
		Questions: []dto.Question{
			{ID: "q1", Type: dto.QuestionTypeCoding, Points: 5, Language: "go", TestCases: []dto.TestCase{
				{Input: "1", ExpectedOutput: "1"},
			}},
		},
	}

	job, err := fixture.service.StartJob(context.Background(), payload)
	require.NoError(t, err)
	fixture.service.Process(context.Background(), job.ID, payload)

	require.Zero(t, fixture.runner.calls)

	final := fixture.jobs.job(t, job.ID)
	require.Equal(t, models.GradingJobStatusCompleted, final.Status)
	require.Len(t, fixture.results.created, 1)
	require.Zero(t, fixture.results.created[0].EarnedPoints)
}

func TestGradingServiceZeroTotalPoints(t *testing.T) {
	fixture := newGradingFixture(nil)

	payload := dto.GradeExamRequest{
		UserID:  "user-4",
		ExamID:  "exam-4",
		Answers: map[string]dto.AnswerValue{"q1": {"true"}},
		Questions: []dto.Question{
			{ID: "q1", Type: dto.QuestionTypeTrueFalse, Points: 0, CorrectAnswer: dto.AnswerValue{"true"}},
		},
	}

	job, err := fixture.service.StartJob(context.Background(), payload)
	require.NoError(t, err)
	fixture.service.Process(context.Background(), job.ID, payload)

	require.Len(t, fixture.results.created, 1)
	require.Zero(t, fixture.results.created[0].Percentage)
	require.Equal(t, "F", fixture.results.created[0].Grade)
}

func TestGradingServiceFansOutCodingQuestions(t *testing.T) {
	fixture := newGradingFixture(nil)
	fixture.runner.run = func(code, language string, testCases []dto.TestCase) dto.CodingRun {
		time.Sleep(5 * time.Millisecond)
		results := make([]dto.TestCaseResult, len(testCases))
		for i := range testCases {
			results[i] = dto.TestCaseResult{TestIndex: i, Passed: true}
		}
		return dto.CodingRun{Passed: len(testCases), Total: len(testCases), Results: results}
	}

	questions := make([]dto.Question, 3)
	answers := map[string]dto.AnswerValue{}
	for i := range questions {
		id := string(rune('a' + i))
		questions[i] = dto.Question{ID: id, Type: dto.QuestionTypeCoding, Points: 1, Language: "python", TestCases: []dto.TestCase{{Input: "1", ExpectedOutput: "1"}}}
		answers[id] = dto.AnswerValue{"code"}
	}

	payload := dto.GradeExamRequest{UserID: "user-5", ExamID: "exam-5", Answers: answers, Questions: questions}

	job, err := fixture.service.StartJob(context.Background(), payload)
	require.NoError(t, err)
	fixture.service.Process(context.Background(), job.ID, payload)

	require.Equal(t, 3, fixture.runner.calls)
	final := fixture.jobs.job(t, job.ID)
	require.Equal(t, models.GradingJobStatusCompleted, final.Status)
	require.Equal(t, 100, final.Progress)
	require.Len(t, fixture.results.created, 1)
	require.Equal(t, 3.0, fixture.results.created[0].EarnedPoints)
}

func TestGradingServiceFailsJobWhenResultInsertFails(t *testing.T) {
	fixture := newGradingFixture(nil)
	fixture.results.err = errors.New("connection reset")

	payload := mixedExamPayload()
	job, err := fixture.service.StartJob(context.Background(), payload)
	require.NoError(t, err)
	fixture.service.Process(context.Background(), job.ID, payload)

	final := fixture.jobs.job(t, job.ID)
	require.Equal(t, models.GradingJobStatusFailed, final.Status)
	require.Contains(t, final.ErrorMessage, "persist result")

	// The draft must survive a failed job so the student can resubmit.
	require.Empty(t, fixture.drafts.deleted)
}

func TestGradingServiceTreatsDuplicateResultAsSuccess(t *testing.T) {
	fixture := newGradingFixture(nil)
	fixture.results.err = repository.ErrDuplicateResult

	payload := mixedExamPayload()
	job, err := fixture.service.StartJob(context.Background(), payload)
	require.NoError(t, err)
	fixture.service.Process(context.Background(), job.ID, payload)

	final := fixture.jobs.job(t, job.ID)
	require.Equal(t, models.GradingJobStatusCompleted, final.Status)
	require.Equal(t, [][2]string{{"user-1", "exam-1"}}, fixture.drafts.deleted)
}

func TestGradingServiceRecoversFromRunnerPanic(t *testing.T) {
	fixture := newGradingFixture(nil)
	fixture.runner.run = func(code, language string, testCases []dto.TestCase) dto.CodingRun {
		panic("malformed testcase definition")
	}

	payload := mixedExamPayload()
	job, err := fixture.service.StartJob(context.Background(), payload)
	require.NoError(t, err)
	fixture.service.Process(context.Background(), job.ID, payload)

	final := fixture.jobs.job(t, job.ID)
	require.Equal(t, models.GradingJobStatusFailed, final.Status)
	require.Contains(t, final.ErrorMessage, "grading panicked")
	require.Empty(t, fixture.drafts.deleted)
}

func TestGradingServiceValidatesTriggerPayload(t *testing.T) {
	fixture := newGradingFixture(nil)

	_, err := fixture.service.StartJob(context.Background(), dto.GradeExamRequest{ExamID: "exam-1"})
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))
}

func TestGradingServiceGetJobNotFound(t *testing.T) {
	fixture := newGradingFixture(nil)

	_, err := fixture.service.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestGradingServiceCachesJobSnapshots(t *testing.T) {
	server := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { cache.Close() })

	fixture := newGradingFixture(cache)
	payload := mixedExamPayload()

	job, err := fixture.service.StartJob(context.Background(), payload)
	require.NoError(t, err)
	require.True(t, server.Exists("grading:job:"+job.ID))

	polled, err := fixture.service.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, models.GradingJobStatusPending, polled.Status)

	fixture.service.Process(context.Background(), job.ID, payload)

	polled, err = fixture.service.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, models.GradingJobStatusCompleted, polled.Status)
	require.Equal(t, 100, polled.Progress)
	require.NotEmpty(t, polled.ResultData)
}
