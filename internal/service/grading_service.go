package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/skora-go-api/internal/dto"
	"github.com/noah-isme/skora-go-api/internal/models"
	"github.com/noah-isme/skora-go-api/internal/observability"
	"github.com/noah-isme/skora-go-api/internal/repository"
)

// ErrJobNotFound indicates the grading job cannot be located.
var ErrJobNotFound = errors.New("grading job not found")

// GradingService owns grading jobs end to end: the trigger path creates the
// job record, Process drives it to a terminal state, and GetJob serves
// pollers.
type GradingService interface {
	StartJob(ctx context.Context, payload dto.GradeExamRequest) (models.GradingJob, error)
	Process(ctx context.Context, jobID string, payload dto.GradeExamRequest)
	GetJob(ctx context.Context, id string) (dto.GradingJobResponse, error)
}

type gradingService struct {
	jobs      repository.GradingJobRepository
	results   repository.ExamResultRepository
	drafts    repository.ExamDraftRepository
	runner    TestCaseRunner
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewGradingService constructs the grading orchestrator.
func NewGradingService(jobs repository.GradingJobRepository, results repository.ExamResultRepository, drafts repository.ExamDraftRepository, runner TestCaseRunner, cache *redis.Client, cacheTTL time.Duration, validate *validator.Validate, logger zerolog.Logger) GradingService {
	return &gradingService{
		jobs:      jobs,
		results:   results,
		drafts:    drafts,
		runner:    runner,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger.With().Str("component", "grading_service").Logger(),
		now:       time.Now,
	}
}

// StartJob validates the trigger payload and creates the job record in
// pending state. It does not grade anything; the caller is expected to hand
// the job to Process on a detached goroutine.
func (s *gradingService) StartJob(ctx context.Context, payload dto.GradeExamRequest) (models.GradingJob, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.GradingJob{}, err
	}

	jobID := strings.TrimSpace(payload.JobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}

	job := models.GradingJob{
		ID:             jobID,
		UserID:         payload.UserID,
		ExamID:         payload.ExamID,
		Status:         models.GradingJobStatusPending,
		TotalQuestions: len(payload.Questions),
	}

	if err := s.jobs.Create(ctx, &job); err != nil {
		return models.GradingJob{}, err
	}

	s.cacheSnapshot(ctx, job)

	return job, nil
}

// Process grades the submission and drives the job to completed or failed.
// There is no caller left to observe an error once the trigger has returned,
// so every failure path, panics included, ends in a failed job record rather
// than a job stuck in processing.
func (s *gradingService) Process(ctx context.Context, jobID string, payload dto.GradeExamRequest) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job_id", jobID).Interface("panic", r).Msg("grading goroutine panicked")
			s.failJob(ctx, jobID, fmt.Sprintf("grading panicked: %v", r))
		}
	}()

	started := s.now()
	if err := s.process(ctx, jobID, payload); err != nil {
		observability.GradingJobs().WithLabelValues(models.GradingJobStatusFailed).Inc()
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("grading job failed")
		s.failJob(ctx, jobID, err.Error())
		return
	}

	observability.GradingJobs().WithLabelValues(models.GradingJobStatusCompleted).Inc()
	observability.GradingDuration().Observe(s.now().Sub(started).Seconds())
}

func (s *gradingService) process(ctx context.Context, jobID string, payload dto.GradeExamRequest) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	job.Status = models.GradingJobStatusProcessing
	job.TotalQuestions = len(payload.Questions)
	if err := s.persistJob(ctx, &job, map[string]interface{}{
		"status":          job.Status,
		"total_questions": job.TotalQuestions,
	}); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	results := make([]dto.QuestionResult, len(payload.Questions))

	// Phase 1: deterministic questions, sequential, with per-question
	// progress so pollers see movement immediately.
	var codingIndexes []int
	for i, question := range payload.Questions {
		if question.Type == dto.QuestionTypeCoding {
			codingIndexes = append(codingIndexes, i)
			continue
		}

		results[i] = gradeFixedForm(question, payload.Answers[question.ID])
		if err := s.advanceProgress(ctx, &job); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
	}

	// Phase 2: coding questions fan out concurrently; each run is bounded
	// internally by the runner's batch size.
	if len(codingIndexes) > 0 {
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			phaseErr error
		)

		for _, index := range codingIndexes {
			wg.Add(1)
			go func(index int) {
				defer wg.Done()
				// A panic here would escape the orchestrator's own
				// recover, so convert it into a phase error instead.
				defer func() {
					if r := recover(); r != nil {
						mu.Lock()
						defer mu.Unlock()
						if phaseErr == nil {
							phaseErr = fmt.Errorf("grading panicked: %v", r)
						}
					}
				}()

				question := payload.Questions[index]
				answer := payload.Answers[question.ID]
				result := s.gradeCoding(ctx, question, answer)

				mu.Lock()
				defer mu.Unlock()
				results[index] = result
				if err := s.advanceProgress(ctx, &job); err != nil && phaseErr == nil {
					phaseErr = fmt.Errorf("update progress: %w", err)
				}
			}(index)
		}

		wg.Wait()
		if phaseErr != nil {
			return phaseErr
		}
	}

	resultPayload := s.aggregate(results, payload.StartTime)

	if err := s.persistResult(ctx, payload, resultPayload); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}

	// The draft is how the UI detects an unfinished exam; it must not
	// survive a successful grade.
	if err := s.drafts.DeleteByUserAndExam(ctx, payload.UserID, payload.ExamID); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}

	resultJSON, err := json.Marshal(resultPayload)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	job.Status = models.GradingJobStatusCompleted
	job.Progress = 100
	job.GradedQuestions = job.TotalQuestions
	job.ResultData = datatypes.JSON(resultJSON)
	if err := s.persistJob(ctx, &job, map[string]interface{}{
		"status":           job.Status,
		"progress":         job.Progress,
		"graded_questions": job.GradedQuestions,
		"result_data":      job.ResultData,
	}); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", payload.UserID).
		Str("exam_id", payload.ExamID).
		Float64("earned", resultPayload.EarnedPoints).
		Float64("total", resultPayload.TotalPoints).
		Str("grade", resultPayload.Grade).
		Msg("grading job completed")

	return nil
}

// gradeCoding short-circuits blank submissions and questions without test
// cases to zero credit without touching the sandbox.
func (s *gradingService) gradeCoding(ctx context.Context, question dto.Question, answer dto.AnswerValue) dto.QuestionResult {
	code := answer.First()
	if strings.TrimSpace(code) == "" || len(question.TestCases) == 0 {
		run := dto.CodingRun{Total: len(question.TestCases), Results: []dto.TestCaseResult{}}
		result := buildCodingResult(question, answer, run)
		result.EarnedPoints = 0
		result.IsCorrect = false
		return result
	}

	run := s.runner.Run(ctx, code, question.Language, question.TestCases)
	return buildCodingResult(question, answer, run)
}

func (s *gradingService) aggregate(results []dto.QuestionResult, startTime time.Time) dto.ExamResultPayload {
	var earned, total float64
	for _, result := range results {
		earned += result.EarnedPoints
		total += result.MaxPoints
	}

	percentage := 0.0
	if total > 0 {
		percentage = round2(earned / total * 100)
	}

	completedAt := s.now()
	var durationSeconds int64
	if !startTime.IsZero() && completedAt.After(startTime) {
		durationSeconds = int64(completedAt.Sub(startTime).Seconds())
	}

	return dto.ExamResultPayload{
		Questions:       results,
		EarnedPoints:    round2(earned),
		TotalPoints:     round2(total),
		Percentage:      percentage,
		Grade:           letterGrade(percentage),
		DurationSeconds: durationSeconds,
		CompletedAt:     completedAt,
	}
}

func (s *gradingService) persistResult(ctx context.Context, payload dto.GradeExamRequest, result dto.ExamResultPayload) error {
	questionsJSON, err := json.Marshal(result.Questions)
	if err != nil {
		return fmt.Errorf("encode question results: %w", err)
	}

	record := models.ExamResult{
		UserID:          payload.UserID,
		ExamID:          payload.ExamID,
		Questions:       datatypes.JSON(questionsJSON),
		EarnedPoints:    result.EarnedPoints,
		TotalPoints:     result.TotalPoints,
		Percentage:      result.Percentage,
		Grade:           result.Grade,
		DurationSeconds: result.DurationSeconds,
	}

	err = s.results.Create(ctx, &record)
	if errors.Is(err, repository.ErrDuplicateResult) {
		// A concurrent trigger for the same submission already saved a
		// result; converging on that row is the correct outcome.
		s.logger.Warn().
			Str("user_id", payload.UserID).
			Str("exam_id", payload.ExamID).
			Msg("exam result already recorded, keeping existing row")
		return nil
	}

	return err
}

// advanceProgress bumps the graded counter by one and persists the derived
// percentage. Progress only ever moves forward.
func (s *gradingService) advanceProgress(ctx context.Context, job *models.GradingJob) error {
	job.GradedQuestions++
	if job.TotalQuestions > 0 {
		job.Progress = job.GradedQuestions * 100 / job.TotalQuestions
	}

	return s.persistJob(ctx, job, map[string]interface{}{
		"graded_questions": job.GradedQuestions,
		"progress":         job.Progress,
	})
}

func (s *gradingService) persistJob(ctx context.Context, job *models.GradingJob, fields map[string]interface{}) error {
	if err := s.jobs.UpdateFields(ctx, job.ID, fields); err != nil {
		return err
	}

	job.UpdatedAt = s.now()
	s.cacheSnapshot(ctx, *job)

	return nil
}

func (s *gradingService) failJob(ctx context.Context, jobID string, message string) {
	fields := map[string]interface{}{
		"status":        models.GradingJobStatusFailed,
		"error_message": message,
	}

	if err := s.jobs.UpdateFields(ctx, jobID, fields); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to mark job failed")
		return
	}

	if job, err := s.jobs.GetByID(ctx, jobID); err == nil {
		s.cacheSnapshot(ctx, job)
	}
}

// GetJob serves pollers, preferring the cached snapshot over the database.
func (s *gradingService) GetJob(ctx context.Context, id string) (dto.GradingJobResponse, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, jobCacheKey(id)).Result(); err == nil {
			var response dto.GradingJobResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read job cache")
		}
	}

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradingJobResponse{}, ErrJobNotFound
		}
		return dto.GradingJobResponse{}, err
	}

	response := dto.NewGradingJobResponse(job)
	s.cacheResponse(ctx, response)

	return response, nil
}

func (s *gradingService) cacheSnapshot(ctx context.Context, job models.GradingJob) {
	s.cacheResponse(ctx, dto.NewGradingJobResponse(job))
}

func (s *gradingService) cacheResponse(ctx context.Context, response dto.GradingJobResponse) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, jobCacheKey(response.ID), payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("job_id", response.ID).Msg("failed to store job cache")
	}
}

func jobCacheKey(id string) string {
	return fmt.Sprintf("grading:job:%s", id)
}

// letterGrade maps a percentage to the fixed grade thresholds.
func letterGrade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	default:
		return "F"
	}
}
