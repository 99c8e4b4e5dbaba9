package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/skora-go-api/internal/dto"
	"github.com/noah-isme/skora-go-api/internal/middleware"
	"github.com/noah-isme/skora-go-api/internal/service"
	"github.com/noah-isme/skora-go-api/internal/utils"
)

// GradingHandler exposes the grading trigger and job polling endpoints.
type GradingHandler struct {
	service service.GradingService
	logger  zerolog.Logger
}

// NewGradingHandler builds a grading handler instance.
func NewGradingHandler(service service.GradingService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service: service,
		logger:  logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Post("/grade", h.trigger)
	router.Get("/jobs/:id", h.getJob)
}

// trigger accepts a submission, creates the job record and returns
// immediately; grading runs on a goroutine detached from the request
// lifecycle because coding questions can take many seconds to finish.
func (h *GradingHandler) trigger(c *fiber.Ctx) error {
	var payload dto.GradeExamRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	job, err := h.service.StartJob(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	ctx := middleware.ContextWithCorrelation(context.Background(), middleware.GetCorrelationID(c))
	go h.service.Process(ctx, job.ID, payload)

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "Grading started", dto.NewGradingJobResponse(job))
}

func (h *GradingHandler) getJob(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "job id is required")
	}

	job, err := h.service.GetJob(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "job retrieved", job)
}

func (h *GradingHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "grading job not found")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
