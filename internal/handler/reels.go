package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/reelsmith/api/internal/model"
	"github.com/reelsmith/api/internal/service"
	"github.com/reelsmith/api/internal/store"
	"github.com/reelsmith/api/pkg/response"
)

type ReelsHandler struct {
	service   *service.MontageService
	validator *validator.Validate
}

func NewReelsHandler(svc *service.MontageService, v *validator.Validate) *ReelsHandler {
	return &ReelsHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/reels/jobs
func (h *ReelsHandler) Submit(c *fiber.Ctx) error {
	var req model.MontageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.Context(), &req)
	if err != nil {
		if isRequestError(err) {
			return response.ValidationError(c, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/reels/jobs/:jobId
func (h *ReelsHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Status(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/reels/jobs/:jobId/cancel
func (h *ReelsHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// isRequestError reports whether err is one of the synchronous submission
// errors that map to a 400.
func isRequestError(err error) bool {
	for _, sentinel := range []error{
		service.ErrInsufficientSources,
		service.ErrMusicUnavailable,
		service.ErrInvalidDurationBounds,
		service.ErrInvalidSegmentLength,
		service.ErrInvalidFileCount,
		service.ErrUnsupportedAspect,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
