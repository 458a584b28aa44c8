package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bobby-s-dev/firerisk/internal/models"
	"github.com/bobby-s-dev/firerisk/internal/services"
)

// RiskPredictor is implemented by *services.Predictor.
type RiskPredictor interface {
	PredictByName(ctx context.Context, location string) (*models.RiskAssessment, error)
	PredictByCoordinates(ctx context.Context, lat, lon float64) (*models.RiskAssessment, error)
	ModelName() string
	ModelLoaded() bool
}

type Handler struct {
	predictor RiskPredictor
	logger    *zap.Logger
}

func NewHandler(predictor RiskPredictor, logger *zap.Logger) *Handler {
	return &Handler{
		predictor: predictor,
		logger:    logger,
	}
}

type predictRequest struct {
	Location *string `json:"location"`
}

type coordinatesRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// GetIndex handles GET /
func (h *Handler) GetIndex(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "Fire Risk Prediction API",
		"model":   h.predictor.ModelName(),
		"endpoints": fiber.Map{
			"health":      "GET /api/health",
			"predict":     "POST /api/predict",
			"coordinates": "POST /api/predict/coordinates",
			"metrics":     "GET /metrics",
		},
	})
}

// GetHealth handles GET /api/health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	if !h.predictor.ModelLoaded() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":       "unhealthy",
			"model_loaded": false,
		})
	}
	return c.JSON(fiber.Map{
		"status":       "healthy",
		"model_loaded": true,
		"model":        h.predictor.ModelName(),
	})
}

// PostPredict handles POST /api/predict
func (h *Handler) PostPredict(c *fiber.Ctx) error {
	var req predictRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Location == nil || *req.Location == "" {
		return badRequest(c, "Location is required")
	}

	assessment, err := h.predictor.PredictByName(c.UserContext(), *req.Location)
	if err != nil {
		return h.predictionError(c, err)
	}
	return c.JSON(assessment)
}

// PostPredictCoordinates handles POST /api/predict/coordinates
func (h *Handler) PostPredictCoordinates(c *fiber.Ctx) error {
	var req coordinatesRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Latitude == nil || req.Longitude == nil {
		return badRequest(c, "Latitude and longitude are required")
	}

	assessment, err := h.predictor.PredictByCoordinates(c.UserContext(), *req.Latitude, *req.Longitude)
	if err != nil {
		return h.predictionError(c, err)
	}
	return c.JSON(assessment)
}

func (h *Handler) predictionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrMissingLocation):
		return badRequest(c, "Location is required")

	case errors.Is(err, services.ErrInvalidCoordinates):
		return badRequest(c, err.Error())

	case errors.Is(err, services.ErrProviderNotConfigured):
		h.logger.Error("Weather provider not configured", zap.String("path", c.Path()))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Weather provider API key is not configured",
			"type":    "configuration_error",
			"success": false,
		})

	case errors.Is(err, services.ErrProviderUnavailable):
		h.logger.Error("Weather lookup failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "Could not fetch weather data",
			"details": err.Error(),
			"success": false,
		})
	}
	return err
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   msg,
		"success": false,
	})
}

// ErrorHandler is the Fiber error boundary for anything a handler did not
// turn into a response itself.
func ErrorHandler(c *fiber.Ctx, err error) error {
	zap.L().Error("HTTP error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err))

	// Default to 500 status code
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   err.Error(),
		"success": false,
	})
}
