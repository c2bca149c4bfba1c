package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/availability-notifier/internal/domain/repository"
	"github.com/rs/zerolog"
)

type Handlers struct {
	publisher repo.EventPublisher
	outcomes  repo.OutcomeStore
	logger    zerolog.Logger
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(publisher repo.EventPublisher, outcomes repo.OutcomeStore, logger *zerolog.Logger) *Handlers {
	return &Handlers{
		publisher: publisher,
		outcomes:  outcomes,
		logger:    logger.With().Str("layer", "http_handler").Logger(),
	}
}

// RegisterRoutes sets up the routing for the availability API.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/products/:id/availability", h.PublishAvailability)
		api.GET("/products/:id/dispatches/latest", h.GetLatestDispatch)
	}
}

// PublishAvailability announces that a product is available again.
// The body is optional; without a date the worker uses its processing date.
func (h *Handlers) PublishAvailability(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	var req PublishAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn().Err(err).Msg("invalid request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	event := model.ProductAvailableEvent{ProductID: productID}
	if req.AvailableOn != "" {
		on, err := time.Parse(model.DateLayout, req.AvailableOn)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "availableOn must be a YYYY-MM-DD date"})
			return
		}
		event.AvailableOn = on
	}

	if err := h.publisher.Publish(c.Request.Context(), event); err != nil {
		h.logger.Error().Err(err).Int64("product_id", productID).Msg("failed to publish availability")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "failed to publish availability"})
		return
	}

	c.JSON(http.StatusAccepted, PublishAvailabilityResponse{
		ProductID:   productID,
		AvailableOn: req.AvailableOn,
		Status:      "accepted",
	})
}

// GetLatestDispatch returns the most recent dispatch outcome of a product.
func (h *Handlers) GetLatestDispatch(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	outcome, err := h.outcomes.Latest(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no dispatch recorded for product"})
			return
		}
		h.logger.Error().Err(err).Int64("product_id", productID).Msg("failed to get latest dispatch")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to retrieve dispatch"})
		return
	}

	c.JSON(http.StatusOK, toDispatchOutcomeResponse(outcome))
}

func parseProductID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product ID"})
		return 0, false
	}
	return id, true
}

// toDispatchOutcomeResponse is a helper function to map the domain model to the DTO.
func toDispatchOutcomeResponse(o *model.DispatchOutcome) DispatchOutcomeResponse {
	failed := make([]UserFailureResponse, 0, len(o.UsersFailed))
	for _, f := range o.UsersFailed {
		failed = append(failed, UserFailureResponse{UserID: f.UserID, Reason: f.Reason})
	}
	return DispatchOutcomeResponse{
		ID:            o.ID,
		ProductID:     o.ProductID,
		AvailableOn:   o.AvailableOn.Format(model.DateLayout),
		Status:        string(o.Status),
		UsersResolved: o.UsersResolved,
		UsersNotified: o.UsersNotified,
		UsersFailed:   failed,
		QueryError:    o.QueryError,
		StartedAt:     o.StartedAt,
		FinishedAt:    o.FinishedAt,
	}
}
