package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/domain"
	apperrors "github.com/mapsync-service/internal/pkg/errors"
	"github.com/mapsync-service/internal/pkg/utils"
	"github.com/mapsync-service/internal/pkg/validator"
	"github.com/mapsync-service/internal/usecase"
	"github.com/mapsync-service/internal/usecase/dto"
)

// SessionHandler exposes one MapSession over HTTP.
type SessionHandler struct {
	session *usecase.MapSession
	logger  *zap.Logger
}

func NewSessionHandler(session *usecase.MapSession, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		session: session,
		logger:  logger,
	}
}

// MoveViewport - POST /api/v1/viewport
func (h *SessionHandler) MoveViewport(c *fiber.Ctx) error {
	var req dto.ViewportRequest
	if err := parse(c, &req); err != nil {
		return utils.SendError(c, err)
	}

	if err := h.session.MoveViewport(req.Viewport()); err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendAccepted(c, fiber.Map{"status": "scheduled"})
}

// RefreshVenues - POST /api/v1/viewport/refresh
func (h *SessionHandler) RefreshVenues(c *fiber.Ctx) error {
	if !h.session.RefreshVenues(c.UserContext()) {
		return utils.SendError(c, apperrors.ErrInvalidViewport.WithDetails(map[string]interface{}{
			"reason": "no viewport has been queried yet",
		}))
	}
	return utils.SendAccepted(c, fiber.Map{"status": "refreshing"})
}

// DrawRoute - POST /api/v1/route
func (h *SessionHandler) DrawRoute(c *fiber.Ctx) error {
	var req dto.RouteRequest
	if err := parse(c, &req); err != nil {
		return utils.SendError(c, err)
	}

	value, err := h.session.DrawRoute(c.UserContext(), req.Candidate())
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, dto.RouteResponse{Value: value, Color: value.Label.Color()}, &utils.Meta{
		Generations: h.session.Generations(),
	})
}

// ClearRoute - DELETE /api/v1/route
func (h *SessionHandler) ClearRoute(c *fiber.Ctx) error {
	h.session.ClearRoute()
	return c.SendStatus(fiber.StatusNoContent)
}

// CompareRoutes - POST /api/v1/route/compare
func (h *SessionHandler) CompareRoutes(c *fiber.Ctx) error {
	var req dto.CompareRequest
	if err := parse(c, &req); err != nil {
		return utils.SendError(c, err)
	}

	ranked, err := h.session.CompareRoutes(c.UserContext(), req.Candidates())
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, ranked, &utils.Meta{Total: len(ranked)})
}

// PollDisruptions - POST /api/v1/route/disruptions/poll
func (h *SessionHandler) PollDisruptions(c *fiber.Ctx) error {
	if !h.session.PollDisruptions() {
		return utils.SendError(c, apperrors.ErrInvalidRoute.WithDetails(map[string]interface{}{
			"reason": "no route is drawn",
		}))
	}
	return utils.SendAccepted(c, fiber.Map{"status": "polling"})
}

// ReportHazard - POST /api/v1/hazards
func (h *SessionHandler) ReportHazard(c *fiber.Ctx) error {
	var req dto.HazardRequest
	if err := parse(c, &req); err != nil {
		return utils.SendError(c, err)
	}

	hazard, err := h.session.ReportHazard(c.UserContext(), req.Position(), req.TTL(), req.Kind)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse{Data: dto.NewHazardResponse(hazard)})
}

// RemoveHazard - DELETE /api/v1/hazards/:id
func (h *SessionHandler) RemoveHazard(c *fiber.Ctx) error {
	if err := h.session.RemoveHazard(c.Params("id")); err != nil {
		return utils.SendError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SyncHazards - POST /api/v1/hazards/sync
func (h *SessionHandler) SyncHazards(c *fiber.Ctx) error {
	placed, err := h.session.SyncHazards(c.UserContext())
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, dto.SyncResponse{Placed: placed}, nil)
}

// GetState - GET /api/v1/state
func (h *SessionHandler) GetState(c *fiber.Ctx) error {
	return utils.SendSuccess(c, h.session.Snapshot(), &utils.Meta{
		Generations: h.session.Generations(),
	})
}

// DismissAdvisory - DELETE /api/v1/advisories/:class
func (h *SessionHandler) DismissAdvisory(c *fiber.Ctx) error {
	class, ok := domain.ParseRequestClass(c.Params("class"))
	if !ok {
		return utils.SendError(c, apperrors.ErrInvalidRequest.WithDetails(map[string]interface{}{
			"class": c.Params("class"),
		}))
	}
	if !h.session.DismissAdvisory(class) {
		return c.SendStatus(fiber.StatusNotFound)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// parse decodes the body into req and validates it.
func parse(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidRequest, err)
	}
	if err := validator.Validate(req); err != nil {
		return apperrors.ErrInvalidRequest.WithDetails(map[string]interface{}{
			"fields": validator.Describe(err),
		})
	}
	return nil
}
