package utils

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mapsync-service/internal/pkg/errors"
)

type SuccessResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Error *errors.AppError `json:"error"`
}

// Meta carries the generation ids a client can use to detect stale reads.
type Meta struct {
	Generations map[string]uint64 `json:"generations,omitempty"`
	Total       int               `json:"total,omitempty"`
}

func SendSuccess(c *fiber.Ctx, data interface{}, meta *Meta) error {
	return c.JSON(SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func SendAccepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(SuccessResponse{Data: data})
}

func SendError(c *fiber.Ctx, err error) error {
	appErr := errors.AsAppError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(ErrorResponse{
		Error: appErr,
	})
}
