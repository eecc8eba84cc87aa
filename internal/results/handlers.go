package results

import (
	"errors"

	"backend-runshare/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/pending", authMiddleware, func(c *fiber.Ctx) error {
		pending, err := svc.Pending(c.Context(), auth.UserID(c))
		if err != nil {
			return ErrorResponse(c, err)
		}
		return c.JSON(pending)
	})

	r.Post("/pending/:id/retry", authMiddleware, func(c *fiber.Ctx) error {
		res, err := svc.Retry(c.Context(), auth.Token(c), auth.UserID(c), c.Params("id"))
		if err != nil {
			return ErrorResponse(c, err)
		}
		return c.JSON(res)
	})
}

// ErrorResponse maps submission failures to 502 with the outbox id so the
// client can offer a retry.
func ErrorResponse(c *fiber.Ctx, err error) error {
	var subErr *SubmissionError
	switch {
	case errors.As(err, &subErr):
		body := fiber.Map{"error": "failed to save test result, retry later", "detail": subErr.Err.Error()}
		if subErr.Pending != nil {
			body["pending_id"] = subErr.Pending.ID
			body["attempts"] = subErr.Pending.Attempts
		}
		return c.Status(fiber.StatusBadGateway).JSON(body)
	case errors.Is(err, ErrInvalidUser):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPendingNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoOutbox):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
