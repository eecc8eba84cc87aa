package tracking

import (
	"errors"

	"backend-runshare/internal/auth"
	"backend-runshare/internal/results"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/sessions", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := svc.Create(auth.UserID(c))
		if err != nil {
			return sessionError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	r.Get("/sessions/:id", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := svc.Get(auth.UserID(c), c.Params("id"))
		if err != nil {
			return sessionError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/sessions/:id/start", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := svc.Start(auth.UserID(c), c.Params("id"))
		if err != nil {
			return sessionError(err)
		}
		return c.JSON(snap)
	})

	// Accepts either a single sample or {"samples": [...]} for devices that
	// batch readings between requests.
	r.Post("/sessions/:id/positions", authMiddleware, func(c *fiber.Ctx) error {
		var batch positionsRequest
		if err := c.BodyParser(&batch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if len(batch.Samples) == 0 {
			var single Sample
			if err := c.BodyParser(&single); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			batch.Samples = []Sample{single}
		}

		accepted := 0
		for _, sample := range batch.Samples {
			if err := svc.PushPosition(auth.UserID(c), c.Params("id"), sample); err != nil {
				if accepted > 0 {
					break
				}
				return sessionError(err)
			}
			accepted++
		}
		return c.Status(fiber.StatusAccepted).JSON(pushResponse{Accepted: accepted})
	})

	r.Post("/sessions/:id/position-errors", authMiddleware, func(c *fiber.Ctx) error {
		var req positionErrorRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := svc.PushPositionError(auth.UserID(c), c.Params("id"), req.Message); err != nil {
			return sessionError(err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Get("/sessions/:id/map", authMiddleware, func(c *fiber.Ctx) error {
		view, err := svc.Map(auth.UserID(c), c.Params("id"))
		if err != nil {
			return sessionError(err)
		}
		return c.JSON(view)
	})

	r.Delete("/sessions/:id", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := svc.Cancel(auth.UserID(c), c.Params("id"))
		if err != nil {
			return sessionError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/sessions/:id/result", authMiddleware, func(c *fiber.Ctx) error {
		res, err := svc.SubmitResult(c.Context(), auth.Token(c), auth.UserID(c), c.Params("id"))
		if err != nil {
			var subErr *results.SubmissionError
			if errors.As(err, &subErr) || errors.Is(err, results.ErrInvalidUser) {
				return results.ErrorResponse(c, err)
			}
			return sessionError(err)
		}
		return c.JSON(res)
	})
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidSample):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSessionActive),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrNotFinished),
		errors.Is(err, ErrSubmitted):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrFeedClosed):
		return fiber.NewError(fiber.StatusConflict, "session is not running")
	case errors.Is(err, ErrFeedFull):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
