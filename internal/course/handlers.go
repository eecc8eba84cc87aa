package course

import (
	"errors"
	"io"
	"strconv"

	"backend-runshare/internal/auth"
	"backend-runshare/internal/gpx"
	"backend-runshare/internal/shared/geo"
	"backend-runshare/internal/upstream"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/text/message"
)

const maxUploadBytes = 10 << 20

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/drafts/current", authMiddleware, func(c *fiber.Ctx) error {
		draft, err := svc.Draft(c.Context(), auth.UserID(c), printer(c))
		if err != nil {
			return courseError(err)
		}
		return c.JSON(draft)
	})

	r.Post("/drafts/current/points", authMiddleware, func(c *fiber.Ctx) error {
		var pt geo.Point
		if err := c.BodyParser(&pt); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		draft, err := svc.AddDraftPoint(c.Context(), auth.UserID(c), pt, printer(c))
		if err != nil {
			return courseError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(draft)
	})

	r.Delete("/drafts/current/points/last", authMiddleware, func(c *fiber.Ctx) error {
		draft, err := svc.UndoDraftPoint(c.Context(), auth.UserID(c), printer(c))
		if err != nil {
			return courseError(err)
		}
		return c.JSON(draft)
	})

	r.Delete("/drafts/current", authMiddleware, func(c *fiber.Ctx) error {
		draft, err := svc.ClearDraft(c.Context(), auth.UserID(c), printer(c))
		if err != nil {
			return courseError(err)
		}
		return c.JSON(draft)
	})

	r.Post("/drafts/current/publish", authMiddleware, func(c *fiber.Ctx) error {
		var req PublishRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		created, err := svc.PublishDraft(c.Context(), auth.Token(c), auth.UserID(c), req)
		if err != nil {
			return courseError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		q, err := listQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := svc.List(c.Context(), auth.Token(c), q, printer(c))
		if err != nil {
			return courseError(err)
		}
		return c.JSON(res)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		if fh.Size > maxUploadBytes {
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, "file too large")
		}
		f, err := fh.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		created, err := svc.Upload(c.Context(), auth.Token(c), auth.UserID(c), fh.Filename, data)
		if err != nil {
			return courseError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		detail, err := svc.Detail(c.Context(), auth.Token(c), auth.UserID(c), c.Params("id"), printer(c))
		if err != nil {
			return courseError(err)
		}
		return c.JSON(detail)
	})

	r.Get("/:id/file", authMiddleware, func(c *fiber.Ctx) error {
		data, err := svc.File(c.Context(), auth.Token(c), auth.UserID(c), c.Params("id"))
		if err != nil {
			return courseError(err)
		}
		c.Set(fiber.HeaderContentType, "application/gpx+xml")
		return c.Send(data)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Delete(c.Context(), auth.Token(c), auth.UserID(c), c.Params("id")); err != nil {
			return courseError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func printer(c *fiber.Ctx) *message.Printer {
	return PrinterFor(c.Get(fiber.HeaderAcceptLanguage))
}

func listQuery(c *fiber.Ctx) (ListQuery, error) {
	q := ListQuery{
		UserID: auth.UserID(c),
		Sort:   c.Query("sort"),
		Page:   c.QueryInt("page", 0),
		Size:   c.QueryInt("size", 0),
	}
	for name, dst := range map[string]**float64{"lat": &q.Lat, "lng": &q.Lng} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ListQuery{}, errors.New(name + " must be a number")
		}
		*dst = &v
	}
	return q, nil
}

func courseError(err error) error {
	var httpErr *upstream.HTTPError
	switch {
	case errors.Is(err, ErrNoCoordinates), errors.Is(err, gpx.ErrParse):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidFile), errors.Is(err, ErrInvalidPoint), errors.Is(err, ErrInvalidQuery):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDraftTooShort):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.As(err, &httpErr):
		if httpErr.StatusCode == fiber.StatusNotFound {
			return fiber.NewError(fiber.StatusNotFound, "course not found")
		}
		return fiber.NewError(fiber.StatusBadGateway, "course server error: "+httpErr.Status)
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
