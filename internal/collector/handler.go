package collector

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// pixel is a 1x1 transparent GIF.
var pixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// HitStore is the persistence the handler needs.
type HitStore interface {
	InsertHit(ctx context.Context, h Hit) (int64, error)
	ListHits(ctx context.Context, action string) ([]Hit, error)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Handler serves the event endpoints.
type Handler struct {
	store HitStore
	clock func() time.Time
}

func NewHandler(store HitStore) *Handler {
	return &Handler{store: store, clock: time.Now}
}

// Register mounts the collector routes on app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/healthz", h.Healthz)
	app.Get("/hits", h.ListHits)
	app.Get("/e/:file", h.RecordHit)
	app.Post("/e/:file", h.RecordHit)
}

func (h *Handler) Healthz(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// RecordHit stores GET (image) and POST (beacon) event requests and answers
// with a transparent pixel.
func (h *Handler) RecordHit(c *fiber.Ctx) error {
	file := c.Params("file")
	action, ok := strings.CutSuffix(file, ".gif")
	if !ok || action == "" {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "not_found"})
	}

	transport := "image"
	if c.Method() == fiber.MethodPost {
		transport = "beacon"
	}
	// The backend is lenient: a missing or malformed timestamp is stored as 0.
	ts, _ := strconv.ParseInt(c.Query("_"), 10, 64)

	hit := Hit{
		Action:     action,
		Transport:  transport,
		PID:        c.Query("pid"),
		CID:        c.Query("cid"),
		UUID:       c.Query("uuid"),
		CRE:        c.Query("cre"),
		TS:         ts,
		ReceivedAt: h.clock().UnixMilli(),
	}
	if _, err := h.store.InsertHit(c.UserContext(), hit); err != nil {
		if errors.Is(err, ErrInvalidHit) {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid_hit", Message: err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal_server_error"})
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderContentType, "image/gif")
	return c.Status(fiber.StatusOK).Send(pixel)
}

// ListHits returns stored hits, optionally filtered by ?action=.
func (h *Handler) ListHits(c *fiber.Ctx) error {
	hits, err := h.store.ListHits(c.UserContext(), strings.ToLower(strings.TrimSpace(c.Query("action"))))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal_server_error"})
	}
	return c.JSON(hits)
}
