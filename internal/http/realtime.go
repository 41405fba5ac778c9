package http

import (
	"bufio"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/campus-carbon/carbon-portal/internal/realtime"
)

func (h *handlers) realtimeStream(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")

	hub := h.svcs.Realtime
	base := h.opts.BaseContext
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		_ = hub.Serve(base, realtime.NewSSEWriter(w))
	}))
	return nil
}

func (h *handlers) realtimeInitial(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	return c.JSON(h.svcs.Realtime.Snapshotter().Initial(c.UserContext()))
}
