package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/campus-carbon/carbon-portal/internal/collector"
)

const recentLogLimit = 10

func (h *handlers) runCollect(c *fiber.Ctx) error {
	res, err := h.svcs.Supervisor.RunNow(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "result": res})
}

func (h *handlers) collectStatus(c *fiber.Ctx) error {
	ctx := c.UserContext()
	last, err := h.svcs.Repos.LastSuccessfulCollection(ctx)
	if err != nil {
		return internalError(c, err)
	}
	logs, err := h.svcs.Repos.RecentCollectionLogs(ctx, recentLogLimit)
	if err != nil {
		return internalError(c, err)
	}

	out := fiber.Map{
		"last_success": last,
		"recent_logs":  logs,
		"scheduler":    h.svcs.Supervisor.Status(),
	}
	if state := h.svcs.Collector.UpstreamState(); state != "" {
		out["breaker"] = state
	}
	return c.JSON(out)
}

type schedulerRequest struct {
	Action string `json:"action"`
}

func (h *handlers) controlScheduler(c *fiber.Ctx) error {
	var req schedulerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	sup := h.svcs.Supervisor
	switch req.Action {
	case "start":
		if err := sup.Start(h.opts.BaseContext); err != nil {
			return internalError(c, err)
		}
	case "stop":
		sup.Stop()
	case "status":
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown action: " + req.Action})
	}
	return c.JSON(schedulerResponse(req.Action, sup.Status()))
}

func (h *handlers) schedulerStatus(c *fiber.Ctx) error {
	return c.JSON(schedulerResponse("status", h.svcs.Supervisor.Status()))
}

func schedulerResponse(action string, st collector.Status) fiber.Map {
	return fiber.Map{"success": true, "action": action, "status": st}
}

func internalError(c *fiber.Ctx, err error) error {
	log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
