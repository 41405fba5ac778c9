package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/campus-carbon/carbon-portal/internal/domain"
	"github.com/campus-carbon/carbon-portal/internal/repository"
	"github.com/campus-carbon/carbon-portal/internal/service"
)

// adminFailure is the message shown to console users for unexpected errors.
const adminFailure = "요청을 처리하는 중 오류가 발생했습니다."

func adminError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalid):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("admin request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": adminFailure})
}

func readingFilter(c *fiber.Ctx) repository.ReadingFilter {
	return repository.ReadingFilter{
		Year:     c.QueryInt("year"),
		Month:    c.QueryInt("month"),
		Building: c.Query("building"),
	}
}

func pathID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, service.ErrInvalid
	}
	return int64(id), nil
}

func (h *handlers) listEnergy(c *fiber.Ctx) error {
	rows, err := h.svcs.Repos.ListEnergy(c.UserContext(), readingFilter(c))
	if err != nil {
		return adminError(c, err)
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *handlers) saveEnergy(c *fiber.Ctx) error {
	var rd domain.EnergyReading
	if err := c.BodyParser(&rd); err != nil {
		return adminError(c, service.ErrInvalid)
	}
	rd.ID = 0
	action, err := h.svcs.Readings.SaveEnergy(c.UserContext(), &rd)
	if err != nil {
		return adminError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "action": action, "data": rd})
}

type energyValues struct {
	Electricity float64 `json:"electricity"`
	Gas         float64 `json:"gas"`
	Water       float64 `json:"water"`
}

func (h *handlers) updateEnergy(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return adminError(c, err)
	}
	var body energyValues
	if err := c.BodyParser(&body); err != nil {
		return adminError(c, service.ErrInvalid)
	}

	ctx := c.UserContext()
	rd, err := h.svcs.Repos.GetEnergy(ctx, id)
	if err != nil {
		return adminError(c, err)
	}
	rd.Electricity, rd.Gas, rd.Water = body.Electricity, body.Gas, body.Water
	if err := h.svcs.Readings.Validate(rd); err != nil {
		return adminError(c, err)
	}
	if err := h.svcs.Repos.UpdateEnergyValues(ctx, rd); err != nil {
		return adminError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": rd})
}

func (h *handlers) deleteEnergy(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return adminError(c, err)
	}
	if err := h.svcs.Repos.DeleteEnergy(c.UserContext(), id); err != nil {
		return adminError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *handlers) listSolar(c *fiber.Ctx) error {
	rows, err := h.svcs.Repos.ListSolar(c.UserContext(), readingFilter(c))
	if err != nil {
		return adminError(c, err)
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *handlers) saveSolar(c *fiber.Ctx) error {
	var rd domain.SolarReading
	if err := c.BodyParser(&rd); err != nil {
		return adminError(c, service.ErrInvalid)
	}
	rd.ID = 0
	action, err := h.svcs.Readings.SaveSolar(c.UserContext(), &rd)
	if err != nil {
		return adminError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "action": action, "data": rd})
}

type solarValues struct {
	Generation      float64 `json:"generation"`
	Capacity        float64 `json:"capacity"`
	SelfConsumption float64 `json:"self_consumption"`
	Trade           float64 `json:"trade"`
}

func (h *handlers) updateSolar(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return adminError(c, err)
	}
	var body solarValues
	if err := c.BodyParser(&body); err != nil {
		return adminError(c, service.ErrInvalid)
	}

	ctx := c.UserContext()
	rd, err := h.svcs.Repos.GetSolar(ctx, id)
	if err != nil {
		return adminError(c, err)
	}
	rd.Generation, rd.Capacity, rd.SelfConsumption, rd.Trade = body.Generation, body.Capacity, body.SelfConsumption, body.Trade
	if err := h.svcs.Readings.Validate(rd); err != nil {
		return adminError(c, err)
	}
	if err := h.svcs.Repos.UpdateSolarValues(ctx, rd); err != nil {
		return adminError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": rd})
}

func (h *handlers) deleteSolar(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return adminError(c, err)
	}
	if err := h.svcs.Repos.DeleteSolar(c.UserContext(), id); err != nil {
		return adminError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *handlers) listReports(c *fiber.Ctx) error {
	if h.opts.Reports == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "report archive disabled"})
	}
	items, err := h.opts.Reports.ListReports(c.UserContext(), c.Query("prefix", "reports/"))
	if err != nil {
		return adminError(c, err)
	}
	return c.JSON(fiber.Map{"data": items})
}
