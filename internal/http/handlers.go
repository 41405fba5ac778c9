package http

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campus-carbon/carbon-portal/internal/cloud"
	"github.com/campus-carbon/carbon-portal/internal/service"
)

// ReportLister lists archived reports for the admin console.
type ReportLister interface {
	ListReports(ctx context.Context, prefix string) ([]cloud.ArchivedReport, error)
}

type Options struct {
	CollectorSecret string
	AdminToken      string
	Reports         ReportLister
	// BaseContext outlives single requests; the scheduler and realtime streams run under it.
	BaseContext context.Context
}

type handlers struct {
	svcs *service.Services
	opts Options
}

// NewApp builds the fiber app with the JSON codec and middleware the API uses.
func NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "carbon-portal",
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestLogger())
	return app
}

func Register(app *fiber.App, svcs *service.Services, opts Options) {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	h := &handlers{svcs: svcs, opts: opts}

	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Get("/realtime", h.realtimeStream)
	api.Get("/realtime/initial", h.realtimeInitial)

	ops := api.Group("", bearerAuth(opts.CollectorSecret))
	ops.Post("/collect", h.runCollect)
	ops.Get("/collect", h.collectStatus)
	ops.Post("/scheduler", h.controlScheduler)
	ops.Get("/scheduler", h.schedulerStatus)

	admin := api.Group("/admin", adminAuth(opts.AdminToken))
	admin.Get("/energy", h.listEnergy)
	admin.Post("/energy", h.saveEnergy)
	admin.Put("/energy/:id", h.updateEnergy)
	admin.Delete("/energy/:id", h.deleteEnergy)
	admin.Get("/solar", h.listSolar)
	admin.Post("/solar", h.saveSolar)
	admin.Put("/solar/:id", h.updateSolar)
	admin.Delete("/solar/:id", h.deleteSolar)
	admin.Get("/reports", h.listReports)
}
