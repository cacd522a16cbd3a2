package handler

import (
	"communities/pkg/config"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type Router struct {
	handler Handler
	app     *fiber.App
	conf    *config.Config
	logger  *zap.SugaredLogger
}

func NewRouter(handler Handler, app *fiber.App, conf *config.Config, logger *zap.SugaredLogger) *Router {
	return &Router{
		logger:  logger,
		app:     app,
		conf:    conf,
		handler: handler,
	}
}

func (r *Router) RegisterRouter() {
	r.app.Get("/health", r.handler.HealthCheck)

	r.app.Use(
		recover.New(recover.Config{
			EnableStackTrace: true,
		}),
		logger.New(),
	)

	r.app.Route("/communities", func(router fiber.Router) {
		api := router.Group("/api")

		v1 := api.Group("/v1")

		v1.Post("/channels/:channelID/messages", r.handler.CreateMessage)
		v1.Get("/channels/:channelID/messages", r.handler.GetMessagesByChannel)
		v1.Get("/messages/:id", r.handler.GetMessage)
		v1.Patch("/messages/:id", r.handler.UpdateMessage)
		v1.Delete("/messages/:id", r.handler.DeleteMessage)
		v1.Post("/attachments/:id/sign", r.handler.SignAttachmentURL)
	})
}
