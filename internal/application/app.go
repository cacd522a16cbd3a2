package application

import (
	"communities/internal/application/common"
	"communities/internal/application/repo"
	"communities/internal/application/routing"
	"communities/internal/application/service"
	"communities/internal/application/use-cases"
	"communities/internal/controllers/cron"
	"communities/internal/controllers/handler"
	"communities/internal/transport/content"
	"communities/internal/transport/publisher"
	"communities/pkg/broker"
	"communities/pkg/config"
	"communities/pkg/db"
	"communities/pkg/httpclient"
	"communities/pkg/metrics"
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type App struct {
	ctx            context.Context
	conf           *config.Config
	logger         *zap.SugaredLogger
	postgres       *db.Postgres
	httpServer     *fiber.App
	cronController *cron.Controller
}

func NewApp(
	ctx context.Context,
	conf *config.Config,
	logger *zap.SugaredLogger,
	postgres *db.Postgres,
	httpServer *fiber.App,
	rabbit *broker.RabbitBroker,
	routes *routing.Table,
	m *metrics.Metrics) *App {
	//Логируем версию приложения
	logger.Infof("Запуск Communities Service версии: %s", common.Version)

	store := repo.NewRepo(postgres, logger, m)
	tx := repo.NewTransactions(store, logger)
	pub := publisher.NewPublisher(rabbit, routes, logger, m)
	// Запрос presigned URL идемпотентен, поэтому ходим через retry-клиент
	httpCli := httpclient.NewRetryClient(httpclient.NewClient(conf.HTTPClient), conf.HTTPClient.MaxRetries, logger)
	contentCli := content.NewClient(conf.HTTPClient.ContentURL, httpCli, logger)
	srv := service.NewService(store, tx, pub, contentCli, logger, conf, m)
	uc := use_cases.NewUseCase(srv, logger, conf)
	h := handler.NewMessageHandler(uc, logger)
	r := handler.NewRouter(h, httpServer, conf, logger)

	// Инициализация cron контроллера
	cronController := cron.NewController(ctx, logger)
	if err := cronController.RegisterSweepJob(uc, conf.Sweep); err != nil {
		logger.Fatalf("не удалось зарегистрировать cron задачу: %v", err)
	}
	if err := cronController.RegisterPurgeJob(uc, conf.Sweep); err != nil {
		logger.Fatalf("не удалось зарегистрировать cron задачу: %v", err)
	}
	cronController.Start()

	go uc.RunRelay(ctx)

	r.RegisterRouter()

	return &App{
		ctx:            ctx,
		conf:           conf,
		logger:         logger,
		postgres:       postgres,
		httpServer:     httpServer,
		cronController: cronController,
	}
}

func (a *App) Run() error {
	return a.httpServer.Listen(fmt.Sprintf(":%s", a.conf.Server.Port))
}

func (a *App) Shutdown() error {
	// Останавливаем cron задачи
	if a.cronController != nil {
		a.cronController.Stop()
	}
	return a.httpServer.Shutdown()
}
