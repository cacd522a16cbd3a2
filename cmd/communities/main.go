package main

import (
	"communities/internal/application"
	"communities/internal/application/entity"
	"communities/internal/application/routing"
	"communities/pkg/broker"
	"communities/pkg/config"
	"communities/pkg/db"
	"communities/pkg/httpserver"
	"communities/pkg/metrics"
	"communities/pkg/observability"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf, err := config.NewConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := observability.InitLogger(conf.LoggingLevel)
	if err != nil {
		log.Fatal(err)
	}

	logger.Infof("LOGGING_LEVEL = %s", conf.LoggingLevel)

	m := metrics.New(prometheus.DefaultRegisterer)

	fiberServer := httpserver.NewFiber(conf, m)
	if fiberServer == nil {
		logger.Fatal(errors.New("fiber server is nil"))
	}

	store, err := db.NewPostgres(ctx, conf.Postgres)
	if err != nil {
		logger.Fatal(err)
	}

	// Непокрытый тип события - фатальная ошибка конфигурации, падаем на старте
	routes, err := routing.Load(conf.Routing.FilePath, entity.ProducedEventTypes())
	if err != nil {
		logger.Fatalf("загрузка таблицы маршрутизации: %v", err)
	}
	logger.Infof("таблица маршрутизации загружена, exchanges: %v", routes.Exchanges())

	rabbit, err := broker.NewRabbitBroker(ctx, conf.Broker.Rabbit, routes.Exchanges(), logger, m)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Infof("🚀 RabbitMQ broker создан, состояние: %s", rabbit.State())

	// Метрики отдаём на отдельном порту
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(fmt.Sprintf(":%s", conf.Server.MetricsPort), mux); err != nil {
			logger.Errorf("metrics server error: %v", err)
		}
	}()

	server := application.NewApp(ctx, &conf, logger, store, fiberServer, rabbit, routes, m)

	logger.Info("Communities service started successfully")
	logger.Info(fmt.Sprintf("Server config: %+v", conf.Server))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("error listening for server: %w \n", err)
				return
			}

			logger.Infof("server %v closed\n", conf.Server.Port)
		}
	}()

	//graceful shutdown
	osSignal := <-interrupt
	switch osSignal {
	case os.Interrupt:
		logger.Infof("%v Got SIGINT...", conf.Server.Port)
	case syscall.SIGTERM:
		logger.Infof("%v Got SIGTERM...", conf.Server.Port)
	}

	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Fatalf("server %v forced to shutdown: %v", conf.Server.Port, err)
		return
	}

	store.Close()

	logger.Infof("postgres db connection closed")

	logger.Infof("server shutdown %v done", conf.Server.Port)
}
