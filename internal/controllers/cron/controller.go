package cron

import (
	use_cases "communities/internal/application/use-cases"
	"communities/pkg/config"
	"context"
	"fmt"

	"go.uber.org/zap"
)

type Controller struct {
	scheduler *Scheduler
	logger    *zap.SugaredLogger
}

func NewController(ctx context.Context, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		scheduler: NewScheduler(ctx),
		logger:    logger,
	}
}

// Поддерживает два режима:
// 1. По расписанию (cron format): например, "0 0 * * * *" - каждый час
// 2. По интервалу: например, "@every 1m" - каждую минуту
func (c *Controller) RegisterSweepJob(usecase use_cases.UseCaser, conf config.Sweep) error {
	job := NewSweepJob(usecase, c.logger)

	// Приоритет: если указан Schedule, используем его, иначе Interval
	spec := pickSpec(conf.Schedule, conf.Interval, "@every 1m")
	c.logger.Infof("Регистрация задачи возврата failed-записей, расписание: %s", spec)

	entryID, err := c.scheduler.Add(spec, job)
	if err != nil {
		return fmt.Errorf("не удалось зарегистрировать задачу возврата записей: %w", err)
	}

	c.logger.Infof("Задача возврата failed-записей зарегистрирована с ID: %d, расписание: %s", entryID, spec)
	return nil
}

func (c *Controller) RegisterPurgeJob(usecase use_cases.UseCaser, conf config.Sweep) error {
	job := NewPurgeJob(usecase, c.logger)

	spec := pickSpec(conf.PurgeSchedule, conf.PurgeInterval, "@every 1h")
	c.logger.Infof("Регистрация задачи очистки отправленных записей, расписание: %s", spec)

	entryID, err := c.scheduler.Add(spec, job)
	if err != nil {
		return fmt.Errorf("не удалось зарегистрировать задачу очистки записей: %w", err)
	}

	c.logger.Infof("Задача очистки отправленных записей зарегистрирована с ID: %d, расписание: %s", entryID, spec)
	return nil
}

func pickSpec(schedule, interval, fallback string) string {
	if schedule != "" {
		return schedule
	}
	if interval != "" {
		return interval
	}
	return fallback
}

// Start запускает планировщик задач
func (c *Controller) Start() {
	c.logger.Info("Запуск планировщика cron задач")
	c.scheduler.Start()
}

// Stop останавливает планировщик задач
func (c *Controller) Stop() {
	c.logger.Info("Остановка планировщика cron задач")
	c.scheduler.Stop()
	c.logger.Info("Планировщик cron задач остановлен")
}
