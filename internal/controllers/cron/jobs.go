package cron

import (
	"communities/internal/application/use-cases"
	"context"
	"go.uber.org/zap"
)

// SweepJob - задача возврата FAILED-записей outbox в очередь доставки
type SweepJob struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewSweepJob(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *SweepJob {
	return &SweepJob{
		usecase: usecase,
		logger:  logger,
	}
}

// Run выполняет задачу возврата записей в очередь
func (j *SweepJob) Run(ctx context.Context) {
	j.logger.Info("Запуск задачи возврата failed-записей outbox")

	defer func() {
		if r := recover(); r != nil {
			j.logger.Errorf("Паника при выполнении задачи возврата записей: %v", r)
		}
	}()

	j.usecase.SweepOutbox(ctx)
	j.logger.Info("Задача возврата failed-записей outbox завершена")
}

// PurgeJob - задача удаления старых SENT-записей outbox
type PurgeJob struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewPurgeJob(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *PurgeJob {
	return &PurgeJob{
		usecase: usecase,
		logger:  logger,
	}
}

// Run выполняет задачу очистки отправленных записей
func (j *PurgeJob) Run(ctx context.Context) {
	j.logger.Info("Запуск задачи очистки отправленных записей outbox")

	defer func() {
		if r := recover(); r != nil {
			j.logger.Errorf("Паника при выполнении задачи очистки записей: %v", r)
		}
	}()

	j.usecase.PurgeOutbox(ctx)
	j.logger.Info("Задача очистки отправленных записей outbox завершена")
}
