package use_cases

import (
	"communities/internal/application/entity"
	"communities/internal/application/service"
	"communities/pkg/config"
	"context"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

type UseCaser interface {
	CreateMessage(ctx context.Context, channelID uuid.UUID, req *entity.CreateMessageRequest) (*entity.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*entity.Message, error)
	GetMessagesByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]*entity.Message, error)
	UpdateMessage(ctx context.Context, id uuid.UUID, req *entity.UpdateMessageRequest) (*entity.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error

	SignAttachmentURL(ctx context.Context, attachmentID, verb string) (*entity.PresignedURL, error)

	RunRelay(ctx context.Context)
	SweepOutbox(ctx context.Context)
	PurgeOutbox(ctx context.Context)

	HealthCheck(ctx context.Context) (dbHealthy bool, brokerHealthy bool, err error)
}

type UseCase struct {
	service service.Service
	logger  *zap.SugaredLogger
	conf    *config.Config
}

func NewUseCase(service service.Service, logger *zap.SugaredLogger, conf *config.Config) *UseCase {
	return &UseCase{
		service: service,
		logger:  logger,
		conf:    conf,
	}
}

func (u *UseCase) HealthCheck(ctx context.Context) (dbHealthy bool, brokerHealthy bool, err error) {
	return u.service.HealthCheck(ctx)
}

func (u *UseCase) CreateMessage(ctx context.Context, channelID uuid.UUID, req *entity.CreateMessageRequest) (*entity.Message, error) {
	u.logger.Debugf("[channel: %s] CreateMessage started", channelID)
	return u.service.CreateMessage(ctx, channelID, req)
}

func (u *UseCase) GetMessage(ctx context.Context, id uuid.UUID) (*entity.Message, error) {
	u.logger.Debugf("[message: %s] GetMessage started", id)
	return u.service.GetMessage(ctx, id)
}

func (u *UseCase) GetMessagesByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]*entity.Message, error) {
	u.logger.Debugf("[channel: %s] GetMessagesByChannel started, limit=%d", channelID, limit)
	return u.service.GetMessagesByChannel(ctx, channelID, limit)
}

func (u *UseCase) UpdateMessage(ctx context.Context, id uuid.UUID, req *entity.UpdateMessageRequest) (*entity.Message, error) {
	u.logger.Debugf("[message: %s] UpdateMessage started", id)
	return u.service.UpdateMessage(ctx, id, req)
}

func (u *UseCase) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	u.logger.Debugf("[message: %s] DeleteMessage started", id)
	return u.service.DeleteMessage(ctx, id)
}

func (u *UseCase) SignAttachmentURL(ctx context.Context, attachmentID, verb string) (*entity.PresignedURL, error) {
	u.logger.Debugf("[attachment: %s] SignAttachmentURL started", attachmentID)
	return u.service.SignAttachmentURL(ctx, attachmentID, verb)
}

func (u *UseCase) RunRelay(ctx context.Context) {
	u.logger.Debug("relay started")
	u.service.RelayRun(ctx)
}

func (u *UseCase) SweepOutbox(ctx context.Context) {
	u.logger.Debug("outbox sweep started")
	u.service.SweepOutbox(ctx)
}

func (u *UseCase) PurgeOutbox(ctx context.Context) {
	u.logger.Debug("outbox purge started")
	u.service.PurgeOutbox(ctx)
}
