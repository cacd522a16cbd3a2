package service

import (
	"communities/internal/application/entity"
	"communities/internal/application/repo"
	"communities/internal/transport/content"
	"communities/internal/transport/publisher"
	"communities/pkg/config"
	"communities/pkg/metrics"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

type Service interface {
	CreateMessage(ctx context.Context, channelID uuid.UUID, req *entity.CreateMessageRequest) (*entity.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*entity.Message, error)
	GetMessagesByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]*entity.Message, error)
	UpdateMessage(ctx context.Context, id uuid.UUID, req *entity.UpdateMessageRequest) (*entity.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error

	SignAttachmentURL(ctx context.Context, attachmentID, verb string) (*entity.PresignedURL, error)

	RelayRun(ctx context.Context)
	SweepOutbox(ctx context.Context)
	PurgeOutbox(ctx context.Context)

	HealthCheck(ctx context.Context) (dbHealthy bool, brokerHealthy bool, err error)
}

type ServiceImpl struct {
	repo         repo.Repo
	transactions repo.Transactions
	publisher    publisher.Publisher
	contentCli   *content.Client
	logger       *zap.SugaredLogger
	cfg          *config.Config
	m            *metrics.Metrics
}

func NewService(
	repo repo.Repo,
	transactions repo.Transactions,
	pub publisher.Publisher,
	contentCli *content.Client,
	logger *zap.SugaredLogger,
	cfg *config.Config,
	m *metrics.Metrics,
) *ServiceImpl {
	return &ServiceImpl{
		repo:         repo,
		transactions: transactions,
		publisher:    pub,
		contentCli:   contentCli,
		logger:       logger,
		cfg:          cfg,
		m:            m,
	}
}

// HealthCheck проверяет доступность БД и брокера
func (s *ServiceImpl) HealthCheck(ctx context.Context) (dbHealthy bool, brokerHealthy bool, err error) {
	dbErr := s.repo.HealthCheck(ctx)
	dbHealthy = dbErr == nil

	brokerErr := s.publisher.HealthCheck(ctx)
	brokerHealthy = brokerErr == nil

	// Возвращаем ошибку только если обе проверки провалились
	if !dbHealthy && !brokerHealthy {
		return dbHealthy, brokerHealthy, fmt.Errorf("database: %v, broker: %v", dbErr, brokerErr)
	}

	return dbHealthy, brokerHealthy, nil
}

func (s *ServiceImpl) CreateMessage(ctx context.Context, channelID uuid.UUID, req *entity.CreateMessageRequest) (*entity.Message, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	authorID, err := uuid.FromString(req.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("parse author id: %w", err)
	}

	msg := &entity.Message{
		ID:          id,
		ChannelID:   channelID,
		AuthorID:    authorID,
		Content:     req.Content,
		Attachments: req.Attachments,
		CreatedAt:   time.Now().UTC(),
	}

	var replyTo *string
	if req.ReplyToMessageID != "" {
		parsed, err := uuid.FromString(req.ReplyToMessageID)
		if err != nil {
			return nil, fmt.Errorf("parse reply_to id: %w", err)
		}
		msg.ReplyToMessageID = &parsed
		str := parsed.String()
		replyTo = &str
	}

	s.logger.Debugf("[message: %s] CreateMessage started", msg.ID)

	attachments := msg.Attachments
	if attachments == nil {
		attachments = []entity.Attachment{}
	}

	evt := entity.CreateMessageEvent{
		MessageID:        msg.ID.String(),
		ChannelID:        msg.ChannelID.String(),
		AuthorID:         msg.AuthorID.String(),
		Content:          msg.Content,
		ReplyToMessageID: replyTo,
		Attachments:      attachments,
		NotifyEntries:    []entity.NotifyEntry{},
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Errorf("[message: %s] failed to marshal event to JSON: %v", msg.ID, err)
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := s.transactions.CreateMessage(ctx, msg, payload); err != nil {
		return nil, err
	}

	return msg, nil
}

func (s *ServiceImpl) GetMessage(ctx context.Context, id uuid.UUID) (*entity.Message, error) {
	s.logger.Debugf("[message: %s] GetMessage started", id)

	return s.repo.GetMessage(ctx, id)
}

func (s *ServiceImpl) GetMessagesByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]*entity.Message, error) {
	s.logger.Debugf("[channel: %s] GetMessagesByChannel started", channelID)

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	return s.repo.GetMessagesByChannel(ctx, channelID, limit)
}

func (s *ServiceImpl) UpdateMessage(ctx context.Context, id uuid.UUID, req *entity.UpdateMessageRequest) (*entity.Message, error) {
	s.logger.Debugf("[message: %s] UpdateMessage started", id)

	return s.transactions.UpdateMessage(ctx, id, req.Content, req.IsPinned)
}

func (s *ServiceImpl) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	s.logger.Debugf("[message: %s] DeleteMessage started", id)

	// Канал нужен в событии, а после DELETE строки уже нет — читаем заранее.
	msg, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return err
	}

	evt := entity.DeleteMessageEvent{
		MessageID: msg.ID.String(),
		ChannelID: msg.ChannelID.String(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return s.transactions.DeleteMessage(ctx, id, payload)
}

func (s *ServiceImpl) SignAttachmentURL(ctx context.Context, attachmentID, verb string) (*entity.PresignedURL, error) {
	s.logger.Debugf("[attachment: %s] SignAttachmentURL started, verb=%s", attachmentID, verb)

	return s.contentCli.SignURL(ctx, attachmentID, verb)
}
