package handler

import (
	"communities/internal/appers"
	"communities/internal/application/common"
	"communities/internal/application/entity"
	use_cases "communities/internal/application/use-cases"
	"communities/pkg/validator"
	"context"
	"errors"
	"fmt"
	"time"

	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

type Handler interface {
	CreateMessage(c *fiber.Ctx) error
	GetMessage(c *fiber.Ctx) error
	GetMessagesByChannel(c *fiber.Ctx) error
	UpdateMessage(c *fiber.Ctx) error
	DeleteMessage(c *fiber.Ctx) error
	SignAttachmentURL(c *fiber.Ctx) error
	HealthCheck(c *fiber.Ctx) error
}

type HandlerImpl struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewMessageHandler(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *HandlerImpl {
	return &HandlerImpl{
		usecase: usecase,
		logger:  logger,
	}
}

type signURLRequest struct {
	Verb string `json:"verb" validate:"required,sign_verb"`
}

// formatValidationErrors форматирует ошибки валидации в понятный формат для клиента
func formatValidationErrors(err error) fiber.Map {
	var errors []string
	if validationErrors, ok := err.(playgroundvalidator.ValidationErrors); ok {
		for _, e := range validationErrors {
			field := e.Field()
			tag := e.Tag()
			var message string
			switch tag {
			case "required":
				message = fmt.Sprintf("поле '%s' обязательно для заполнения", field)
			case "min":
				message = fmt.Sprintf("поле '%s' должно содержать минимум %s символов", field, e.Param())
			case "max":
				message = fmt.Sprintf("поле '%s' должно содержать максимум %s символов", field, e.Param())
			case "uuid4":
				message = fmt.Sprintf("поле '%s' должно быть валидным UUID", field)
			case "sign_verb":
				message = fmt.Sprintf("поле '%s' должно быть GET или PUT", field)
			default:
				message = fmt.Sprintf("поле '%s' не прошло валидацию: %s", field, tag)
			}
			errors = append(errors, message)
		}
	} else {
		errors = append(errors, err.Error())
	}
	return fiber.Map{
		"error":   "validation failed",
		"details": errors,
	}
}

func parseID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.FromString(c.Params(param))
	if err != nil {
		return uuid.Nil, appers.ErrBadID
	}
	return id, nil
}

// HealthCheck godoc
// @Summary     Проверка состояния сервиса
// @Description Проверяет доступность базы данных PostgreSQL и RabbitMQ. Возвращает детальную информацию о состоянии каждого компонента.
// @Accept      json
// @Produce     json
// @Success     200   {object} entity.HealthCheckResponse "Все сервисы доступны"
// @Failure     503   {object} entity.HealthCheckResponse "Один или несколько сервисов недоступны"
// @tags        Health
// @Router      /health [get]
func (h *HandlerImpl) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	dbHealthy, brokerHealthy, _ := h.usecase.HealthCheck(ctx)

	health := fiber.Map{
		"status":  dbHealthy && brokerHealthy,
		"message": "success",
		"version": common.Version,
		"checks": fiber.Map{
			"database": fiber.Map{
				"status": dbHealthy,
				"type":   "postgresql",
			},
			"broker": fiber.Map{
				"status": brokerHealthy,
				"type":   "rabbitmq",
			},
		},
	}
	if !dbHealthy {
		health["checks"].(fiber.Map)["database"].(fiber.Map)["error"] = "Database connection failed"
		health["message"] = "Some services are unavailable"
	}
	if !brokerHealthy {
		health["checks"].(fiber.Map)["broker"].(fiber.Map)["error"] = "Broker connection failed"
		health["message"] = "Some services are unavailable"
	}

	if !dbHealthy || !brokerHealthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(health)
	}

	return c.Status(fiber.StatusOK).JSON(health)
}

// CreateMessage godoc
// @Summary     Создание сообщения
// @Description Создает сообщение в канале и атомарно ставит событие в outbox
// @Accept      json
// @Produce     json
// @Param       channelID path     string                       true  "ID канала"
// @Param       body      body     entity.CreateMessageRequest  true  "Данные сообщения"
// @Success     201       {object} entity.Message
// @Failure     400
// @Failure     409
// @Failure     500
// @tags        Message
// @Router      /v1/channels/{channelID}/messages [post]
func (h *HandlerImpl) CreateMessage(c *fiber.Ctx) error {
	channelID, err := parseID(c, "channelID")
	if err != nil {
		return appers.SanitizeError(c, err)
	}

	var req entity.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Errorf("error parsing body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	// Валидация структуры
	if err := validator.Validate.Struct(&req); err != nil {
		h.logger.Warnf("validation error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(formatValidationErrors(err))
	}

	msg, err := h.usecase.CreateMessage(c.Context(), channelID, &req)
	switch {
	case errors.Is(err, appers.ErrMessageAlreadyExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"description": err.Error()})
	case err != nil:
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetMessage godoc
// @Summary     Получение сообщения
// @Produce     json
// @Param       id   path     string  true  "ID сообщения"
// @Success     200  {object} entity.Message
// @Failure     400
// @Failure     404
// @tags        Message
// @Router      /v1/messages/{id} [get]
func (h *HandlerImpl) GetMessage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return appers.SanitizeError(c, err)
	}

	msg, err := h.usecase.GetMessage(c.Context(), id)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(msg)
}

// GetMessagesByChannel godoc
// @Summary     Получение сообщений канала
// @Description Возвращает последние сообщения канала, новые первыми
// @Produce     json
// @Param       channelID path   string true  "ID канала"
// @Param       limit     query  int    false "Максимум сообщений (по умолчанию 50)"
// @Success     200 {array} entity.Message
// @Failure     400
// @tags        Message
// @Router      /v1/channels/{channelID}/messages [get]
func (h *HandlerImpl) GetMessagesByChannel(c *fiber.Ctx) error {
	channelID, err := parseID(c, "channelID")
	if err != nil {
		return appers.SanitizeError(c, err)
	}

	limit := c.QueryInt("limit")

	messages, err := h.usecase.GetMessagesByChannel(c.Context(), channelID, limit)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(messages)
}

// UpdateMessage godoc
// @Summary     Обновление сообщения
// @Description Обновляет текст и/или флаг закрепления, атомарно ставит событие в outbox
// @Accept      json
// @Produce     json
// @Param       id    path     string                       true  "ID сообщения"
// @Param       body  body     entity.UpdateMessageRequest  true  "Изменяемые поля"
// @Success     200   {object} entity.Message
// @Failure     400
// @Failure     404
// @Failure     500
// @tags        Message
// @Router      /v1/messages/{id} [patch]
func (h *HandlerImpl) UpdateMessage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return appers.SanitizeError(c, err)
	}

	var req entity.UpdateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Errorf("error parsing body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := validator.Validate.Struct(&req); err != nil {
		h.logger.Warnf("validation error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(formatValidationErrors(err))
	}

	if req.Content == nil && req.IsPinned == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "nothing to update",
		})
	}

	msg, err := h.usecase.UpdateMessage(c.Context(), id, &req)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(msg)
}

// DeleteMessage godoc
// @Summary     Удаление сообщения
// @Description Удаляет сообщение и атомарно ставит событие в outbox
// @Produce     json
// @Param       id   path     string  true  "ID сообщения"
// @Success     200
// @Failure     400
// @Failure     404
// @Failure     500
// @tags        Message
// @Router      /v1/messages/{id} [delete]
func (h *HandlerImpl) DeleteMessage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return appers.SanitizeError(c, err)
	}

	if err := h.usecase.DeleteMessage(c.Context(), id); err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"description": "ok"})
}

// SignAttachmentURL godoc
// @Summary     Подписанная ссылка на вложение
// @Description Запрашивает у content-сервиса presigned URL на чтение или загрузку вложения
// @Accept      json
// @Produce     json
// @Param       id    path     string         true  "ID вложения"
// @Param       body  body     signURLRequest true  "Verb: GET или PUT"
// @Success     200   {object} entity.PresignedURL
// @Failure     400
// @Failure     502
// @tags        Attachment
// @Router      /v1/attachments/{id}/sign [post]
func (h *HandlerImpl) SignAttachmentURL(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return appers.SanitizeError(c, err)
	}

	var req signURLRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Errorf("error parsing body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := validator.Validate.Struct(&req); err != nil {
		h.logger.Warnf("validation error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(formatValidationErrors(err))
	}

	signed, err := h.usecase.SignAttachmentURL(c.Context(), id.String(), req.Verb)
	if err != nil {
		return appers.SanitizeError(c, appers.ErrAttachmentUnavailable)
	}
	return c.Status(fiber.StatusOK).JSON(signed)
}
