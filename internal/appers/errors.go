package appers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

type ErrorResp struct {
	StatusCode int    `json:"statusCode,omitempty"`
	StatusDesc string `json:"statusDesc,omitempty"`
}

func (e ErrorResp) Error() string {
	return e.StatusDesc
}

var (
	ErrMessageNotFound = ErrorResp{
		http.StatusNotFound,
		"сообщение не найдено",
	}
	ErrMessageAlreadyExists = ErrorResp{
		http.StatusForbidden,
		"сообщение уже создано",
	}
	ErrBadID = ErrorResp{
		StatusCode: http.StatusBadRequest,
		StatusDesc: "идентификатор должен быть валидным UUID",
	}
	ErrAttachmentUnavailable = ErrorResp{
		StatusCode: http.StatusBadGateway,
		StatusDesc: "content-сервис недоступен",
	}
)

func SanitizeError(c *fiber.Ctx, err error) error {
	var errResp ErrorResp

	if ok := errors.As(err, &errResp); ok {
		return c.Status(errResp.StatusCode).JSON(fiber.Map{
			"message": errResp.StatusDesc,
		})
	} else {
		return NewErr(c, http.StatusInternalServerError, err)
	}
}

func NewErr(ctx *fiber.Ctx, status int, err error) error {
	return ctx.Status(status).JSON(fiber.Map{
		"message": err.Error(),
	})
}
