package serverutils

import (
	"errors"
	"fmt"

	"safebot-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

const InternalErrorMessage = "Internal server error"

// ErrorHandlerMiddleware recovers panics and renders errors returned by
// handlers. Client errors keep their message; anything else becomes a generic 500.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("HTTP", "Panic recovered", map[string]interface{}{
					"path":  ctx.Path(),
					"panic": fmt.Sprint(r),
				})
				err = ctx.Status(fiber.StatusInternalServerError).
					JSON(ErrorResponse(fiber.StatusInternalServerError, InternalErrorMessage))
			}
		}()

		err = ctx.Next()
		if err == nil {
			return nil
		}
		return renderError(ctx, log, err)
	}
}

func renderError(ctx *fiber.Ctx, log logger.ILogger, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return ctx.Status(fe.Code).JSON(ErrorResponse(fe.Code, fe.Message))
	}

	log.Error("HTTP", "Request failed", map[string]interface{}{
		"path":   ctx.Path(),
		"method": ctx.Method(),
		"error":  err.Error(),
	})
	return ctx.Status(fiber.StatusInternalServerError).
		JSON(ErrorResponse(fiber.StatusInternalServerError, InternalErrorMessage))
}
