package http

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/report-router/internal/observability"
	apperrors "github.com/spec-kit/report-router/pkg/util/errorutil"
)

// RegisterMiddlewares attaches global middlewares. The request logger wraps the
// error handler so it sees the final status code.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(observability.RequestLogger(logger, metrics))
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(errorHandlingMiddleware(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// errorHandlingMiddleware renders every failure as {"error":{code,message,details}}.
// Router-level fiber errors keep their status; ticket lookups echo the id.
func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err == nil {
				return
			}
			domainErr := toHTTPError(err)
			if metrics != nil {
				metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
			}
			details := map[string]any{}
			for k, v := range domainErr.Details {
				details[k] = v
			}
			if id := c.Params("id"); id != "" && ticketScoped(domainErr.Code) {
				details["ticket_id"] = id
			}
			body := fiber.Map{
				"code":    domainErr.Code,
				"message": domainErr.Message,
			}
			if len(details) > 0 {
				body["details"] = details
			}
			if domainErr.HTTPStatus >= 500 {
				logger.Error("request failed", zap.String("path", c.Path()), zap.Error(domainErr))
			}
			c.Status(domainErr.HTTPStatus)
			_ = c.JSON(fiber.Map{"error": body})
			err = nil
		}()
		return c.Next()
	}
}

func toHTTPError(err error) *apperrors.DomainError {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := apperrors.CodeValidation
		switch {
		case fe.Code == fiber.StatusNotFound:
			code = apperrors.CodeNotFound
		case fe.Code >= 500:
			code = apperrors.CodeInternal
		}
		return apperrors.NewDomainError(code, fe.Message, fe.Code, nil)
	}
	return apperrors.ToDomainError(err)
}

func ticketScoped(code string) bool {
	switch code {
	case apperrors.CodeNotFound, apperrors.CodeAlreadyClosed, apperrors.CodeNoMatchingTicket:
		return true
	}
	return false
}
