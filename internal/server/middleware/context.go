package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/graphmesh/graphmesh/internal/app"
)

// AppContext carries the wired application components into route handlers.
type AppContext struct {
	echo.Context
	App   *app.App
	Queue *amqp091.Channel
}

// AppContextMiddleware attaches the shared App (and the optional queue
// channel) to every request.
func AppContextMiddleware(a *app.App, queue *amqp091.Channel) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{
				Context: c,
				App:     a,
				Queue:   queue,
			}
			return next(cc)
		}
	}
}
