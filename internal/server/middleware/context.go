package middleware

import (
	"github.com/MicahParks/keyfunc/v3"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/nexuslab/nexus/pkg/ai"
	"github.com/nexuslab/nexus/pkg/graph"
	"github.com/nexuslab/nexus/pkg/identity"
	"github.com/nexuslab/nexus/pkg/store"
)

type AppUser struct {
	Subject string
	Role    string
}

// App carries the shared dependencies every request handler needs.
type App struct {
	Store        store.RelationshipStore
	Queue        *amqp091.Channel
	Key          *keyfunc.Keyfunc
	AiClient     ai.ModelClient
	Guard        graph.Guard
	Resolver     *identity.Resolver
	MasterAPIKey string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
