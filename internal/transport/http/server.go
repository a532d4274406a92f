package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cloudpdf/internal/bootstrap"
	"cloudpdf/internal/transport/http/handler"
	"cloudpdf/internal/transport/http/middleware"
)

// multipartMemory keeps a full-size upload in memory; larger bodies spill to disk.
const multipartMemory = 12 << 20

type Handlers struct {
	Auth   *handler.AuthHandler
	Thesis *handler.ThesisHandler
	Health *handler.HealthHandler
}

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)

	health := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, map[string]handler.Pinger{
		"mysql": func(ctx context.Context) error {
			sqlDB, err := app.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		},
		"rabbitmq": func(ctx context.Context) error {
			if app.MQConn == nil || app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
	})

	return Routes(app.Logger, app.AuthService, Handlers{
		Auth:   handler.NewAuthHandler(app.AuthService, app.Logger),
		Thesis: handler.NewThesisHandler(app.ThesisService, app.Logger),
		Health: health,
	})
}

// Routes mounts the API on a fresh engine.
func Routes(log logrus.FieldLogger, auth middleware.Authenticator, h Handlers) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = multipartMemory
	router.Use(middleware.RequestID(), middleware.Logger(log), middleware.Recovery(log))

	if h.Health != nil {
		router.GET("/healthz", h.Health.Check)
	}

	api := router.Group("/api")
	optional := middleware.OptionalAuth(auth)

	api.POST("/register", h.Auth.Register)
	api.POST("/login", h.Auth.Login)
	api.POST("/logout", middleware.RequireAuth(auth), h.Auth.Logout)
	api.GET("/user", optional, h.Auth.Me)

	api.POST("/upload", optional, h.Thesis.Upload)
	api.GET("/theses", optional, h.Thesis.List)
	api.GET("/theses/download/:id", h.Thesis.Download)

	return router
}
