package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/compustore/backend/internal/config"
	"github.com/compustore/backend/internal/http/handlers"
	"github.com/compustore/backend/internal/http/middleware"
	"github.com/compustore/backend/internal/service"
	"github.com/compustore/backend/internal/store"

	_ "github.com/compustore/backend/docs"
)

func Router(cfg config.Config, st store.Store, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:      st,
		Reconciler: &service.Reconciler{Store: st, Logger: logger},
		Sessions:   &service.Sessions{Store: st},
		Tasks:      &service.Tasks{Store: st},
		Staff:      &service.Staff{Store: st, Logger: logger},
		Orders:     &service.Orders{Store: st},
		Accounts:   &service.Accounts{Store: st},
		Validator:  validator.New(),
		Logger:     logger,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.POST("/events", h.IngestEvent)
		api.POST("/reconcile", h.Reconcile)

		api.GET("/sessions/:user_id", h.SessionGet)
		api.POST("/sessions/:user_id/interactions", h.MergeInteractions)

		api.POST("/sessions/:user_id/tasks", h.TaskAdd)
		api.DELETE("/sessions/:user_id/tasks", h.TaskRemove)
		api.GET("/sessions/:user_id/tasks/next", h.TaskNext)

		api.POST("/sessions/:user_id/orders", h.Purchase)
		api.POST("/sessions/:user_id/orders/:order_id/cancel", h.OrderCancel)
		api.POST("/sessions/:user_id/orders/:order_id/return", h.OrderReturn)

		api.POST("/sessions/:user_id/account", h.AccountSetup)
		api.POST("/sessions/:user_id/account/password", h.AccountUpdatePassword)
		api.POST("/sessions/:user_id/account/phone", h.AccountUpdatePhone)

		api.POST("/sessions/:user_id/staff", h.StaffAssign)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.GET("/users", h.UsersList)
		admin.GET("/users/:user_id/state", h.UserState)
		admin.POST("/users/:user_id/history/clear", h.ClearHistory)
		admin.POST("/users/:user_id/orders/:order_id/status", h.OrderUpdateStatus)

		admin.GET("/staff", h.StaffList)
		admin.POST("/staff", h.StaffAdd)
		admin.DELETE("/staff/:name", h.StaffDelete)
		admin.POST("/staff/:name/release", h.StaffRelease)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
