package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"studioboard/internal/middleware"
	jwtsvc "studioboard/internal/pkg/jwt"
)

// NewRouter assembles the gin engine with all routes and middleware.
func NewRouter(h *Handler, jwt *jwtsvc.Service, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/events", h.Events)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/auth/login", h.Login)

		protected := v1.Group("")
		protected.Use(middleware.Auth(jwt))
		{
			protected.POST("/bookings", h.CreateBooking)
			protected.GET("/bookings", h.ListBookings)
			protected.GET("/bookings/:id", h.GetBooking)
			protected.PATCH("/bookings/:id", h.UpdateBooking)
			protected.POST("/bookings/:id/transition", h.TransitionBooking)
			protected.GET("/availability", h.FreeSlots)
		}
	}

	return r
}
