package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studioboard/internal/domain"
	jwtsvc "studioboard/internal/pkg/jwt"
	"studioboard/internal/pkg/response"
)

type Handler struct {
	svc *Service
	hub *Hub
	jwt *jwtsvc.Service
	log *zap.Logger

	upgrader websocket.Upgrader
}

func NewHandler(svc *Service, hub *Hub, jwt *jwtsvc.Service, log *zap.Logger) *Handler {
	return &Handler{
		svc: svc,
		hub: hub,
		jwt: jwt,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	operatorID, role, err := h.svc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	token, err := h.jwt.GenerateToken(operatorID, role)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, loginResponse{
		Token:      token,
		OperatorID: operatorID,
		Role:       role,
	})
}

func (h *Handler) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	b, err := h.svc.CreateBooking(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, b)
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid booking id")
		return
	}

	b, err := h.svc.GetBooking(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, b)
}

func (h *Handler) ListBookings(c *gin.Context) {
	dateStr := c.Query("date")
	date := time.Now().UTC()
	if dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid date, expected YYYY-MM-DD")
			return
		}
		date = parsed
	}

	list, err := h.svc.ListBookings(c.Request.Context(), date, domain.Space(c.Query("space")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, list)
}

func (h *Handler) UpdateBooking(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid booking id")
		return
	}

	var req updateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	b, err := h.svc.UpdateBooking(c.Request.Context(), id, req, actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, b)
}

func (h *Handler) TransitionBooking(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid booking id")
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	b, err := h.svc.TransitionBooking(c.Request.Context(), id, req.ExpectedVersion,
		domain.BookingState(req.TargetState), actorFrom(c), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, b)
}

func (h *Handler) FreeSlots(c *gin.Context) {
	space := domain.Space(c.Query("space"))
	dateStr := c.Query("date")
	date := time.Now().UTC()
	if dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid date, expected YYYY-MM-DD")
			return
		}
		date = parsed
	}

	slots, err := h.svc.FreeSlots(c.Request.Context(), space, date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, slots)
}

// Events upgrades the connection and streams booking events. Browsers cannot
// set headers on websocket dials, so the token travels as a query parameter.
func (h *Handler) Events(c *gin.Context) {
	claims, err := h.jwt.ValidateToken(c.Query("token"))
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Serve(conn, claims.OperatorID)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrStaleVersion):
		response.Error(c, http.StatusConflict, "STALE_VERSION", err.Error())
	case errors.Is(err, domain.ErrConflict):
		response.Error(c, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		response.Error(c, http.StatusUnprocessableEntity, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, domain.ErrValidation):
		var fe *fieldErrors
		if errors.As(err, &fe) {
			response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), fe.fields)
			return
		}
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	default:
		h.log.Error("internal error", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func actorFrom(c *gin.Context) string {
	if id, ok := c.Get("operator_id"); ok {
		return fmt.Sprintf("operator:%v", id)
	}
	return "operator"
}
