package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cloudpdf/internal/app"
	"cloudpdf/internal/transport/http/middleware"
	"cloudpdf/internal/transport/http/response"
)

type AuthHandler struct {
	authService *app.AuthService
	log         logrus.FieldLogger
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func NewAuthHandler(authService *app.AuthService, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Register(c.Request.Context(), app.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrEmailExists):
			response.Error(c, http.StatusBadRequest, "The email has already been taken.")
		default:
			h.log.WithError(err).WithField("request_id", middleware.RequestIDFrom(c)).Error("register failed")
			response.Error(c, http.StatusInternalServerError, "register failed")
		}
		return
	}

	response.OK(c, gin.H{"token": result.Token, "user": result.User})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), app.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrInvalidCredential):
			response.Error(c, http.StatusUnauthorized, "These credentials do not match our records.")
		default:
			h.log.WithError(err).WithField("request_id", middleware.RequestIDFrom(c)).Error("login failed")
			response.Error(c, http.StatusInternalServerError, "login failed")
		}
		return
	}

	response.OK(c, gin.H{"token": result.Token, "user": result.User})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), middleware.CurrentClaims(c)); err != nil {
		if errors.Is(err, app.ErrUnauthorized) {
			response.Error(c, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		h.log.WithError(err).WithField("request_id", middleware.RequestIDFrom(c)).Error("logout failed")
		response.Error(c, http.StatusInternalServerError, "logout failed")
		return
	}
	response.OK(c, gin.H{"message": "Logged out"})
}

// Me returns the signed-in user, or a null user for guests.
func (h *AuthHandler) Me(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	if userID == nil {
		response.OK(c, gin.H{"user": nil})
		return
	}

	user, err := h.authService.GetUserByID(c.Request.Context(), *userID)
	if err != nil {
		h.log.WithError(err).WithField("request_id", middleware.RequestIDFrom(c)).Error("fetch current user failed")
		response.Error(c, http.StatusInternalServerError, "fetch current user failed")
		return
	}
	if user == nil {
		response.OK(c, gin.H{"user": nil})
		return
	}
	response.OK(c, gin.H{"user": user})
}
