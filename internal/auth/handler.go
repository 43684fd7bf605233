package auth

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yansimam/backend/internal/models"
	"github.com/yansimam/backend/pkg/response"
	"github.com/yansimam/backend/pkg/storage"
	"github.com/yansimam/backend/pkg/utils"
)

// ContextUserID is the gin context key under which the JWT middleware stores the caller's id.
const ContextUserID = "user_id"

// CurrentUser returns the authenticated caller. Only valid behind the JWT middleware.
func CurrentUser(c *gin.Context) uuid.UUID {
	return c.MustGet(ContextUserID).(uuid.UUID)
}

// Users is the user store used by the handler.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, email, passwordHash, fullName string) (*models.User, error)
	UpdateProfilePhoto(ctx context.Context, id uuid.UUID, url string) (*models.User, error)
}

// PhotoUploader stores photos and returns their public location.
type PhotoUploader interface {
	UploadPhoto(ctx context.Context, userID, contentType, filename string, body io.Reader, size int64) (storage.Photo, error)
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users  Users
	jwt    *JWTService
	photos PhotoUploader
	logger *zap.Logger
}

// NewHandler creates an auth handler. photos may be nil when no bucket is configured.
func NewHandler(users Users, jwt *JWTService, photos PhotoUploader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, jwt: jwt, photos: photos, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordLength) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.users.Create(c.Request.Context(), email, hash, strings.TrimSpace(req.FullName))
	if errors.Is(err, ErrEmailTaken) {
		response.Conflict(c, "email already registered")
		return
	}
	if err != nil {
		h.logger.Error("create user failed", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			h.logger.Error("load user failed", zap.Error(err))
		}
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Me handles GET /me.
func (h *Handler) Me(c *gin.Context) {
	userID := CurrentUser(c)
	user, err := h.users.GetByID(c.Request.Context(), userID)
	if errors.Is(err, ErrUserNotFound) {
		response.NotFound(c, "user not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load user")
		return
	}
	response.OK(c, user.ToPublic())
}

// UploadPhoto handles POST /me/photo (multipart field "photo").
func (h *Handler) UploadPhoto(c *gin.Context) {
	if h.photos == nil {
		response.ServiceUnavailable(c, "photo upload not configured")
		return
	}
	userID := CurrentUser(c)
	fh, err := c.FormFile("photo")
	if err != nil {
		response.BadRequest(c, "photo file is required")
		return
	}
	if err := storage.CheckPhoto(fh); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "cannot read photo")
		return
	}
	defer f.Close()

	photo, err := h.photos.UploadPhoto(c.Request.Context(), userID.String(), fh.Header.Get("Content-Type"), fh.Filename, f, fh.Size)
	if err != nil {
		h.logger.Error("profile photo upload failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.ServiceUnavailable(c, "photo upload failed")
		return
	}
	user, err := h.users.UpdateProfilePhoto(c.Request.Context(), userID, photo.URL)
	if err != nil {
		response.Internal(c, "failed to save profile photo")
		return
	}
	response.OK(c, user.ToPublic())
}
