package sessions

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yansimam/backend/internal/auth"
	"github.com/yansimam/backend/internal/models"
	"github.com/yansimam/backend/pkg/response"
	"github.com/yansimam/backend/pkg/storage"
)

// maxTokenAttempts bounds share token regeneration on collisions.
const maxTokenAttempts = 5

// Repo is the session store used by the owner-facing handler.
type Repo interface {
	Create(ctx context.Context, p CreateParams) (*models.VotingSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.VotingSession, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.VotingSession, error)
}

// Profiles loads the owning subject.
type Profiles interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// PhotoStore uploads and removes session photos.
type PhotoStore interface {
	UploadPhoto(ctx context.Context, userID, contentType, filename string, body io.Reader, size int64) (storage.Photo, error)
	DeletePhoto(ctx context.Context, key string) error
}

// SessionView is a session as returned to its owner.
type SessionView struct {
	models.VotingSession
	ShareURL  string `json:"share_url"`
	Qualifies bool   `json:"qualifies"`
}

// Handler serves the owner-facing session endpoints.
type Handler struct {
	repo     Repo
	profiles Profiles
	photos   PhotoStore
	baseURL  string
	now      func() time.Time
	logger   *zap.Logger
}

// NewHandler creates a sessions handler. photos may be nil, in which case sessions
// use the owner's profile photo. baseURL prefixes share links.
func NewHandler(repo Repo, profiles Profiles, photos PhotoStore, baseURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		repo:     repo,
		profiles: profiles,
		photos:   photos,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      time.Now,
		logger:   logger,
	}
}

// ShareURL returns the public voting link for token.
func (h *Handler) ShareURL(token string) string {
	return h.baseURL + "/vote/" + token
}

func (h *Handler) view(s models.VotingSession) SessionView {
	return SessionView{VotingSession: s, ShareURL: h.ShareURL(s.ShareToken), Qualifies: s.Results.Qualifies()}
}

// Create handles POST /sessions (multipart: optional "photo", optional "full_name").
func (h *Handler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	userID := auth.CurrentUser(c)

	owner, err := h.profiles.GetByID(ctx, userID)
	if err != nil {
		h.logger.Error("load session owner failed", zap.Error(err))
		response.Internal(c, "failed to load profile")
		return
	}
	fullName := strings.TrimSpace(c.PostForm("full_name"))
	if fullName == "" {
		fullName = owner.FullName
	}

	var photo *storage.Photo
	if fh, err := c.FormFile("photo"); err == nil {
		if h.photos == nil {
			response.ServiceUnavailable(c, "photo upload not configured")
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
		uploaded, err := h.photos.UploadPhoto(ctx, userID.String(), fh.Header.Get("Content-Type"), fh.Filename, f, fh.Size)
		f.Close()
		if err != nil {
			h.logger.Error("session photo upload failed", zap.Error(err), zap.String("user_id", userID.String()))
			response.ServiceUnavailable(c, "photo upload failed")
			return
		}
		photo = &uploaded
	} else if owner.ProfilePhotoURL == nil || *owner.ProfilePhotoURL == "" {
		response.Error(c, http.StatusUnprocessableEntity, "MISSING_PHOTO", "a photo is required when the profile has none")
		return
	}

	params := CreateParams{UserID: userID, FullName: fullName, CreatedAt: h.now().UTC()}
	if photo != nil {
		params.PhotoURL = &photo.URL
	}
	s, err := h.createWithToken(ctx, params)
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		if photo != nil {
			if derr := h.photos.DeletePhoto(context.WithoutCancel(ctx), photo.Key); derr != nil {
				h.logger.Warn("orphaned session photo", zap.String("key", photo.Key), zap.Error(derr))
			}
		}
		response.Internal(c, "failed to create session")
		return
	}
	h.logger.Info("voting session created", zap.String("session_id", s.ID.String()), zap.Time("expires_at", s.ExpiresAt))
	response.Created(c, h.view(*s))
}

func (h *Handler) createWithToken(ctx context.Context, p CreateParams) (*models.VotingSession, error) {
	var lastErr error
	for i := 0; i < maxTokenAttempts; i++ {
		token, err := NewShareToken()
		if err != nil {
			return nil, err
		}
		p.Token = token
		s, err := h.repo.Create(ctx, p)
		if errors.Is(err, ErrTokenTaken) {
			lastErr = err
			continue
		}
		return s, err
	}
	return nil, lastErr
}

// List handles GET /sessions.
func (h *Handler) List(c *gin.Context) {
	userID := auth.CurrentUser(c)
	list, err := h.repo.ListByUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list sessions")
		return
	}
	views := make([]SessionView, 0, len(list))
	for _, s := range list {
		views = append(views, h.view(s))
	}
	response.OK(c, views)
}

// Results handles GET /sessions/:id/results. Only the owner may read them.
func (h *Handler) Results(c *gin.Context) {
	userID := auth.CurrentUser(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) || (err == nil && s.UserID != userID) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}
	response.OK(c, gin.H{
		"session_id": s.ID,
		"status":     s.Status,
		"expires_at": s.ExpiresAt,
		"votable":    s.VotableAt(h.now()),
		"results":    s.Results,
		"qualifies":  s.Results.Qualifies(),
	})
}
