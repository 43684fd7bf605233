package voting

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yansimam/backend/internal/identity"
	"github.com/yansimam/backend/internal/models"
	"github.com/yansimam/backend/internal/scoring"
	"github.com/yansimam/backend/pkg/metrics"
	"github.com/yansimam/backend/pkg/response"
)

const (
	// HeaderVisitorID carries the browser fingerprint computed client side.
	HeaderVisitorID = "X-Visitor-ID"
	// FieldVisitorID is the form/query/JSON field fallback for the fingerprint.
	FieldVisitorID = "visitor_id"
)

// Handler serves the voter-facing JSON API and HTML pages.
type Handler struct {
	svc     *Service
	deriver *identity.Deriver
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHandler creates a voting handler. m may be nil.
func NewHandler(svc *Service, deriver *identity.Deriver, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, deriver: deriver, metrics: m, logger: logger}
}

// identityFor derives the voter identity of a request. explicit, when set, wins over
// the header, form, and query fallbacks.
func (h *Handler) identityFor(c *gin.Context, explicit string) identity.Identity {
	src := identity.SourceFunc(func(_ context.Context) (string, error) {
		for _, v := range []string{explicit, c.GetHeader(HeaderVisitorID), c.PostForm(FieldVisitorID), c.Query(FieldVisitorID)} {
			if v = strings.TrimSpace(v); v != "" {
				return v, nil
			}
		}
		return "", identity.ErrNoVisitorID
	})
	id := h.deriver.Derive(c.Request.Context(), src, c.ClientIP())
	h.metrics.Identity(string(id.Kind))
	return id
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := Code(err)
	response.Error(c, HTTPStatus(code), code, err.Error())
}

// VoteRequest is the body of POST /api/vote/:token.
type VoteRequest struct {
	Scores    map[string]float64 `json:"scores"`
	Verdict   string             `json:"verdict"`
	VisitorID string             `json:"visitor_id"`
}

// VoteResponse is returned after a stored vote.
type VoteResponse struct {
	VoteID       string  `json:"vote_id"`
	SessionID    string  `json:"session_id"`
	AverageScore float64 `json:"average_score"`
}

// BallotResponse is returned by GET /api/vote/:token.
type BallotResponse struct {
	Session      *models.ResolvedSession `json:"session"`
	AlreadyVoted bool                    `json:"already_voted"`
	IdentityKind identity.Kind           `json:"identity_kind"`
}

// Open handles GET /api/vote/:token.
func (h *Handler) Open(c *gin.Context) {
	id := h.identityFor(c, "")
	b, err := h.svc.Open(c.Request.Context(), c.Param("token"), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, BallotResponse{Session: b.Session, AlreadyVoted: b.AlreadyVoted, IdentityKind: id.Kind})
}

// Submit handles POST /api/vote/:token.
func (h *Handler) Submit(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, HTTPStatus(CodeInputInvalid), CodeInputInvalid, "invalid request: "+err.Error())
		return
	}
	id := h.identityFor(c, req.VisitorID)
	v, err := h.svc.Submit(c.Request.Context(), SubmitRequest{
		Token:    c.Param("token"),
		Scores:   req.Scores,
		Verdict:  models.Verdict(strings.TrimSpace(req.Verdict)),
		Identity: id,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, VoteResponse{
		VoteID:       v.ID.String(),
		SessionID:    v.VotingSessionID.String(),
		AverageScore: v.AverageScore,
	})
}

// Dimensions handles GET /api/dimensions.
func (h *Handler) Dimensions(c *gin.Context) {
	response.OK(c, gin.H{
		"dimensions": scoring.Dimensions(),
		"min":        scoring.Min,
		"max":        scoring.Max,
		"step":       scoring.Step,
		"default":    scoring.Default,
	})
}
