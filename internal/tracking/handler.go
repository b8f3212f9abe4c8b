package tracking

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/models"
	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/outreach"
	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/response"
)

// Store is the read side of outreach tracking used by the admin API.
type Store interface {
	Get(ctx context.Context, memberID string) (*models.OutreachRecord, error)
	Stats(ctx context.Context) (Stats, error)
}

// RegistrationLookup fetches a member's registration, nil when absent.
type RegistrationLookup interface {
	GetByMemberID(ctx context.Context, memberID string) (*models.Registration, error)
}

// Checker evaluates current eligibility for a member.
type Checker interface {
	Check(ctx context.Context, memberID string) (outreach.Reason, error)
}

// Starter launches a background engagement session.
type Starter interface {
	Start(ctx context.Context, m outreach.Member)
}

// Handler serves member and outreach endpoints.
type Handler struct {
	store   Store
	regs    RegistrationLookup
	checker Checker
	starter Starter
	// sessions outlive the request; they run on the application context.
	appCtx context.Context
	logger *zap.Logger
}

// NewHandler creates a member outreach handler.
func NewHandler(appCtx context.Context, store Store, regs RegistrationLookup, checker Checker, starter Starter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, regs: regs, checker: checker, starter: starter, appCtx: appCtx, logger: logger}
}

// MemberResponse is the body of GET /members/:id.
type MemberResponse struct {
	MemberID     string                 `json:"member_id"`
	Registration *models.Registration   `json:"registration"`
	Tracking     *models.OutreachRecord `json:"tracking"`
	Eligibility  outreach.Reason        `json:"eligibility"`
}

// GetMember handles GET /members/:id.
func (h *Handler) GetMember(c *gin.Context) {
	memberID := c.Param("id")
	ctx := c.Request.Context()

	reg, err := h.regs.GetByMemberID(ctx, memberID)
	if err != nil {
		h.logger.Error("get registration", zap.String("member_id", memberID), zap.Error(err))
		response.Internal(c, "failed to load registration")
		return
	}
	rec, err := h.store.Get(ctx, memberID)
	if err != nil {
		h.logger.Error("get tracking", zap.String("member_id", memberID), zap.Error(err))
		response.Internal(c, "failed to load tracking")
		return
	}
	if reg == nil && rec == nil {
		response.NotFound(c, "member has no registration or outreach history")
		return
	}
	reason, err := h.checker.Check(ctx, memberID)
	if err != nil {
		h.logger.Error("check eligibility", zap.String("member_id", memberID), zap.Error(err))
		response.Internal(c, "failed to evaluate eligibility")
		return
	}
	response.OK(c, MemberResponse{MemberID: memberID, Registration: reg, Tracking: rec, Eligibility: reason})
}

// EngageRequest is the optional body for POST /members/:id/engage.
type EngageRequest struct {
	DisplayName string `json:"display_name"`
}

// Engage handles POST /members/:id/engage: starts a session if the member is eligible now.
// The session itself re-checks under the member lock.
func (h *Handler) Engage(c *gin.Context) {
	memberID := c.Param("id")
	var req EngageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	if req.DisplayName == "" {
		req.DisplayName = memberID
	}

	reason, err := h.checker.Check(c.Request.Context(), memberID)
	if err != nil {
		h.logger.Error("check eligibility", zap.String("member_id", memberID), zap.Error(err))
		response.Internal(c, "failed to evaluate eligibility")
		return
	}
	if !reason.Eligible() {
		response.Conflict(c, "member is not eligible: "+string(reason))
		return
	}
	h.starter.Start(h.appCtx, outreach.Member{ID: memberID, DisplayName: req.DisplayName})
	h.logger.Info("manual engagement started", zap.String("member_id", memberID))
	response.Accepted(c, gin.H{"member_id": memberID, "status": "started"})
}

// GetStats handles GET /outreach/stats.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("outreach stats", zap.Error(err))
		response.Internal(c, "failed to load stats")
		return
	}
	response.OK(c, stats)
}
