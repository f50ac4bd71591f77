// Package meetings serves meeting listings and Meeting SDK join signatures.
package meetings

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/models"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/zoom"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/response"
)

// Store reads meetings from the ledger and applies provider syncs.
type Store interface {
	FindMeeting(ctx context.Context, meetingID string) (*models.Meeting, error)
	ListMeetings(ctx context.Context) ([]models.Meeting, error)
	SyncMeeting(ctx context.Context, attrs models.MeetingAttrs) (*models.Meeting, bool, error)
}

// Provider lists and looks up meetings at the provider.
type Provider interface {
	ListMeetings(ctx context.Context, userID, meetingType string) ([]zoom.Meeting, error)
	GetMeeting(ctx context.Context, meetingID string) (*zoom.Meeting, error)
}

// SyncSummary is returned by the sync endpoint.
type SyncSummary struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// StatusResponse is the provider-side state of a stored meeting.
type StatusResponse struct {
	MeetingID string     `json:"meeting_id"`
	Topic     string     `json:"topic"`
	Status    string     `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	Duration  int        `json:"duration"`
	JoinURL   string     `json:"join_url,omitempty"`
}

// Signer issues SDK join signatures.
type Signer interface {
	Signature(meetingNumber string, role int) (string, error)
}

// SignatureResponse is returned by the sdk-signature endpoint.
type SignatureResponse struct {
	MeetingID string `json:"meeting_id"`
	Role      int    `json:"role"`
	Signature string `json:"signature"`
	SDKKey    string `json:"sdk_key"`
}

// Handler handles meeting HTTP endpoints.
type Handler struct {
	store    Store
	signer   Signer
	provider Provider
	sdkKey   string
	userID   string
	logger   *zap.Logger
}

// NewHandler creates a meetings handler. signer may be nil when SDK credentials
// are not configured, provider when API credentials are not. userID is the
// provider user whose meetings are synced.
func NewHandler(store Store, signer Signer, provider Provider, sdkKey, userID string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if userID == "" {
		userID = "me"
	}
	return &Handler{store: store, signer: signer, provider: provider, sdkKey: sdkKey, userID: userID, logger: logger}
}

// Register mounts the meeting routes.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/meetings", h.List)
	r.POST("/meetings/sync", h.Sync)
	r.GET("/meetings/:meetingId", h.Get)
	r.GET("/meetings/:meetingId/status", h.Status)
	r.GET("/meetings/:meetingId/sdk-signature", h.SDKSignature)
}

// List handles GET /meetings.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.ListMeetings(c.Request.Context())
	if err != nil {
		h.logger.Error("list meetings failed", zap.Error(err))
		response.Internal(c, "failed to list meetings")
		return
	}
	response.OK(c, list)
}

// Get handles GET /meetings/:meetingId.
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("meetingId")
	m, err := h.store.FindMeeting(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get meeting failed", zap.Error(err), zap.String("meeting_id", id))
		response.Internal(c, "failed to get meeting")
		return
	}
	if m == nil {
		response.NotFound(c, "meeting not found")
		return
	}
	response.OK(c, m)
}

// Sync handles POST /meetings/sync: pull scheduled meetings from the provider
// and create or update them in the ledger.
func (h *Handler) Sync(c *gin.Context) {
	if h.provider == nil {
		response.ServiceUnavailable(c, "provider not configured")
		return
	}
	ctx := c.Request.Context()
	listed, err := h.provider.ListMeetings(ctx, h.userID, zoom.MeetingTypeScheduled)
	if err != nil {
		h.providerError(c, "meeting sync failed", err)
		return
	}

	var summary SyncSummary
	for _, m := range listed {
		id := m.ID.String()
		if id == "" {
			continue
		}
		summary.Total++
		_, created, err := h.store.SyncMeeting(ctx, models.MeetingAttrs{
			MeetingID: id,
			UUID:      m.UUID,
			Topic:     m.Topic,
			HostID:    m.HostID,
			StartTime: m.StartTime.Time,
		})
		switch {
		case err != nil:
			summary.Failed++
			h.logger.Error("sync meeting failed", zap.String("meeting_id", id), zap.Error(err))
		case created:
			summary.Created++
		default:
			summary.Updated++
		}
	}
	h.logger.Info("meetings synced",
		zap.Int("total", summary.Total),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
	)
	response.OK(c, summary)
}

// Status handles GET /meetings/:meetingId/status: the provider's live view of a stored meeting.
func (h *Handler) Status(c *gin.Context) {
	if h.provider == nil {
		response.ServiceUnavailable(c, "provider not configured")
		return
	}
	id := c.Param("meetingId")
	stored, err := h.store.FindMeeting(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get meeting failed", zap.Error(err), zap.String("meeting_id", id))
		response.Internal(c, "failed to get meeting")
		return
	}
	if stored == nil {
		response.NotFound(c, "meeting not found")
		return
	}
	live, err := h.provider.GetMeeting(c.Request.Context(), id)
	if err != nil {
		if zoom.IsNotFound(err) {
			response.NotFound(c, "meeting not found at provider")
			return
		}
		h.providerError(c, "meeting status failed", err)
		return
	}
	out := StatusResponse{
		MeetingID: stored.MeetingID,
		Topic:     live.Topic,
		Status:    live.Status,
		Duration:  live.Duration,
		JoinURL:   live.JoinURL,
	}
	if !live.StartTime.IsZero() {
		start := live.StartTime.Time
		out.StartTime = &start
	}
	response.OK(c, out)
}

func (h *Handler) providerError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	if zoom.IsAuthError(err) {
		response.BadGateway(c, "provider authentication failed")
		return
	}
	response.BadGateway(c, "provider request failed")
}

// SDKSignature handles GET /meetings/:meetingId/sdk-signature?role=0|1.
func (h *Handler) SDKSignature(c *gin.Context) {
	if h.signer == nil {
		response.ServiceUnavailable(c, "sdk credentials not configured")
		return
	}
	id := c.Param("meetingId")
	role := zoom.RoleAttendee
	if raw := c.Query("role"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || (v != zoom.RoleAttendee && v != zoom.RoleHost) {
			response.BadRequest(c, "role must be 0 (attendee) or 1 (host)")
			return
		}
		role = v
	}

	m, err := h.store.FindMeeting(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get meeting failed", zap.Error(err), zap.String("meeting_id", id))
		response.Internal(c, "failed to get meeting")
		return
	}
	if m == nil {
		response.NotFound(c, "meeting not found")
		return
	}

	sig, err := h.signer.Signature(m.MeetingID, role)
	if err != nil {
		h.logger.Error("sdk signature failed", zap.Error(err), zap.String("meeting_id", id))
		response.Internal(c, "failed to sign")
		return
	}
	response.OK(c, SignatureResponse{MeetingID: m.MeetingID, Role: role, Signature: sig, SDKKey: h.sdkKey})
}
