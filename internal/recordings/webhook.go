package recordings

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ingest"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/zoom"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/response"
)

const maxWebhookBody = 1 << 20

// WebhookHandler handles signed recording webhooks from Zoom.
type WebhookHandler struct {
	verifier   *zoom.Verifier
	dispatcher ingest.Dispatcher
	logger     *zap.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(verifier *zoom.Verifier, dispatcher ingest.Dispatcher, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{verifier: verifier, dispatcher: dispatcher, logger: logger}
}

// Register mounts the webhook route.
func (h *WebhookHandler) Register(r gin.IRouter) {
	r.POST("/webhooks/recording", h.Recording)
}

// Recording handles POST /webhooks/recording. The signature is checked before anything else.
func (h *WebhookHandler) Recording(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}

	if err := h.verifier.Verify(c.GetHeader(zoom.TimestampHeader), body, c.GetHeader(zoom.SignatureHeader)); err != nil {
		h.logger.Warn("webhook rejected", zap.Error(err), zap.String("client_ip", c.ClientIP()))
		if errors.Is(err, zoom.ErrStaleTimestamp) {
			response.Unauthorized(c, "stale webhook timestamp")
			return
		}
		response.Unauthorized(c, "invalid signature")
		return
	}

	var event zoom.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Event == "" {
		response.BadRequest(c, "invalid webhook payload")
		return
	}

	switch event.Event {
	case zoom.EventURLValidation:
		h.urlValidation(c, event)
	case zoom.EventRecordingCompleted:
		h.recordingCompleted(c, event)
	case zoom.EventRecordingStarted, zoom.EventRecordingStopped:
		var p zoom.RecordingPayload
		_ = json.Unmarshal(event.Payload, &p)
		h.logger.Info("recording status event",
			zap.String("event", event.Event),
			zap.String("meeting_id", p.Object.ID.String()),
			zap.String("meeting_uuid", p.Object.UUID),
		)
		response.OK(c, gin.H{"event": event.Event})
	default:
		h.logger.Debug("webhook event ignored", zap.String("event", event.Event))
		response.OK(c, gin.H{"event": event.Event, "ignored": true})
	}
}

func (h *WebhookHandler) urlValidation(c *gin.Context, event zoom.WebhookEvent) {
	var p zoom.URLValidationPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil || p.PlainToken == "" {
		response.BadRequest(c, "missing plainToken")
		return
	}
	c.JSON(http.StatusOK, zoom.URLValidationResponse{
		PlainToken:     p.PlainToken,
		EncryptedToken: h.verifier.EncryptToken(p.PlainToken),
	})
}

func (h *WebhookHandler) recordingCompleted(c *gin.Context, event zoom.WebhookEvent) {
	var p zoom.RecordingPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		response.BadRequest(c, "invalid recording payload")
		return
	}
	if err := p.Object.Validate(); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	descs := Descriptors(p.Object, "")
	if err := h.dispatcher.Dispatch(c.Request.Context(), descs); err != nil {
		h.logger.Error("dispatch recordings failed", zap.Error(err), zap.String("meeting_id", p.Object.ID.String()))
		response.ServiceUnavailable(c, "failed to accept recordings")
		return
	}
	h.logger.Info("recording.completed accepted",
		zap.String("meeting_id", p.Object.ID.String()),
		zap.Int("files", len(p.Object.RecordingFiles)),
		zap.Int("accepted", len(descs)),
	)
	response.OK(c, gin.H{"event": event.Event, "accepted": len(descs)})
}
