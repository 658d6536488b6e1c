package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-api/apperr"
	"github.com/LovationAdmin/finance-api/logger"
	"github.com/LovationAdmin/finance-api/sanitize"
	"github.com/LovationAdmin/finance-api/services"
	"github.com/LovationAdmin/finance-api/utils"
)

const webhookSecretHeader = "X-Webhook-Secret"

type SyncHandler struct {
	svc           *services.SyncService
	webhookSecret string
}

func NewSyncHandler(svc *services.SyncService, webhookSecret string) *SyncHandler {
	return &SyncHandler{svc: svc, webhookSecret: webhookSecret}
}

// ImportItem pulls a linked item from the aggregator for the caller.
func (h *SyncHandler) ImportItem(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	p, err := readPayload(c)
	if err != nil {
		respondError(c, err)
		return
	}
	in, err := sanitize.ParseSyncImport(p)
	if err != nil {
		respondError(c, err)
		return
	}

	if _, err := h.svc.ImportItem(c.Request.Context(), owner, in.ItemID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListSynced returns every account and the recent transactions with their
// decrypted raw records.
func (h *SyncHandler) ListSynced(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	data, err := h.svc.ListForOwner(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

// Webhook receives aggregator notifications. It is unauthenticated apart
// from the shared secret header.
func (h *SyncHandler) Webhook(c *gin.Context) {
	got := c.GetHeader(webhookSecretHeader)
	if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
		respondError(c, apperr.Unauthorized())
		return
	}

	var ev services.WebhookEvent
	if err := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)).Decode(&ev); err != nil {
		respondError(c, apperr.Validation("body", "invalid webhook payload"))
		return
	}

	handled, err := h.svc.HandleWebhook(c.Request.Context(), ev)
	if err != nil {
		respondError(c, err)
		return
	}

	log := logger.FromContext(c.Request.Context())
	log.Info().Str("event", ev.Event).Str("item", utils.MaskID(ev.ItemID)).Bool("handled", handled).Msg("webhook received")
	c.JSON(http.StatusOK, gin.H{"ok": true, "handled": handled})
}
