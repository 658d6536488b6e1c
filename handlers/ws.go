package handlers

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/olahol/melody"
	"github.com/rs/zerolog"

	"github.com/LovationAdmin/finance-api/services"
	"github.com/LovationAdmin/finance-api/utils"
)

const ownerKey = "owner_id"

// WSHandler holds the realtime sessions. Each session belongs to one owner
// and only receives that owner's change events.
type WSHandler struct {
	M   *melody.Melody
	log zerolog.Logger
}

func NewWSHandler(log zerolog.Logger, allowedOrigins []string) *WSHandler {
	m := melody.New()
	m.Upgrader = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, origin)
		},
	}

	// Clients only listen; anything they send is small.
	m.Config.MaxMessageSize = 4 * 1024

	// Keep-alive for hosts that drop idle connections.
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	h := &WSHandler{M: m, log: log}

	m.HandleConnect(func(s *melody.Session) {
		h.log.Debug().Str("owner", utils.MaskID(sessionOwner(s))).Msg("websocket connected")
	})
	m.HandleDisconnect(func(s *melody.Session) {
		h.log.Debug().Str("owner", utils.MaskID(sessionOwner(s))).Msg("websocket disconnected")
	})
	m.HandleError(func(s *melody.Session, err error) {
		h.log.Warn().Err(err).Msg("websocket error")
	})

	return h
}

func sessionOwner(s *melody.Session) string {
	v, _ := s.Get(ownerKey)
	owner, _ := v.(string)
	return owner
}

// HandleWS upgrades an authenticated request.
func (h *WSHandler) HandleWS(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	if err := h.M.HandleRequestWithKeys(c.Writer, c.Request, map[string]any{ownerKey: owner}); err != nil {
		h.log.Warn().Err(err).Msg("failed to upgrade websocket")
	}
}

type wsMessage struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

// Notify sends event to every session of ownerID.
func (h *WSHandler) Notify(ownerID, event string) {
	msg, err := json.Marshal(wsMessage{Type: event, At: time.Now().UTC()})
	if err != nil {
		return
	}

	err = h.M.BroadcastFilter(msg, func(s *melody.Session) bool {
		return sessionOwner(s) == ownerID
	})
	if err != nil {
		h.log.Warn().Err(err).Str("event", event).Msg("broadcast failed")
	}
}

// Close disconnects every session.
func (h *WSHandler) Close() error {
	return h.M.Close()
}

var _ services.Notifier = (*WSHandler)(nil)
