package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/drossen/confer/internal/app"
	"github.com/drossen/confer/internal/domain"
	"github.com/drossen/confer/internal/media"
)

type Handlers struct {
	Session *app.Session
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.Session.Store().Rooms()})
}

// fail maps a session error onto an HTTP response. Lookup errors are
// the client's problem and log at debug only.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrPeerNotFound),
		errors.Is(err, domain.ErrTransportNotFound),
		errors.Is(err, domain.ErrConsumerNotFound):
		log.Debug().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("rejected")
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRoomIDInvalid), errors.Is(err, domain.ErrUserIDInvalid):
		log.Debug().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrEngineRejected):
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("engine rejected")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type joinRoomRequest struct {
	RoomID domain.RoomID `json:"roomId" binding:"required"`
	UserID domain.UserID `json:"userId" binding:"required"`
}

func (h *Handlers) JoinRoom(c *gin.Context) {
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	caps, err := h.Session.JoinRoom(c.Request.Context(), req.RoomID, req.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	// Record the joined identity against this client's token so the
	// notify socket can verify the channel belongs to the same client.
	sess := sessions.Default(c)
	sess.Set("userId", string(req.UserID))
	sess.Set("clientToken", c.GetString("client_token"))
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
	}

	c.JSON(http.StatusOK, gin.H{"rtpCapabilities": caps})
}

type createTransportRequest struct {
	RoomID    domain.RoomID    `json:"roomId" binding:"required"`
	UserID    domain.UserID    `json:"userId" binding:"required"`
	Direction domain.Direction `json:"direction" binding:"required,oneof=send recv"`
}

func (h *Handlers) CreateTransport(c *gin.Context) {
	var req createTransportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	info, err := h.Session.CreateTransport(c.Request.Context(), req.RoomID, req.UserID, req.Direction)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type connectTransportRequest struct {
	RoomID         domain.RoomID        `json:"roomId" binding:"required"`
	UserID         domain.UserID        `json:"userId" binding:"required"`
	TransportID    domain.TransportID   `json:"transportId" binding:"required"`
	Direction      domain.Direction     `json:"direction" binding:"required,oneof=send recv"`
	DtlsParameters media.DtlsParameters `json:"dtlsParameters" binding:"required"`
	IceParameters  *media.IceParameters `json:"iceParameters"`
	IceCandidates  []media.IceCandidate `json:"iceCandidates"`
}

func (h *Handlers) ConnectTransport(c *gin.Context) {
	var req connectTransportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.Session.ConnectTransport(c.Request.Context(), req.RoomID, req.UserID, req.TransportID, req.Direction, media.ConnectParams{
		Dtls:          req.DtlsParameters,
		Ice:           req.IceParameters,
		IceCandidates: req.IceCandidates,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type produceRequest struct {
	RoomID        domain.RoomID       `json:"roomId" binding:"required"`
	UserID        domain.UserID       `json:"userId" binding:"required"`
	TransportID   domain.TransportID  `json:"transportId" binding:"required"`
	Kind          domain.MediaKind    `json:"kind" binding:"required,oneof=audio video"`
	RtpParameters media.RtpParameters `json:"rtpParameters" binding:"required"`
}

func (h *Handlers) Produce(c *gin.Context) {
	var req produceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.Session.Produce(c.Request.Context(), req.RoomID, req.UserID, req.TransportID, req.Kind, req.RtpParameters)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type consumeRequest struct {
	RoomID           domain.RoomID         `json:"roomId" binding:"required"`
	UserID           domain.UserID         `json:"userId" binding:"required"`
	TransportID      domain.TransportID    `json:"transportId" binding:"required"`
	RtpCapabilities  media.RtpCapabilities `json:"rtpCapabilities" binding:"required"`
	RemoteProducerID domain.ProducerID     `json:"remoteProducerId" binding:"required"`
}

func (h *Handlers) Consume(c *gin.Context) {
	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.Session.Consume(c.Request.Context(), req.RoomID, req.UserID, req.TransportID, req.RtpCapabilities, req.RemoteProducerID)
	if errors.Is(err, domain.ErrNotCapable) {
		// Valid empty-effect outcome, not a fault.
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type resumeConsumerRequest struct {
	RoomID     domain.RoomID     `json:"roomId" binding:"required"`
	UserID     domain.UserID     `json:"userId" binding:"required"`
	ConsumerID domain.ConsumerID `json:"consumerId" binding:"required"`
}

func (h *Handlers) ResumeConsumer(c *gin.Context) {
	var req resumeConsumerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Session.ResumeConsumer(c.Request.Context(), req.RoomID, req.UserID, req.ConsumerID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type leaveRequest struct {
	RoomID domain.RoomID `json:"roomId" binding:"required"`
	UserID domain.UserID `json:"userId" binding:"required"`
}

func (h *Handlers) Leave(c *gin.Context) {
	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.Session.Leave(req.RoomID, req.UserID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
