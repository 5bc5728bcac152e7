package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/mumblechat/mumble/internal/model"
	"github.com/mumblechat/mumble/internal/source"
	"go.uber.org/zap"
)

// NewHandler serves src over the gateway protocol. It backs the development
// gateway (`mumbled gateway`) and the client tests. An empty token disables
// authentication. Extra middleware runs before authentication.
func NewHandler(src source.Source, token string, logger *zap.Logger, mw ...gin.HandlerFunc) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw...)

	h := &handler{src: src, logger: logger}
	v1 := r.Group("/v1")
	v1.Use(tokenAuth(token))
	{
		v1.GET("/conversations", h.listConversations)
		v1.GET("/conversations/:id/messages", h.fetchMessages)
		v1.POST("/conversations/:id/messages", h.sendMessage)
		v1.POST("/conversations/direct", h.createDirect)
		v1.POST("/conversations/group", h.createGroup)
		v1.GET("/installations", h.listInstallations)
		v1.POST("/installations/revoke", h.revokeInstallations)
		v1.GET("/stream/conversations", h.stream(src.StreamConversations))
		v1.GET("/stream/messages", h.stream(src.StreamMessages))
	}
	return r
}

type handler struct {
	src    source.Source
	logger *zap.Logger
}

func tokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || got != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "invalid token"})
			return
		}
		c.Next()
	}
}

func (h *handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, source.ErrClosed):
		status = http.StatusServiceUnavailable
	case strings.Contains(err.Error(), "not found"):
		status = http.StatusNotFound
	}
	c.JSON(status, errorBody{Error: err.Error()})
}

func (h *handler) listConversations(c *gin.Context) {
	var opts source.ListOptions
	if s := c.Query("created_after_ns"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Error: "created_after_ns: " + err.Error()})
			return
		}
		opts.CreatedAfter = n
	}
	list, err := h.src.ListConversations(c.Request.Context(), opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := conversationList{Conversations: make([]wireConversation, 0, len(list))}
	for _, rc := range list {
		resp.Conversations = append(resp.Conversations, toWireConversation(rc))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) fetchMessages(c *gin.Context) {
	msgs, err := h.src.FetchMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := messageList{Messages: make([]wireMessage, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, toWireMessage(m))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	content := model.Content{Type: model.ParseContentType(req.ContentType), Payload: req.Content}
	msg, err := h.src.SendMessage(c.Request.Context(), c.Param("id"), content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toWireMessage(msg))
}

func (h *handler) createDirect(c *gin.Context) {
	var req createDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MemberID == "" {
		c.JSON(http.StatusBadRequest, errorBody{Error: "member_id is required"})
		return
	}
	rc, err := h.src.CreateDirectConversation(c.Request.Context(), req.MemberID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toWireConversation(rc))
}

func (h *handler) createGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	meta := model.Metadata{Name: req.Name, Description: req.Description, ImageURL: req.ImageURL}
	rc, err := h.src.CreateGroupConversation(c.Request.Context(), req.MemberIDs, meta)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toWireConversation(rc))
}

func (h *handler) listInstallations(c *gin.Context) {
	list, err := h.src.ListInstallations(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := installationList{Installations: make([]wireInstallation, 0, len(list))}
	for _, inst := range list {
		resp.Installations = append(resp.Installations, wireInstallation{ID: inst.ID, CreatedAtNs: inst.CreatedAt, Current: inst.Current})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) revokeInstallations(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := h.src.RevokeInstallations(c.Request.Context(), req.InstallationIDs); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type openFunc func(context.Context, source.EventFunc) (source.Disposer, error)

// stream forwards source events to a websocket until either side goes away.
func (h *handler) stream(open openFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := websocket.Accept(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("websocket accept failed", zap.Error(err))
			return
		}
		defer func() { _ = conn.CloseNow() }()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()
		// Reading is only needed to notice the peer closing.
		ctx = conn.CloseRead(ctx)

		frames := make(chan frame, 64)
		dispose, err := open(ctx, func(evt model.Event) {
			f, ok := toFrame(evt)
			if !ok {
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
			}
		})
		if err != nil {
			_ = conn.Close(websocket.StatusInternalError, err.Error())
			return
		}
		defer dispose()

		for {
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			case f := <-frames:
				if err := wsjson.Write(ctx, conn, f); err != nil {
					return
				}
			}
		}
	}
}
