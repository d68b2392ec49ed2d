package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/healthpredictor/healthpredictor-backend/internal/middleware"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
	"github.com/healthpredictor/healthpredictor-backend/internal/services"
	"github.com/healthpredictor/healthpredictor-backend/internal/sse"
)

type ChatHandler struct {
	log           *logger.Logger
	chatService   services.ChatService
	selector      services.SelectorService
	conversations services.ConversationService
}

func NewChatHandler(log *logger.Logger, chatService services.ChatService, selector services.SelectorService, conversations services.ConversationService) *ChatHandler {
	return &ChatHandler{
		log:           log.With("handler", "ChatHandler"),
		chatService:   chatService,
		selector:      selector,
		conversations: conversations,
	}
}

type simpleChatRequest struct {
	UserInput      string `json:"user_input"`
	ConversationID string `json:"conversation_id"`
}

func (h *ChatHandler) SimpleChat(c *gin.Context) {
	var req simpleChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}

	session, err := h.chatService.SimpleChat(c.Request.Context(), middleware.UserID(c), req.ConversationID, req.UserInput)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.stream(c, session)
}

type analyzeHealthDataRequest struct {
	S3URL          string `json:"s3_url"`
	UserInput      string `json:"user_input"`
	ConversationID string `json:"conversation_id"`
}

func (h *ChatHandler) AnalyzeHealthData(c *gin.Context) {
	var req analyzeHealthDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}

	session, err := h.chatService.AnalyzeHealthData(c.Request.Context(), middleware.UserID(c), req.ConversationID, req.UserInput, req.S3URL)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.stream(c, session)
}

type selectorRequest struct {
	UserInput string `json:"user_input"`
}

func (h *ChatHandler) ShouldUseCodeInterpreter(c *gin.Context) {
	var req selectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}

	verdict, err := h.selector.ShouldUseCodeInterpreter(c.Request.Context(), req.UserInput)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"use_code_interpreter": verdict})
}

func (h *ChatHandler) History(c *gin.Context) {
	turns, err := h.conversations.History(c.Request.Context(), c.Param("conversation_id"), middleware.UserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, turns)
}

func (h *ChatHandler) Sessions(c *gin.Context) {
	sessions, err := h.conversations.Sessions(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, sessions)
}

func (h *ChatHandler) ClearHistory(c *gin.Context) {
	if err := h.conversations.Clear(c.Request.Context(), c.Param("conversation_id"), middleware.UserID(c)); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

// stream relays the opened completion to the client. The conversation id
// travels in a header since the body is the event stream.
func (h *ChatHandler) stream(c *gin.Context, session *services.StreamSession) {
	if session.ConversationID != "" {
		c.Header("X-Conversation-ID", session.ConversationID)
	}
	sse.WriteHeaders(c.Writer)
	sse.Relay(c.Request.Context(), c.Writer, session.Source, h.log, session.OnComplete)
}
