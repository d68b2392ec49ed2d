package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/healthpredictor/healthpredictor-backend/internal/middleware"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
	"github.com/healthpredictor/healthpredictor-backend/internal/services"
	"github.com/healthpredictor/healthpredictor-backend/internal/sse"
)

type StudyHandler struct {
	log          *logger.Logger
	chatService  services.ChatService
	studyService services.StudyService
}

func NewStudyHandler(log *logger.Logger, chatService services.ChatService, studyService services.StudyService) *StudyHandler {
	return &StudyHandler{
		log:          log.With("handler", "StudyHandler"),
		chatService:  chatService,
		studyService: studyService,
	}
}

type generateOutcomeRequest struct {
	S3URL     string `json:"s3_url"`
	Text      string `json:"text"`
	UserInput string `json:"user_input"`
	StudyID   string `json:"study_id"`
	Title     string `json:"title"`
}

func (h *StudyHandler) GenerateOutcome(c *gin.Context) {
	var req generateOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	text := req.Text
	if strings.TrimSpace(text) == "" {
		text = req.UserInput
	}

	setup, err := h.studyService.Setup(c.Request.Context(), middleware.UserID(c), req.Title, req.StudyID)
	if err != nil {
		RespondError(c, err)
		return
	}

	session, err := h.chatService.GenerateOutcome(c.Request.Context(), req.S3URL, text, setup.SaveOutcome)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.stream(c, setup.StudyID, session)
}

type summarizeStudyRequest struct {
	Text    string `json:"text"`
	StudyID string `json:"study_id"`
	Title   string `json:"title"`
}

func (h *StudyHandler) SummarizeStudy(c *gin.Context) {
	var req summarizeStudyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}

	setup, err := h.studyService.Setup(c.Request.Context(), middleware.UserID(c), req.Title, req.StudyID)
	if err != nil {
		RespondError(c, err)
		return
	}

	session, err := h.chatService.SummarizeStudy(c.Request.Context(), req.Text, setup.SaveSummary)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.stream(c, setup.StudyID, session)
}

func (h *StudyHandler) List(c *gin.Context) {
	studies, err := h.studyService.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, studies)
}

type createStudyRequest struct {
	StudyID string `json:"study_id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Outcome string `json:"outcome"`
}

func (h *StudyHandler) Create(c *gin.Context) {
	var req createStudyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}

	study, err := h.studyService.Create(c.Request.Context(), middleware.UserID(c), req.StudyID, req.Title, req.Summary, req.Outcome)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, study)
}

func (h *StudyHandler) stream(c *gin.Context, studyID string, session *services.StreamSession) {
	if studyID != "" {
		c.Header("X-Study-ID", studyID)
	}
	sse.WriteHeaders(c.Writer)
	sse.Relay(c.Request.Context(), c.Writer, session.Source, h.log, session.OnComplete)
}
