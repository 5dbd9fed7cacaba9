package api

import (
	"net/http"

	"ActivitySync/internal/model"
	"ActivitySync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminHandler 运维接口：修复、重放、归档与清理
type AdminHandler struct {
	repairService   *service.RepairService
	attemptService  *service.AttemptService
	backfillService *service.BackfillService
	logger          *logrus.Logger
}

func NewAdminHandler(repairService *service.RepairService, attemptService *service.AttemptService, backfillService *service.BackfillService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		repairService:   repairService,
		attemptService:  attemptService,
		backfillService: backfillService,
		logger:          logger,
	}
}

// RepairScores 扫描全部事件，从原始载荷重算分数并按安全规则覆盖
// POST /repair/scores
func (h *AdminHandler) RepairScores(c *gin.Context) {
	summary, err := h.repairService.RepairScores(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("分数修复失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RepairCourses 为缺课程的事件回查上游补齐
// POST /repair/courses
func (h *AdminHandler) RepairCourses(c *gin.Context) {
	summary, err := h.repairService.RepairCourses(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("课程修复失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RepairAttempts 全量重算尝试序号
// POST /repair/attempts
func (h *AdminHandler) RepairAttempts(c *gin.Context) {
	summary, err := h.attemptService.RecomputeAll(c.Request.Context(), 0, 0)
	if err != nil {
		h.logger.WithError(err).Error("尝试序号重算失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Replay 重放某来源的原始捕获，补齐缺字段并摄入漏网事件
// POST /repair/replay
func (h *AdminHandler) Replay(c *gin.Context) {
	source := model.SourceType(c.DefaultQuery("source", string(model.SourceWebhook)))
	summary, err := h.backfillService.ReplayCaptures(c.Request.Context(), source)
	if err != nil {
		h.logger.WithError(err).Error("捕获重放失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

type archiveRequest struct {
	EventUUIDs []string `json:"event_uuids" binding:"required"`
	Reason     string   `json:"reason"`
}

// Archive 按UUID批量软删（metadata打归档标记）
// POST /admin/archive
func (h *AdminHandler) Archive(c *gin.Context) {
	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数不合法: " + err.Error()})
		return
	}
	summary, err := h.repairService.ArchiveEvents(c.Request.Context(), req.EventUUIDs, req.Reason)
	if err != nil {
		h.logger.WithError(err).Error("批量归档失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// PurgeArchived 物理删除已归档事件。confirm=true 才真正删除，
// 否则只返回预览；删除前先把每条快照进 raw_captures。
// POST /admin/purge-archived
func (h *AdminHandler) PurgeArchived(c *gin.Context) {
	confirm := c.Query("confirm") == "true"
	result, err := h.repairService.PurgeArchived(c.Request.Context(), confirm)
	if err != nil {
		h.logger.WithError(err).Error("归档清理失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
