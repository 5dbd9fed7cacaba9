package api

import (
	"errors"
	"io"
	"net/http"

	"ActivitySync/internal/model"
	"ActivitySync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// IngestHandler 摄入入口：webhook投递、CSV批量导入、REST回填
type IngestHandler struct {
	ingestService *service.IngestService
	logger        *logrus.Logger
}

func NewIngestHandler(ingestService *service.IngestService, logger *logrus.Logger) *IngestHandler {
	return &IngestHandler{ingestService: ingestService, logger: logger}
}

// Webhook 单条webhook投递
// POST /ingest/webhook
func (h *IngestHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取请求体失败"})
		return
	}
	result, err := h.ingestService.IngestWebhook(c.Request.Context(), body)
	if err != nil {
		var extErr *model.ExtractionError
		if errors.As(err, &extErr) {
			// 身份字段缺失：拒绝并指明字段
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": extErr.Error(), "missing_field": extErr.Field})
			return
		}
		h.logger.WithError(err).Error("webhook摄入失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// CSV 批量导入CSV文本（text/csv 请求体）
// POST /ingest/csv
func (h *IngestHandler) CSV(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CSV请求体为空"})
		return
	}
	summary, err := h.ingestService.IngestCSV(c.Request.Context(), string(body))
	if err != nil {
		h.logger.WithError(err).Error("CSV导入失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Backfill REST/旧版回填行数组
// POST /ingest/backfill
func (h *IngestHandler) Backfill(c *gin.Context) {
	var rows []model.LegacyRow
	if err := c.ShouldBindJSON(&rows); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "回填行解析失败: " + err.Error()})
		return
	}
	summary, err := h.ingestService.IngestLegacy(c.Request.Context(), rows)
	if err != nil {
		h.logger.WithError(err).Error("REST回填失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}
