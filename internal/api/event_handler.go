package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"ActivitySync/internal/repository"
	"ActivitySync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventHandler 规范事件查询接口
type EventHandler struct {
	queryService *service.QueryService
	logger       *logrus.Logger
}

func NewEventHandler(queryService *service.QueryService, logger *logrus.Logger) *EventHandler {
	return &EventHandler{queryService: queryService, logger: logger}
}

// List 分页查询事件，支持类型/学生/来源/时间窗过滤
// GET /api/events
func (h *EventHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := repository.EventFilter{
		EventType:    c.Query("event_type"),
		StudentEmail: c.Query("student_email"),
		Source:       c.Query("source"),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from 时间格式无效，应为RFC3339"})
			return
		}
		filter.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to 时间格式无效，应为RFC3339"})
			return
		}
		filter.To = &t
	}

	result, err := h.queryService.ListEvents(c.Request.Context(), filter, c.Query("teacher_email"), page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("事件查询失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get 按UUID查询单条事件
// GET /api/events/:event_uuid
func (h *EventHandler) Get(c *gin.Context) {
	ev, err := h.queryService.GetEvent(c.Request.Context(), c.Param("event_uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "事件不存在"})
			return
		}
		h.logger.WithError(err).Error("事件查询失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ev)
}

// StudentScores 学生成绩历史（按时间升序，含尝试序号）
// GET /api/students/:email/scores
func (h *EventHandler) StudentScores(c *gin.Context) {
	email := c.Param("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "学生邮箱不能为空"})
		return
	}
	entries, err := h.queryService.ScoreHistory(c.Request.Context(), email)
	if err != nil {
		h.logger.WithError(err).Error("成绩历史查询失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"student_email": email, "total": len(entries), "scores": entries})
}
