package api

import (
	"errors"
	"net/http"
	"strconv"

	"ActivitySync/internal/repository"
	"ActivitySync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AssignmentHandler 作业与课程目录接口
type AssignmentHandler struct {
	assignmentService *service.AssignmentService
	logger            *logrus.Logger
}

func NewAssignmentHandler(assignmentService *service.AssignmentService, logger *logrus.Logger) *AssignmentHandler {
	return &AssignmentHandler{assignmentService: assignmentService, logger: logger}
}

// Create 老师给一批学生布置同一目录条目，按天去重
// POST /api/assignments
func (h *AssignmentHandler) Create(c *gin.Context) {
	var req service.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数不合法: " + err.Error()})
		return
	}
	summary, err := h.assignmentService.CreateAssignments(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "目录条目不存在"})
			return
		}
		h.logger.WithError(err).Error("创建作业失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// List 按老师/学生/状态/布置日分页查作业
// GET /api/assignments
func (h *AssignmentHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := repository.AssignmentFilter{
		TeacherEmail: c.Query("teacher_email"),
		StudentEmail: c.Query("student_email"),
		Status:       c.Query("status"),
		AssignedDay:  c.Query("assigned_day"),
	}
	result, err := h.assignmentService.List(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("查询作业失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Archive 归档单条作业
// POST /api/assignments/:assignment_uuid/archive
func (h *AssignmentHandler) Archive(c *gin.Context) {
	if err := h.assignmentService.Archive(c.Request.Context(), c.Param("assignment_uuid")); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "作业不存在"})
			return
		}
		h.logger.WithError(err).Error("归档作业失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已归档"})
}

// CreateCatalog 建立可布置的课程/测验目录条目
// POST /api/catalog
func (h *AssignmentHandler) CreateCatalog(c *gin.Context) {
	var req service.CreateCatalogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数不合法: " + err.Error()})
		return
	}
	item, err := h.assignmentService.CreateCatalogItem(c.Request.Context(), req)
	if err != nil {
		h.logger.WithError(err).Error("创建目录条目失败")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, item)
}

// ListCatalog 按级别/类型分页查目录
// GET /api/catalog
func (h *AssignmentHandler) ListCatalog(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	items, total, err := h.assignmentService.ListCatalog(c.Request.Context(), c.Query("level"), c.Query("type"), page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("查询目录失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "page": page, "page_size": pageSize, "items": items})
}
