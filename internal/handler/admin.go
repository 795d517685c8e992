package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weibaohui/insurebot/internal/model"
	"github.com/weibaohui/insurebot/internal/repository"
	"github.com/weibaohui/insurebot/internal/service/export"
	"k8s.io/klog/v2"
)

const defaultListLimit = 100

type SessionAdmin interface {
	Find(ctx context.Context, chatID int64) (*model.Session, error)
	Reset(ctx context.Context, chatID int64) (*model.Session, error)
}

type TransitionLister interface {
	ListByChat(ctx context.Context, chatID int64, limit int) ([]model.Transition, error)
}

type PolicyExporter interface {
	ListPolicies(ctx context.Context, limit int) ([]export.PolicyRow, error)
	ExportPoliciesXLSX(ctx context.Context, limit int) ([]byte, error)
}

// AdminHandler 会话查询、重置与保单导出
type AdminHandler struct {
	sessions    SessionAdmin
	transitions TransitionLister
	policies    PolicyExporter
}

func NewAdminHandler(sessions SessionAdmin, transitions TransitionLister, policies PolicyExporter) *AdminHandler {
	return &AdminHandler{sessions: sessions, transitions: transitions, policies: policies}
}

func (h *AdminHandler) RegisterRoutes(router *gin.RouterGroup) {
	admin := router.Group("/admin")
	{
		admin.GET("/sessions/:chatId", h.GetSession)
		admin.POST("/sessions/:chatId/reset", h.ResetSession)
		admin.GET("/policies", h.ListPolicies)
		admin.GET("/policies/export", h.ExportPolicies)
	}
}

// SessionResponse 会话及最近的状态变更
type SessionResponse struct {
	Session     *model.Session     `json:"session"`
	Transitions []model.Transition `json:"transitions"`
}

// GetSession 查询会话
func (h *AdminHandler) GetSession(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	sess, err := h.sessions.Find(c.Request.Context(), chatID)
	if err != nil {
		h.respondLookupError(c, chatID, err)
		return
	}

	resp := SessionResponse{Session: sess, Transitions: []model.Transition{}}
	if h.transitions != nil {
		transitions, err := h.transitions.ListByChat(c.Request.Context(), chatID, parseLimit(c))
		if err != nil {
			klog.Errorf("查询状态变更失败: chatID=%d, error=%v", chatID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp.Transitions = transitions
	}
	c.JSON(http.StatusOK, resp)
}

// ResetSession 重置会话到入口状态
func (h *AdminHandler) ResetSession(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	sess, err := h.sessions.Reset(c.Request.Context(), chatID)
	if err != nil {
		h.respondLookupError(c, chatID, err)
		return
	}
	klog.Infof("管理端重置会话: chatID=%d", chatID)
	c.JSON(http.StatusOK, sess)
}

// ListPolicies 已签发保单列表
func (h *AdminHandler) ListPolicies(c *gin.Context) {
	rows, err := h.policies.ListPolicies(c.Request.Context(), parseLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// ExportPolicies 导出 XLSX
func (h *AdminHandler) ExportPolicies(c *gin.Context) {
	data, err := h.policies.ExportPoliciesXLSX(c.Request.Context(), parseLimit(c))
	if err != nil {
		klog.Errorf("导出保单失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("policies_%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// Health 存活检查
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AdminHandler) respondLookupError(c *gin.Context, chatID int64, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	klog.Errorf("查询会话失败: chatID=%d, error=%v", chatID, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func parseChatID(c *gin.Context) (int64, bool) {
	chatID, err := strconv.ParseInt(c.Param("chatId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return 0, false
	}
	return chatID, true
}

func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}
