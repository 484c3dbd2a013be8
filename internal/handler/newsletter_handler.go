package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Subscribe 开启当前用户的邮件订阅。
func (a *API) Subscribe(c *gin.Context) {
	subscription, err := a.newsletters.Subscribe(currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscribed": subscription.IsActive})
}

// Unsubscribe 关闭当前用户的邮件订阅。
func (a *API) Unsubscribe(c *gin.Context) {
	if _, err := a.newsletters.Unsubscribe(currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscribed": false})
}

type templateRequest struct {
	Title    string `json:"title" binding:"required"`
	HTMLBody string `json:"html_body" binding:"required"`
}

// CreateTemplate 保存群发模板，仅限 staff。
func (a *API) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template payload"})
		return
	}

	template, err := a.newsletters.CreateTemplate(req.Title, req.HTMLBody)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": template.ID, "title": template.Title})
}

// DispatchNewsletter 在后台启动（或续跑）模板的批量发送。发送相对
// 请求而言是长任务，绝不在请求路径里同步执行。
func (a *API) DispatchNewsletter(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	go func(templateID uint) {
		if _, err := a.newsletters.Dispatch(context.Background(), templateID); err != nil {
			slog.Error("newsletter dispatch failed", "template_id", templateID, "error", err)
		}
	}(id)

	c.JSON(http.StatusAccepted, gin.H{"dispatching": true, "template_id": id})
}

// NewsletterJobStatus 返回模板当前（或最近）任务的进度。
func (a *API) NewsletterJobStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	job, err := a.newsletters.FindActiveJobByTemplate(id)
	if err != nil {
		respondError(c, err)
		return
	}
	if job == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active": true,
		"job": gin.H{
			"id":     job.ID,
			"status": job.Status,
			"total":  job.Total,
			"sent":   job.Sent,
			"errors": job.Errors,
		},
	})
}
