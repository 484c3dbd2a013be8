package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/service"
)

type replyRequest struct {
	AdvertID uint   `json:"advert_id" binding:"required"`
	Text     string `json:"text" binding:"required"`
}

// CreateReply 给广告留回复并通知广告作者。
func (a *API) CreateReply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reply payload"})
		return
	}

	reply, err := a.replies.Create(c.Request.Context(), req.AdvertID, currentUserID(c), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":        reply.ID,
		"advert_id": reply.AdvertID,
		"status":    reply.Status,
	})
}

// MyReplies lists replies to the current user's adverts.
func (a *API) MyReplies(c *gin.Context) {
	advertID, _ := strconv.ParseUint(c.Query("advert"), 10, 64)

	filter := service.ReplyFilter{
		AdvertID: uint(advertID),
		Status:   strings.TrimSpace(c.Query("status")),
		Search:   strings.TrimSpace(c.Query("q")),
		Page:     parsePositiveInt(c.DefaultQuery("page", "1"), 1),
		PerPage:  parsePositiveInt(c.DefaultQuery("per_page", "15"), 15),
	}

	result, err := a.replies.ListForOwner(currentUserID(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, 0, len(result.Replies))
	for _, reply := range result.Replies {
		items = append(items, gin.H{
			"id":           reply.ID,
			"advert_id":    reply.AdvertID,
			"advert_title": reply.Advert.Title,
			"author":       reply.Author.Email,
			"text":         reply.Text,
			"status":       reply.Status,
			"created_at":   reply.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"replies":     items,
		"total":       result.Total,
		"page":        result.Page,
		"total_pages": result.TotalPages,
	})
}

// AcceptReply 接受回复并通知回复作者，仅限广告作者。
func (a *API) AcceptReply(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	reply, err := a.replies.Accept(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": reply.ID, "status": reply.Status})
}

// DeleteReply 软删除回复，仅限广告作者。
func (a *API) DeleteReply(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := a.replies.Delete(id, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
