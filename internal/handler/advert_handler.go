package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/db"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/service"
)

// ListAdverts returns published adverts with category/search filters.
func (a *API) ListAdverts(c *gin.Context) {
	filter := service.AdvertFilter{
		CategorySlug: strings.TrimSpace(c.Query("category")),
		Search:       strings.TrimSpace(c.Query("q")),
		Page:         parsePositiveInt(c.DefaultQuery("page", "1"), 1),
		PerPage:      parsePositiveInt(c.DefaultQuery("per_page", "15"), 15),
	}

	result, err := a.adverts.List(filter)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, 0, len(result.Adverts))
	for i := range result.Adverts {
		items = append(items, advertSummary(&result.Adverts[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"adverts":     items,
		"total":       result.Total,
		"page":        result.Page,
		"total_pages": result.TotalPages,
	})
}

// GetAdvert returns one published advert with its rendered body.
func (a *API) GetAdvert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	advert, err := a.adverts.GetPublished(id)
	if err != nil {
		respondError(c, err)
		return
	}

	payload := advertSummary(advert)
	payload["body_md"] = advert.BodyMD
	payload["body_html"] = advert.BodyHTML
	c.JSON(http.StatusOK, payload)
}

// CreateAdvert 接收 multipart 表单（文本字段 + 可选图片/视频），
// 走嵌入与净化管线后保存。
func (a *API) CreateAdvert(c *gin.Context) {
	input, ok := a.bindAdvertForm(c)
	if !ok {
		return
	}

	advert, err := a.adverts.Create(input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, advertSummary(advert))
}

// UpdateAdvert re-renders and saves an advert, author only.
func (a *API) UpdateAdvert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	input, ok := a.bindAdvertForm(c)
	if !ok {
		return
	}

	advert, err := a.adverts.Update(id, input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, advertSummary(advert))
}

// DeleteAdvert removes an advert, author only.
func (a *API) DeleteAdvert(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := a.adverts.Delete(id, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// PreviewAdvert 渲染但不保存，供编辑器预览。
func (a *API) PreviewAdvert(c *gin.Context) {
	input, ok := a.bindAdvertForm(c)
	if !ok {
		return
	}

	bodyHTML, err := a.adverts.Preview(input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"body_html": bodyHTML})
}

// ListCategories returns all advert categories.
func (a *API) ListCategories(c *gin.Context) {
	categories, err := a.adverts.Categories()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

type categoryRequest struct {
	Slug string `json:"slug" binding:"required"`
	Name string `json:"name" binding:"required"`
}

// CreateCategory 新建分类，仅限 staff。
func (a *API) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category payload"})
		return
	}

	category, err := a.adverts.CreateCategory(req.Slug, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, category)
}

func (a *API) bindAdvertForm(c *gin.Context) (service.AdvertInput, bool) {
	input := service.AdvertInput{
		AuthorID:     currentUserID(c),
		CategorySlug: strings.TrimSpace(c.PostForm("category")),
		Title:        c.PostForm("title"),
		BodyMD:       c.PostForm("body_md"),
	}

	image, err := formUpload(c, "upload_image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read image upload"})
		return input, false
	}
	video, err := formUpload(c, "upload_video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read video upload"})
		return input, false
	}

	input.Image = image
	input.Video = video
	return input, true
}

func advertSummary(advert *db.Advert) gin.H {
	return gin.H{
		"id":         advert.ID,
		"title":      advert.Title,
		"category":   advert.CategorySlug,
		"status":     advert.Status,
		"author":     advert.Author.Email,
		"created_at": advert.CreatedAt,
		"updated_at": advert.UpdatedAt,
	}
}
