package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/content"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/service"
)

const sessionUserKey = "user_id"

// AuthRequired 拒绝未登录请求。
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if session.Get(sessionUserKey) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// StaffRequired 进一步要求当前账号具有 staff 权限。
func (a *API) StaffRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)
		if userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		stats, err := a.accounts.Profile(userID)
		if err != nil || !stats.User.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff access required"})
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) uint {
	session := sessions.Default(c)
	value := session.Get(sessionUserKey)
	if value == nil {
		return 0
	}
	if id, ok := value.(uint); ok {
		return id
	}
	return 0
}

// respondError 把服务层的哨兵错误映射为 HTTP 状态码。
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAdvertNotFound),
		errors.Is(err, service.ErrCategoryNotFound),
		errors.Is(err, service.ErrReplyNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrTemplateNotFound),
		errors.Is(err, service.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrNotAdvertOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrSelfReply),
		errors.Is(err, service.ErrReplyTextRequired),
		errors.Is(err, service.ErrReplyAlreadyAccepted),
		errors.Is(err, service.ErrReplyDeleted),
		errors.Is(err, service.ErrTitleRequired),
		errors.Is(err, service.ErrBodyRequired),
		errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrAlreadyVerified),
		errors.Is(err, service.ErrInvalidVerificationCode),
		errors.Is(err, content.ErrMediaTooLarge),
		errors.Is(err, content.ErrMediaTypeInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountInactive):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrJobClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// formUpload 把 multipart 字段读成管线内的 Upload。字段缺失返回 nil。
func formUpload(c *gin.Context, field string) (*content.Upload, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	return readUpload(header)
}

func readUpload(header *multipart.FileHeader) (*content.Upload, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	return &content.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return 0, false
	}
	return uint(id), true
}

func parsePositiveInt(value string, fallback int) int {
	num, err := strconv.Atoi(value)
	if err != nil || num <= 0 {
		return fallback
	}
	return num
}
