package service

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/content"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/db"
)

var (
	ErrAdvertNotFound   = errors.New("advert not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrNotAdvertOwner   = errors.New("advert belongs to another user")
	ErrTitleRequired    = errors.New("advert title is required")
	ErrBodyRequired     = errors.New("advert body is required")
)

// AdvertService wraps advert related database operations and drives the
// media-embedding + rendering pipeline on every save.
type AdvertService struct {
	db          *gorm.DB
	renderer    *content.Renderer
	mediaPolicy content.MediaPolicy
}

// AdvertInput represents fields accepted when creating or updating an advert.
type AdvertInput struct {
	AuthorID     uint
	CategorySlug string
	Title        string
	BodyMD       string
	Image        *content.Upload
	Video        *content.Upload
}

// AdvertFilter describes filters for listing adverts.
type AdvertFilter struct {
	CategorySlug string
	Search       string
	AuthorID     uint
	Page         int
	PerPage      int
}

// AdvertListResult aggregates paginated list data.
type AdvertListResult struct {
	Adverts    []db.Advert
	Total      int64
	TotalPages int
	Page       int
	PerPage    int
}

// NewAdvertService creates an AdvertService instance.
func NewAdvertService(gdb *gorm.DB, renderer *content.Renderer, policy content.MediaPolicy) *AdvertService {
	return &AdvertService{db: gdb, renderer: renderer, mediaPolicy: policy}
}

// Create 保存新广告：嵌入媒体、渲染净化 HTML、落库。渲染失败会中止
// 保存，绝不把未净化的内容写进数据库。
func (s *AdvertService) Create(input AdvertInput) (*db.Advert, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	bodyMD, bodyHTML, err := s.renderBody(input)
	if err != nil {
		return nil, err
	}

	advert := db.Advert{
		AuthorID:     input.AuthorID,
		CategorySlug: input.CategorySlug,
		Title:        strings.TrimSpace(input.Title),
		BodyMD:       bodyMD,
		BodyHTML:     bodyHTML,
		Status:       db.AdvertStatusPublished,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&advert).Error; err != nil {
			return err
		}
		return s.recordAssets(tx, input)
	}); err != nil {
		return nil, err
	}

	return s.Get(advert.ID)
}

// Update 重新渲染并保存广告，仅限作者本人。
func (s *AdvertService) Update(id uint, input AdvertInput) (*db.Advert, error) {
	var existing db.Advert
	if err := s.db.First(&existing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAdvertNotFound
		}
		return nil, err
	}

	if existing.AuthorID != input.AuthorID {
		return nil, ErrNotAdvertOwner
	}

	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	bodyMD, bodyHTML, err := s.renderBody(input)
	if err != nil {
		return nil, err
	}

	existing.CategorySlug = input.CategorySlug
	existing.Title = strings.TrimSpace(input.Title)
	existing.BodyMD = bodyMD
	existing.BodyHTML = bodyHTML

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		return s.recordAssets(tx, input)
	}); err != nil {
		return nil, err
	}

	return s.Get(existing.ID)
}

// Delete removes an advert, restricted to its author.
func (s *AdvertService) Delete(id, userID uint) error {
	var advert db.Advert
	if err := s.db.First(&advert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAdvertNotFound
		}
		return err
	}

	if advert.AuthorID != userID {
		return ErrNotAdvertOwner
	}

	return s.db.Delete(&advert).Error
}

// Get fetches an advert by id with author and category preloaded.
func (s *AdvertService) Get(id uint) (*db.Advert, error) {
	var advert db.Advert
	if err := s.db.Preload("Author").Preload("Category").First(&advert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAdvertNotFound
		}
		return nil, err
	}
	return &advert, nil
}

// GetPublished fetches an advert only if it is visible to the public.
func (s *AdvertService) GetPublished(id uint) (*db.Advert, error) {
	advert, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if advert.Status != db.AdvertStatusPublished {
		return nil, ErrAdvertNotFound
	}
	return advert, nil
}

// Preview 走完整的嵌入+渲染管线但不落库。
func (s *AdvertService) Preview(input AdvertInput) (string, error) {
	_, bodyHTML, err := s.renderBody(input)
	return bodyHTML, err
}

// List provides paginated published adverts filtered by category and search.
func (s *AdvertService) List(filter AdvertFilter) (*AdvertListResult, error) {
	result := &AdvertListResult{Page: filter.Page, PerPage: filter.PerPage}
	if result.Page <= 0 {
		result.Page = 1
	}
	if result.PerPage <= 0 {
		result.PerPage = 15
	}

	query := s.db.Model(&db.Advert{}).Where("status = ?", db.AdvertStatusPublished)
	query = applyAdvertFilters(query, filter)

	if err := query.Count(&result.Total).Error; err != nil {
		return nil, err
	}

	offset := (result.Page - 1) * result.PerPage

	var adverts []db.Advert
	dataQuery := s.db.Model(&db.Advert{}).
		Preload("Author").
		Preload("Category").
		Where("status = ?", db.AdvertStatusPublished)
	dataQuery = applyAdvertFilters(dataQuery, filter)

	if err := dataQuery.
		Order("created_at desc, id desc").
		Limit(result.PerPage).
		Offset(offset).
		Find(&adverts).Error; err != nil {
		return nil, err
	}

	if result.Total == 0 {
		result.TotalPages = 1
	} else {
		result.TotalPages = int((result.Total + int64(result.PerPage) - 1) / int64(result.PerPage))
	}

	result.Adverts = adverts
	return result, nil
}

// Categories returns all categories ordered by name.
func (s *AdvertService) Categories() ([]db.Category, error) {
	var categories []db.Category
	if err := s.db.Order("name asc").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// CreateCategory persists a category keyed by slug.
func (s *AdvertService) CreateCategory(slug, name string) (*db.Category, error) {
	category := db.Category{
		Slug: strings.TrimSpace(strings.ToLower(slug)),
		Name: strings.TrimSpace(name),
	}
	if err := s.db.Create(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *AdvertService) validateInput(input AdvertInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(input.BodyMD) == "" {
		return ErrBodyRequired
	}

	var category db.Category
	if err := s.db.First(&category, "slug = ?", input.CategorySlug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCategoryNotFound
		}
		return err
	}
	return nil
}

// renderBody 先做媒体嵌入再做净化渲染，返回最终的 Markdown 源文与
// HTML。嵌入必须发生在净化之前，注入的视频 HTML 才能被同一套允许
// 列表约束。
func (s *AdvertService) renderBody(input AdvertInput) (string, string, error) {
	bodyMD, err := content.EmbedMedia(input.BodyMD, input.Image, input.Video, s.mediaPolicy)
	if err != nil {
		return "", "", err
	}

	bodyHTML, err := s.renderer.Render(bodyMD)
	if err != nil {
		return "", "", err
	}

	return bodyMD, bodyHTML, nil
}

func (s *AdvertService) recordAssets(tx *gorm.DB, input AdvertInput) error {
	if input.Image != nil {
		asset := content.DescribeAsset(db.MediaKindImage, input.Image)
		asset.OwnerID = input.AuthorID
		if err := tx.Create(&asset).Error; err != nil {
			return err
		}
	}
	if input.Video != nil {
		asset := content.DescribeAsset(db.MediaKindVideo, input.Video)
		asset.OwnerID = input.AuthorID
		if err := tx.Create(&asset).Error; err != nil {
			return err
		}
	}
	return nil
}

func applyAdvertFilters(query *gorm.DB, filter AdvertFilter) *gorm.DB {
	if filter.CategorySlug != "" {
		query = query.Where("category_slug = ?", filter.CategorySlug)
	}

	if filter.AuthorID != 0 {
		query = query.Where("author_id = ?", filter.AuthorID)
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("(title LIKE ? OR body_md LIKE ?)", pattern, pattern)
	}

	return query
}
