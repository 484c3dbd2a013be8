package service

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/hlpne/AdBoard-MMO-RPG/internal/content"
	"github.com/hlpne/AdBoard-MMO-RPG/internal/db"
)

func newTestAdvertService(t *testing.T) (*AdvertService, func()) {
	t.Helper()

	gdb, cleanup := setupServiceTestDB(t, "advert-service")
	svc := NewAdvertService(gdb, content.NewRenderer("/media/"), content.MediaPolicy{
		MaxImageSizeMB:    10,
		MaxVideoSizeMB:    100,
		AllowedImageMIMEs: []string{"image/png", "image/jpeg"},
		AllowedVideoMIMEs: []string{"video/mp4"},
	})
	return svc, cleanup
}

func testPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestCreateAdvertRendersSanitizedHTML(t *testing.T) {
	svc, cleanup := newTestAdvertService(t)
	defer cleanup()

	author := seedUser(t, svc.db, "author@example.com", true)
	seedCategory(t, svc.db, "tanks", "Tanks")

	advert, err := svc.Create(AdvertInput{
		AuthorID:     author.ID,
		CategorySlug: "tanks",
		Title:        "  Selling rare mount  ",
		BodyMD:       "# Rare mount\n\nPay in gold. <script>alert('x')</script>",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if advert.Title != "Selling rare mount" {
		t.Fatalf("title not trimmed: %q", advert.Title)
	}
	if advert.Status != db.AdvertStatusPublished {
		t.Fatalf("expected published status, got %s", advert.Status)
	}
	if !strings.Contains(advert.BodyHTML, "<h1>Rare mount</h1>") {
		t.Fatalf("markdown heading not rendered: %s", advert.BodyHTML)
	}
	if strings.Contains(advert.BodyHTML, "<script") || strings.Contains(advert.BodyHTML, "alert(") {
		t.Fatalf("script content survived sanitization: %s", advert.BodyHTML)
	}
	if advert.Author.Email != "author@example.com" {
		t.Fatalf("author not preloaded")
	}
}

func TestCreateAdvertEmbedsImageUpload(t *testing.T) {
	svc, cleanup := newTestAdvertService(t)
	defer cleanup()

	author := seedUser(t, svc.db, "uploader@example.com", true)
	seedCategory(t, svc.db, "mounts", "Mounts")

	advert, err := svc.Create(AdvertInput{
		AuthorID:     author.ID,
		CategorySlug: "mounts",
		Title:        "With screenshot",
		BodyMD:       "Look at this.",
		Image: &content.Upload{
			Filename:    "shot.png",
			ContentType: "image/png",
			Data:        testPNG(t),
		},
	})
	if err != nil {
		t.Fatalf("create with image: %v", err)
	}

	if !strings.Contains(advert.BodyMD, "![attachment](data:image/png;base64,") {
		t.Fatalf("markdown source missing embedded image: %s", advert.BodyMD)
	}
	if !strings.Contains(advert.BodyHTML, `src="data:image/png;base64,`) {
		t.Fatalf("rendered html missing data uri image: %s", advert.BodyHTML)
	}

	var asset db.MediaAsset
	if err := svc.db.Where("owner_id = ?", author.ID).First(&asset).Error; err != nil {
		t.Fatalf("media asset row missing: %v", err)
	}
	if asset.Kind != db.MediaKindImage || asset.MIME != "image/png" {
		t.Fatalf("unexpected asset record: kind=%s mime=%s", asset.Kind, asset.MIME)
	}
	if asset.Width != 2 || asset.Height != 2 {
		t.Fatalf("unexpected asset dimensions: %dx%d", asset.Width, asset.Height)
	}
}

func TestCreateAdvertRejectsDisallowedUpload(t *testing.T) {
	svc, cleanup := newTestAdvertService(t)
	defer cleanup()

	author := seedUser(t, svc.db, "sneaky@example.com", true)
	seedCategory(t, svc.db, "misc", "Misc")

	_, err := svc.Create(AdvertInput{
		AuthorID:     author.ID,
		CategorySlug: "misc",
		Title:        "Disguised payload",
		BodyMD:       "Body",
		Video: &content.Upload{
			Filename:    "clip.mp4",
			ContentType: "video/mp4",
			Data:        testPNG(t), // payload is really an image
		},
	})
	if !errors.Is(err, content.ErrMediaTypeInvalid) {
		t.Fatalf("expected ErrMediaTypeInvalid, got %v", err)
	}

	var count int64
	svc.db.Model(&db.Advert{}).Count(&count)
	if count != 0 {
		t.Fatalf("rejected advert was persisted")
	}
}

func TestCreateAdvertValidation(t *testing.T) {
	svc, cleanup := newTestAdvertService(t)
	defer cleanup()

	author := seedUser(t, svc.db, "strict@example.com", true)
	seedCategory(t, svc.db, "pets", "Pets")

	cases := []struct {
		name  string
		input AdvertInput
		want  error
	}{
		{"blank title", AdvertInput{AuthorID: author.ID, CategorySlug: "pets", Title: "   ", BodyMD: "body"}, ErrTitleRequired},
		{"blank body", AdvertInput{AuthorID: author.ID, CategorySlug: "pets", Title: "t", BodyMD: " "}, ErrBodyRequired},
		{"unknown category", AdvertInput{AuthorID: author.ID, CategorySlug: "nope", Title: "t", BodyMD: "body"}, ErrCategoryNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUpdateAdvertOwnerOnly(t *testing.T) {
	svc, cleanup := newTestAdvertService(t)
	defer cleanup()

	owner := seedUser(t, svc.db, "owner@example.com", true)
	stranger := seedUser(t, svc.db, "stranger@example.com", true)
	seedCategory(t, svc.db, "gear", "Gear")

	advert, err := svc.Create(AdvertInput{
		AuthorID: owner.ID, CategorySlug: "gear", Title: "Sword", BodyMD: "Sharp.",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.Update(advert.ID, AdvertInput{
		AuthorID: stranger.ID, CategorySlug: "gear", Title: "Stolen", BodyMD: "Mine now.",
	})
	if !errors.Is(err, ErrNotAdvertOwner) {
		t.Fatalf("expected ErrNotAdvertOwner, got %v", err)
	}

	updated, err := svc.Update(advert.ID, AdvertInput{
		AuthorID: owner.ID, CategorySlug: "gear", Title: "Sword v2", BodyMD: "Sharper.",
	})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if updated.Title != "Sword v2" || !strings.Contains(updated.BodyHTML, "Sharper.") {
		t.Fatalf("update not applied: %+v", updated)
	}
}

func TestDeleteAdvertOwnerOnly(t *testing.T) {
	svc, cleanup := newTestAdvertService(t)
	defer cleanup()

	owner := seedUser(t, svc.db, "deleter@example.com", true)
	stranger := seedUser(t, svc.db, "other@example.com", true)
	seedCategory(t, svc.db, "misc", "Misc")

	advert, _ := svc.Create(AdvertInput{
		AuthorID: owner.ID, CategorySlug: "misc", Title: "Temp", BodyMD: "Gone soon.",
	})

	if err := svc.Delete(advert.ID, stranger.ID); !errors.Is(err, ErrNotAdvertOwner) {
		t.Fatalf("expected ErrNotAdvertOwner, got %v", err)
	}

	if err := svc.Delete(advert.ID, owner.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}

	if _, err := svc.Get(advert.ID); !errors.Is(err, ErrAdvertNotFound) {
		t.Fatalf("expected ErrAdvertNotFound after delete, got %v", err)
	}
}

func TestListAdvertsFiltersAndPaginates(t *testing.T) {
	svc, cleanup := newTestAdvertService(t)
	defer cleanup()

	author := seedUser(t, svc.db, "lister@example.com", true)
	seedCategory(t, svc.db, "tanks", "Tanks")
	seedCategory(t, svc.db, "healers", "Healers")

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(AdvertInput{
			AuthorID: author.ID, CategorySlug: "tanks",
			Title: "Tank slot", BodyMD: "Raid needs tank.",
		}); err != nil {
			t.Fatalf("seed advert: %v", err)
		}
	}
	if _, err := svc.Create(AdvertInput{
		AuthorID: author.ID, CategorySlug: "healers",
		Title: "Healer slot", BodyMD: "Raid needs healer.",
	}); err != nil {
		t.Fatalf("seed advert: %v", err)
	}

	// A draft must never surface in the public listing.
	svc.db.Create(&db.Advert{
		AuthorID: author.ID, CategorySlug: "tanks",
		Title: "Hidden", BodyMD: "x", BodyHTML: "<p>x</p>",
		Status: db.AdvertStatusDraft,
	})

	all, err := svc.List(AdvertFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if all.Total != 4 {
		t.Fatalf("expected 4 published adverts, got %d", all.Total)
	}

	tanks, err := svc.List(AdvertFilter{CategorySlug: "tanks"})
	if err != nil {
		t.Fatalf("list tanks: %v", err)
	}
	if tanks.Total != 3 {
		t.Fatalf("expected 3 tank adverts, got %d", tanks.Total)
	}

	search, err := svc.List(AdvertFilter{Search: "healer"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if search.Total != 1 {
		t.Fatalf("expected 1 search hit, got %d", search.Total)
	}

	paged, err := svc.List(AdvertFilter{Page: 2, PerPage: 3})
	if err != nil {
		t.Fatalf("paged list: %v", err)
	}
	if len(paged.Adverts) != 1 || paged.TotalPages != 2 {
		t.Fatalf("pagination wrong: len=%d pages=%d", len(paged.Adverts), paged.TotalPages)
	}
}

func TestPreviewDoesNotPersist(t *testing.T) {
	svc, cleanup := newTestAdvertService(t)
	defer cleanup()

	html, err := svc.Preview(AdvertInput{Title: "n/a", BodyMD: "**bold** pitch"})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !strings.Contains(html, "<strong>bold</strong>") {
		t.Fatalf("preview not rendered: %s", html)
	}

	var count int64
	svc.db.Model(&db.Advert{}).Count(&count)
	if count != 0 {
		t.Fatalf("preview persisted an advert")
	}
}

func TestGetPublishedHidesDrafts(t *testing.T) {
	svc, cleanup := newTestAdvertService(t)
	defer cleanup()

	author := seedUser(t, svc.db, "drafter@example.com", true)
	seedCategory(t, svc.db, "misc", "Misc")

	draft := db.Advert{
		AuthorID: author.ID, CategorySlug: "misc",
		Title: "Draft", BodyMD: "x", BodyHTML: "<p>x</p>",
		Status: db.AdvertStatusDraft,
	}
	if err := svc.db.Create(&draft).Error; err != nil {
		t.Fatalf("seed draft: %v", err)
	}

	if _, err := svc.GetPublished(draft.ID); !errors.Is(err, ErrAdvertNotFound) {
		t.Fatalf("expected draft to be hidden, got %v", err)
	}
	if _, err := svc.Get(draft.ID); err != nil {
		t.Fatalf("direct get should still work: %v", err)
	}
}

func TestCreateCategoryNormalizesSlug(t *testing.T) {
	svc, cleanup := newTestAdvertService(t)
	defer cleanup()

	category, err := svc.CreateCategory("  Guild-Recruitment  ", " Guild recruitment ")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if category.Slug != "guild-recruitment" {
		t.Fatalf("slug not normalized: %q", category.Slug)
	}
	if category.Name != "Guild recruitment" {
		t.Fatalf("name not trimmed: %q", category.Name)
	}

	var stored db.Category
	if err := svc.db.First(&stored, "slug = ?", "guild-recruitment").Error; err != nil {
		t.Fatalf("category not stored: %v", err)
	}
}
