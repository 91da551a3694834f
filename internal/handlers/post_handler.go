package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mkrajcovic/blog-backend/internal/adapters/repository"
	"github.com/mkrajcovic/blog-backend/internal/images"
	"github.com/mkrajcovic/blog-backend/internal/localization"
	"github.com/mkrajcovic/blog-backend/internal/middleware"
	"github.com/mkrajcovic/blog-backend/internal/models"
	"github.com/mkrajcovic/blog-backend/utils"
)

// maxUploadSize bounds one multipart post submission (body plus files).
const maxUploadSize = 32 << 20 // 32MB

// imagesField is the shared multipart field name the editor submits files
// under.
const imagesField = "images"

type PostHandler struct {
	Repo     repository.PostRepository
	Pipeline *images.Pipeline
}

func NewPostHandler(repo repository.PostRepository, pipeline *images.Pipeline) *PostHandler {
	return &PostHandler{Repo: repo, Pipeline: pipeline}
}

// readUploads pulls the submitted files out of the multipart form.
func readUploads(c *gin.Context) ([]images.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}

	uploads := []images.Upload{}
	for _, header := range form.File[imagesField] {
		file, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, images.Upload{
			// Base name only; the body references images by upload filename
			// and client paths must never leak into matching.
			OriginalName: filepath.Base(header.Filename),
			Data:         data,
		})
	}
	return uploads, nil
}

func parseCategoryIDs(raw []string) ([]primitive.ObjectID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, s := range raw {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CreatePost handles the multipart create form: title, body, categories[]
// and zero or more files under the shared images field.
func (h *PostHandler) CreatePost(c *gin.Context) {
	dict := localization.FromContext(c.Request.Context())

	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse(dict.Unauthorized))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	title := c.PostForm("title")
	body := c.PostForm("body")
	if title == "" || body == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
		return
	}
	categoryIDs, err := parseCategoryIDs(c.PostFormArray("categories"))
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
		return
	}

	uploads, err := readUploads(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
		return
	}

	finalBody, imgs, err := h.Pipeline.ProcessBody(body, uploads)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
		return
	}

	now := time.Now()
	post := models.Post{
		Author:     userID,
		Title:      title,
		Body:       finalBody,
		Slug:       utils.PostSlug(title, now),
		Images:     imgs,
		Categories: categoryIDs,
		Locale:     localization.LocaleFromContext(c.Request.Context()),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := utils.ValidateStruct(post); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	id, err := h.Repo.Insert(ctx, post)
	if err != nil {
		logrus.WithError(err).Error("Failed to insert post")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}
	post.ID = id

	c.JSON(http.StatusCreated, utils.SuccessResponse(dict.Saved, gin.H{"post": post}))
}

// UpdatePost handles the multipart edit form. New uploads are processed the
// same way as on create; previously stored images the edited body no longer
// references are garbage collected.
func (h *PostHandler) UpdatePost(c *gin.Context) {
	dict := localization.FromContext(c.Request.Context())

	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse(dict.Unauthorized))
		return
	}

	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse(dict.NotFound))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	post, err := h.Repo.FindByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse(dict.NotFound))
			return
		}
		logrus.WithError(err).Error("Failed to fetch post")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}

	if post.Author != userID && middleware.Role(c) != models.RoleAdmin {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse(dict.Unauthorized))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	title := c.PostForm("title")
	body := c.PostForm("body")
	if title == "" || body == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
		return
	}
	categoryIDs, err := parseCategoryIDs(c.PostFormArray("categories"))
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
		return
	}

	uploads, err := readUploads(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
		return
	}

	finalBody, newImages, err := h.Pipeline.ProcessBody(body, uploads)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
		return
	}

	// Kept old + new become the post's image set; orphans are removed from
	// disk as a side effect.
	kept := h.Pipeline.Reconcile(finalBody, post.Images)

	post.Title = title
	post.Body = finalBody
	post.Images = append(kept, newImages...)
	post.Categories = categoryIDs
	post.UpdatedAt = time.Now()

	if err := utils.ValidateStruct(post); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
		return
	}

	if err := h.Repo.Update(ctx, post); err != nil {
		logrus.WithError(err).Error("Failed to update post")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse(dict.Saved, gin.H{"post": post}))
}

// GetPosts lists posts for the request locale, newest first.
func (h *PostHandler) GetPosts(c *gin.Context) {
	dict := localization.FromContext(c.Request.Context())

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	posts, err := h.Repo.FindAll(ctx, localization.LocaleFromContext(c.Request.Context()))
	if err != nil {
		logrus.WithError(err).Error("Failed to fetch posts")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"posts": posts}})
}

// GetPostBySlug returns one post with its body rendered to HTML and counts
// the view.
func (h *PostHandler) GetPostBySlug(c *gin.Context) {
	dict := localization.FromContext(c.Request.Context())

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	post, err := h.Repo.FindBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse(dict.NotFound))
			return
		}
		logrus.WithError(err).Error("Failed to fetch post")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}

	if err := h.Repo.IncrementViews(ctx, post.ID); err != nil {
		// A lost view count never blocks the page.
		logrus.WithError(err).Warn("Failed to increment views")
	} else {
		post.Views++
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"post": post,
		"html": utils.RenderMarkdown(post.Body),
	}})
}

// DeletePost removes a post; only its author or an admin may do so. The
// response carries the caller's remaining post count.
func (h *PostHandler) DeletePost(c *gin.Context) {
	dict := localization.FromContext(c.Request.Context())

	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse(dict.Unauthorized))
		return
	}

	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse(dict.NotFound))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	post, err := h.Repo.FindByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse(dict.NotFound))
			return
		}
		logrus.WithError(err).Error("Failed to fetch post")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}

	if post.Author != userID && middleware.Role(c) != models.RoleAdmin {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse(dict.Unauthorized))
		return
	}

	if err := h.Repo.Delete(ctx, post.ID); err != nil {
		logrus.WithError(err).Error("Failed to delete post")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}

	// The post record is gone; its image assets are now orphans.
	for _, img := range post.Images {
		h.Pipeline.Reconcile("", []models.PostImage{img})
	}

	total, err := h.Repo.CountByAuthor(ctx, post.Author)
	if err != nil {
		logrus.WithError(err).Warn("Failed to count remaining posts")
	}

	c.JSON(http.StatusOK, utils.SuccessResponse(dict.PostDeleted, gin.H{"total": total}))
}

// ToggleLike flips the caller's like on a post.
func (h *PostHandler) ToggleLike(c *gin.Context) {
	dict := localization.FromContext(c.Request.Context())

	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse(dict.Unauthorized))
		return
	}

	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse(dict.NotFound))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	liked, err := h.Repo.ToggleLike(ctx, postID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse(dict.NotFound))
			return
		}
		logrus.WithError(err).Error("Failed to toggle like")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"liked": liked}})
}
