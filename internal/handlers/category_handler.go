package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mkrajcovic/blog-backend/internal/adapters/repository"
	"github.com/mkrajcovic/blog-backend/internal/category"
	"github.com/mkrajcovic/blog-backend/internal/localization"
	"github.com/mkrajcovic/blog-backend/internal/models"
	"github.com/mkrajcovic/blog-backend/utils"
)

type CategoryHandler struct {
	Engine *category.Engine
	Repo   repository.CategoryRepository
}

func NewCategoryHandler(repo repository.CategoryRepository, defaultLocale models.Locale) *CategoryHandler {
	return &CategoryHandler{
		Engine: category.NewEngine(repo, defaultLocale),
		Repo:   repo,
	}
}

type categoryRequest struct {
	Data *struct {
		Action string      `json:"action"`
		ID     string      `json:"id"`
		Value  interface{} `json:"value"`
	} `json:"data"`
}

// CategoriesPost handles one tree-editor action: add-first, add, add-nested,
// delete, up, down, rename or set-locale.
func (h *CategoryHandler) CategoriesPost(c *gin.Context) {
	dict := localization.FromContext(c.Request.Context())

	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Data == nil || req.Data.Action == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
		return
	}

	action := category.Action{
		Op:     category.Op(req.Data.Action),
		ID:     req.Data.ID,
		Locale: localization.LocaleFromContext(c.Request.Context()),
	}
	if req.Data.Value != nil {
		s, ok := req.Data.Value.(string)
		if !ok {
			c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
			return
		}
		action.Value = s
		action.ValueSet = true
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Engine.Apply(ctx, action)
	if err != nil {
		h.writeActionError(c, dict, err)
		return
	}

	response := gin.H{"message": dict.Saved}
	if res.NewID != "" {
		response["newId"] = res.NewID
	}
	c.JSON(http.StatusOK, response)
}

func (h *CategoryHandler) writeActionError(c *gin.Context, dict localization.Dictionary, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, utils.ErrorResponse(dict.NotFound))
	case errors.Is(err, category.ErrAtTop):
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.AlreadyAtTop))
	case errors.Is(err, category.ErrAtBottom):
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.AlreadyAtBottom))
	case errors.Is(err, category.ErrOrderOutOfSync):
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.OrderOutOfSync))
	case errors.Is(err, category.ErrInvalidAction),
		errors.Is(err, category.ErrMissingID),
		errors.Is(err, category.ErrInvalidValue):
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
	default:
		logrus.WithError(err).Error("Category action failed")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
	}
}

// GetCategories returns the category forest grouped by locale, every sibling
// list sorted by order.
func (h *CategoryHandler) GetCategories(c *gin.Context) {
	dict := localization.FromContext(c.Request.Context())

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	flat, err := h.Repo.All(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to fetch categories")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "OK",
		"data":    gin.H{"categories": category.BuildLocaleTrees(flat)},
	})
}
