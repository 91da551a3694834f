package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/mkrajcovic/blog-backend/internal/adapters/repository"
	"github.com/mkrajcovic/blog-backend/internal/localization"
	"github.com/mkrajcovic/blog-backend/internal/models"
	"github.com/mkrajcovic/blog-backend/utils"
)

type AuthHandler struct {
	Repo repository.UserRepository
}

func NewAuthHandler(repo repository.UserRepository) *AuthHandler {
	return &AuthHandler{Repo: repo}
}

func (h *AuthHandler) Register(c *gin.Context) {
	dict := localization.FromContext(c.Request.Context())

	var input models.RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if _, err := h.Repo.FindByEmail(ctx, input.Email); err == nil {
		c.JSON(http.StatusConflict, utils.ErrorResponse(dict.UserExists))
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		logrus.WithError(err).Error("Failed to look up user")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		logrus.WithError(err).Error("Failed to hash password")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}

	now := time.Now()
	user := models.User{
		Email:     input.Email,
		Name:      input.Name,
		Password:  string(hash),
		Role:      models.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}

	id, err := h.Repo.Insert(ctx, user)
	if err != nil {
		logrus.WithError(err).Error("Failed to create user")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}
	user.ID = id

	c.JSON(http.StatusCreated, utils.SuccessResponse(dict.Saved, gin.H{"user": user}))
}

func (h *AuthHandler) Login(c *gin.Context) {
	dict := localization.FromContext(c.Request.Context())

	var input models.LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(dict.InvalidData))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	user, err := h.Repo.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, utils.ErrorResponse(dict.InvalidCredentials))
			return
		}
		logrus.WithError(err).Error("Failed to look up user")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse(dict.InvalidCredentials))
		return
	}

	token, err := utils.GenerateToken(user.ID.Hex(), string(user.Role))
	if err != nil {
		logrus.WithError(err).Error("Failed to issue token")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(dict.SomethingWentWrong))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"token": token, "user": user}})
}
