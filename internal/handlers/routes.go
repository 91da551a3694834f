package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mkrajcovic/blog-backend/internal/adapters/repository"
	"github.com/mkrajcovic/blog-backend/internal/config"
	"github.com/mkrajcovic/blog-backend/internal/images"
	"github.com/mkrajcovic/blog-backend/internal/middleware"
	"github.com/mkrajcovic/blog-backend/internal/models"
)

func SetupRoutes(router *gin.Engine, db *mongo.Database, pipeline *images.Pipeline, cfg config.Config) {
	logrus.Info("Setting up routes...")

	router.Use(middleware.LocaleMiddleware(cfg.DefaultLocale))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "blog-backend",
		})
	})

	// Processed images are served straight off disk.
	router.Static("/uploads", pipeline.Root())

	authHandler := NewAuthHandler(repository.NewUserRepository(db))
	categoryHandler := NewCategoryHandler(repository.NewCategoryRepository(db), cfg.DefaultLocale)
	postHandler := NewPostHandler(repository.NewPostRepository(db), pipeline)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	// Public reading surface.
	router.GET("/posts", postHandler.GetPosts)
	router.GET("/posts/:slug", postHandler.GetPostBySlug)

	// Authoring surface.
	posts := router.Group("/posts")
	posts.Use(middleware.AuthMiddleware())
	{
		posts.POST("", postHandler.CreatePost)
		posts.POST("/:id", postHandler.UpdatePost)
	}

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware())
	{
		categories := api.Group("/categories")
		categories.Use(middleware.RoleMiddleware(models.RoleAdmin))
		{
			categories.POST("", categoryHandler.CategoriesPost)
			categories.GET("", categoryHandler.GetCategories)
		}

		api.DELETE("/posts/:id", postHandler.DeletePost)
		api.POST("/posts/:id/like", postHandler.ToggleLike)
	}
}
