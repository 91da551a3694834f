package main

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mkrajcovic/blog-backend/internal/config"
	"github.com/mkrajcovic/blog-backend/internal/handlers"
	"github.com/mkrajcovic/blog-backend/internal/images"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	if err := client.Ping(ctx, nil); err != nil {
		logrus.WithError(err).Fatal("Failed to ping MongoDB")
	}
	logrus.Info("Connected to MongoDB")

	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logrus.WithError(err).Error("Failed to disconnect from MongoDB")
		}
	}()

	pipeline, err := images.NewPipeline(cfg.UploadsDir)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to prepare uploads directory")
	}

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.SetupRoutes(router, client.Database(cfg.DBName), pipeline, cfg)

	logrus.Infof("Server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		logrus.WithError(err).Fatal("Server failed")
	}
}
