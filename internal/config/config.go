package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mkrajcovic/blog-backend/internal/models"
)

type Config struct {
	Port          string
	MongoURI      string
	DBName        string
	UploadsDir    string
	DefaultLocale models.Locale
	AllowOrigins  []string
}

// Load reads configuration from the environment. A .env file is picked up
// when present so local development does not need exported variables.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		DBName:        getEnv("DB_NAME", "blog"),
		UploadsDir:    getEnv("UPLOADS_DIR", "uploads"),
		DefaultLocale: models.Locale(getEnv("DEFAULT_LOCALE", string(models.LocaleEN))),
		AllowOrigins:  []string{getEnv("CLIENT_ORIGIN", "http://localhost:3000")},
	}

	if !models.IsSupportedLocale(cfg.DefaultLocale) {
		logrus.Warnf("Unsupported DEFAULT_LOCALE %q, falling back to en", cfg.DefaultLocale)
		cfg.DefaultLocale = models.LocaleEN
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
