package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mkrajcovic/blog-backend/internal/localization"
	"github.com/mkrajcovic/blog-backend/internal/models"
)

// LocaleMiddleware resolves the request locale once at the boundary and
// stores it in the request context, where every component that needs a
// dictionary reads it from. Resolution order: lang query parameter, lang
// cookie, Accept-Language header, configured default.
func LocaleMiddleware(defaultLocale models.Locale) gin.HandlerFunc {
	return func(c *gin.Context) {
		locale := defaultLocale

		if q := c.Query("lang"); q != "" {
			locale = models.Locale(q)
		} else if cookie, err := c.Cookie("lang"); err == nil && cookie != "" {
			locale = models.Locale(cookie)
		} else if header := c.GetHeader("Accept-Language"); header != "" {
			locale = preferredLocale(header)
		}

		if !models.IsSupportedLocale(locale) {
			locale = defaultLocale
		}

		ctx := localization.WithLocale(c.Request.Context(), locale)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// preferredLocale picks the first supported language tag from an
// Accept-Language header.
func preferredLocale(header string) models.Locale {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if i := strings.Index(tag, "-"); i > 0 {
			tag = tag[:i]
		}
		if l := models.Locale(strings.ToLower(tag)); models.IsSupportedLocale(l) {
			return l
		}
	}
	return ""
}
