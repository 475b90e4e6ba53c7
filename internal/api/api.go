package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/autorestock/internal/api/handlers"
	"github.com/andresuchdata/autorestock/internal/api/middleware"
	"github.com/andresuchdata/autorestock/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Services holds what the routes are served from
type Services struct {
	RestockService *service.RestockService
}

// NewRouter builds the restock HTTP API. Routes of a nil service are not
// registered.
func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID(), middleware.Logger(), middleware.Recovery())
	router.Use(cors.New(corsConfig(allowedOrigins)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil && services.RestockService != nil {
		restockHandler := handlers.NewRestockHandler(services.RestockService)
		restockGroup := apiGroup.Group("/restock")
		{
			restockGroup.GET("/sectors", restockHandler.GetSectors)
			restockGroup.POST("/sectors/:sector/run", restockHandler.RunSector)
			restockGroup.GET("/sectors/:sector/latest", restockHandler.GetLatest)
			restockGroup.GET("/sectors/:sector/explain/:cod/:var", restockHandler.Explain)
			restockGroup.GET("/runs/:id", restockHandler.GetRun)
		}
	}

	return router
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	origins, allowAll := normalizeAllowedOrigins(allowedOrigins)
	switch {
	case allowAll:
		cfg.AllowOrigins = nil
		cfg.AllowOriginFunc = func(string) bool { return true }
	case len(origins) > 0:
		cfg.AllowOrigins = origins
	}
	return cfg
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			switch trimmed := strings.TrimSpace(part); trimmed {
			case "":
			case "*":
				allowAll = true
			default:
				parsed = append(parsed, trimmed)
			}
		}
	}
	return parsed, allowAll
}
