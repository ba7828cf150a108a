// Package api assembles the gin engine: middleware, the upload page and the v1 API.
package api

import (
	"fmt"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/config"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/api/handlers"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/api/middleware"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/ingest"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/exclusion"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/query"
	"github.com/urbanbigdatacentre/cctv-gcc-api/web"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const sessionName = "cctv_session"

// Dependencies are the services the HTTP layer serves.
type Dependencies struct {
	Config     *config.Config
	Repo       repository.Repository
	Pool       *ingest.Pool
	Exclusions *exclusion.Registry
	Composer   *query.Composer
}

// NewRouter builds the engine with every route registered.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	cfg := deps.Config

	translator, err := middleware.NewTranslator(middleware.I18nConfig{
		DefaultLanguage: cfg.I18n.DefaultLanguage,
		Locales:         web.Locales(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load translations: %w", err)
	}

	router := gin.New()
	router.Use(gin.LoggerWithWriter(log.StandardLogger().Writer()))
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))
	router.Use(sessions.Sessions(sessionName, cookie.NewStore([]byte(cfg.Server.SessionSecret))))
	router.Use(middleware.I18n(translator))

	upload, err := handlers.NewUploadHandler(cfg, deps.Pool, web.Templates)
	if err != nil {
		return nil, err
	}
	upload.RegisterRoutes(router)

	v1 := router.Group("/api/v1")
	handlers.NewAPIHandler(cfg, deps.Repo, deps.Composer).RegisterRoutes(v1)
	handlers.NewExclusionHandler(deps.Exclusions, cfg.Server.UploadPIN).RegisterRoutes(v1)
	handlers.NewSystemHandler(deps.Repo, deps.Pool).RegisterRoutes(v1)

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS", "POST", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", handlers.PINHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
