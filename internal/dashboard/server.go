package dashboard

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"storeprice/config"
	"storeprice/internal/catalog"
	"storeprice/internal/currency"
	"storeprice/internal/feed"
	"storeprice/internal/i18n"
	"storeprice/internal/metrics"
	"storeprice/internal/prefs"
	"storeprice/internal/session"
	"storeprice/logger"
)

//go:embed templates/*.tmpl assets/*
var embeddedFS embed.FS

// Deps are the catalog components the dashboard serves. Refresher, Prefs and
// Metrics may be nil.
type Deps struct {
	Feed       *feed.Feed
	Store      *catalog.Store
	Sessions   *session.Manager
	Currencies *currency.Table
	Refresher  *currency.Refresher
	Prefs      *prefs.Store
	Metrics    *metrics.Registry
}

// Server hosts the gin catalog UI and its JSON API.
type Server struct {
	cfg               config.DashboardConfig
	log               *logger.Log
	deps              Deps
	metricStore       *metricStore
	logStore          *logStore
	metricSub         metrics.Subscription
	httpServer        *http.Server
	refreshIntervalMs int
	resourceSampler   *resourceSampler
	pushLimiter       *rate.Limiter
}

// NewServer constructs the dashboard server. A nil server is returned when
// the dashboard is disabled.
func NewServer(cfg config.DashboardConfig, log *logger.Log, deps Deps) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if deps.Feed == nil || deps.Store == nil || deps.Sessions == nil || deps.Currencies == nil {
		return nil, errors.New("dashboard requires feed, store, sessions and currencies")
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = defaultHistory
	}
	if cfg.MetricsHistory <= 0 {
		cfg.MetricsHistory = defaultHistory
	}
	if cfg.Push.MaxRows <= 0 {
		cfg.Push.MaxRows = 5000
	}

	metricStore := newMetricStore(cfg.MetricsHistory)
	sub := metrics.Subscribe(metricStore.handle)

	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	server := &Server{
		cfg:               cfg,
		log:               log,
		deps:              deps,
		metricStore:       metricStore,
		logStore:          logStore,
		metricSub:         sub,
		refreshIntervalMs: int(cfg.RefreshInterval / time.Millisecond),
	}
	server.resourceSampler = newResourceSampler(cfg.MetricsHistory, cfg.RefreshInterval, server.counters, log)

	if cfg.Push.Enabled {
		rps := cfg.Push.RequestsPerSecond
		if rps <= 0 {
			rps = 5
		}
		burst := cfg.Push.BurstSize
		if burst <= 0 {
			burst = rps
		}
		server.pushLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return server, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	s.resourceSampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s.log.WithComponent("dashboard").WithFields(logger.Fields{
		"address": s.cfg.Address,
		"push":    s.cfg.Push.Enabled,
	}).Info("dashboard listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) cleanup() {
	metrics.Unsubscribe(s.metricSub)
	if s.logStore != nil {
		s.logStore.close()
	}
	s.resourceSampler.stop()
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) counters() appCounters {
	return appCounters{
		Rows:     s.deps.Feed.Len(),
		Items:    s.deps.Store.Len(),
		Version:  s.deps.Store.Version(),
		Sessions: s.deps.Sessions.Len(),
	}
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.observeRequests())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	tmpl := template.Must(template.New("dashboard").ParseFS(embeddedFS, "templates/index.tmpl"))
	router.SetHTMLTemplate(tmpl)

	if assetsFS, err := fsSub("assets"); err == nil {
		router.StaticFS("/assets", http.FS(assetsFS))
	}
	if s.cfg.ImagesDir != "" {
		router.Static("/images", s.cfg.ImagesDir)
	}

	router.GET("/", func(c *gin.Context) {
		p := s.loadPreferences(c)
		c.HTML(http.StatusOK, "index.tmpl", gin.H{
			"AppName":           appName,
			"RefreshIntervalMs": s.refreshIntervalMs,
			"Lang":              p.Language,
			"Dir":               prefs.Direction(p.Language),
			"Theme":             p.Theme,
			"T":                 i18n.Strings(p.Language),
			"PushEnabled":       s.cfg.Push.Enabled,
		})
	})

	api := router.Group("/api")
	api.GET("/state", s.handleState)
	api.GET("/categories", s.handleCategories)
	api.GET("/currencies", s.handleCurrencies)
	api.GET("/items/:id", s.handleItem)

	sessions := api.Group("/sessions")
	sessions.POST("", s.handleCreateSession)
	sessions.GET("/:sid", s.withSession(s.handleView))
	sessions.DELETE("/:sid", s.handleCloseSession)
	sessions.GET("/:sid/items", s.withSession(s.handleView))
	sessions.PUT("/:sid/filter", s.withSession(s.handleFilter))
	sessions.PUT("/:sid/currency", s.withSession(s.handleCurrency))
	sessions.PUT("/:sid/language", s.withSession(s.handleLanguage))
	sessions.POST("/:sid/selection/:id", s.withSession(s.handleToggle))
	sessions.DELETE("/:sid/selection/:id", s.withSession(s.handleDeselect))
	sessions.DELETE("/:sid/selection", s.withSession(s.handleClearSelection))
	sessions.GET("/:sid/compare", s.withSession(s.handleCompare))

	api.POST("/rows", s.handlePushRows)
	api.GET("/rows/ws", s.handlePushSocket)

	api.POST("/rates/refresh", s.handleRefreshRates)
	api.GET("/preferences", s.handleGetPreferences)
	api.PUT("/preferences", s.handlePutPreferences)

	api.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"metrics": s.metricStore.snapshot(), "latest": s.metricStore.latest()})
	})

	api.GET("/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logStore.query(c.Query("level"), c.Query("component"))})
	})

	api.GET("/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshot()})
	})

	if s.deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	return router, nil
}

// observeRequests counts requests per route and status code.
func (s *Server) observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if s.deps.Metrics == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveHTTPRequest(route, c.Writer.Status())
	}
}

func fsSub(path string) (fs.FS, error) {
	sub, err := fs.Sub(embeddedFS, path)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
