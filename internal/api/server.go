package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/twbeatles/navernews-tabsearch/internal/cache"
	"github.com/twbeatles/navernews-tabsearch/internal/config"
	"github.com/twbeatles/navernews-tabsearch/internal/models"
	"github.com/twbeatles/navernews-tabsearch/internal/query"
	"github.com/twbeatles/navernews-tabsearch/internal/refresh"
	"github.com/twbeatles/navernews-tabsearch/internal/security"
	"github.com/twbeatles/navernews-tabsearch/internal/storage"
	"github.com/twbeatles/navernews-tabsearch/internal/web"

	"github.com/gin-gonic/gin"
)

type Server struct {
	router        *gin.Engine
	store         *storage.Store
	refresher     *refresh.Service
	cache         *cache.Manager
	cfg           *config.Config
	swaggerServer *web.SwaggerServer
}

func NewServer(store *storage.Store, refresher *refresh.Service, cacheManager *cache.Manager, cfg *config.Config) *Server {
	router := gin.Default()

	security.SetupSecurityMiddleware(router, cfg.Security)

	server := &Server{
		router:        router,
		store:         store,
		refresher:     refresher,
		cache:         cacheManager,
		cfg:           cfg,
		swaggerServer: web.NewSwaggerServer(cfg.EnableSwagger),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	// API routes
	api := s.router.Group("/api/v1")
	{
		api.GET("/keywords", s.getKeywords)
		api.POST("/keywords/recalculate", s.recalculateKeyword)

		api.GET("/articles", s.getArticles)
		api.GET("/articles/count", s.getArticleCount)
		api.GET("/articles/note", s.getNote)
		api.POST("/articles/note", s.saveNote)
		api.POST("/articles/status", s.updateStatus)
		api.POST("/articles/mark-read", s.markAllRead)
		api.DELETE("/articles/old", s.deleteOldArticles)
		api.DELETE("/articles", s.deleteAllArticles)

		api.GET("/stats", s.getStatistics)
		api.GET("/publishers", s.getTopPublishers)

		// Fetch and refresh control endpoints
		api.POST("/fetch", s.startFetch)
		api.POST("/refresh", s.startRefresh)
		api.GET("/refresh/status", s.getRefreshStatus)
	}

	s.swaggerServer.RegisterRoutes(s.router)
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.router.Run(":" + strconv.Itoa(s.cfg.Port))
}

// StartWithContext serves until the context is cancelled, then shuts
// down gracefully.
func (s *Server) StartWithContext(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(s.cfg.Port),
		Handler: s.router,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"service":      "navernews-tabsearch",
		"cycle_active": s.refresher.Status().CycleActive,
		"docs_enabled": s.swaggerServer.Enabled(),
	})
}

func (s *Server) getKeywords(c *gin.Context) {
	keywords := s.cfg.TabKeywords

	// Articles are stored under the parsed search term, so unread counts
	// are read under the same key.
	terms := make([]string, len(keywords))
	for i, kw := range keywords {
		term, _ := query.Parse(kw)
		if term == "" {
			term = kw
		}
		terms[i] = term
	}
	unread, err := s.store.UnreadCountsByKeywords(terms)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"keywords": keywords,
		"unread":   unread,
		"count":    len(keywords),
	})
}

// parseQueryOptions reads the list/count query parameters.
func parseQueryOptions(c *gin.Context) models.QueryOptions {
	opts := models.QueryOptions{
		Keyword:        c.Query("keyword"),
		Filter:         c.Query("filter"),
		SortAscending:  c.Query("sort") == "asc",
		OnlyBookmarked: c.Query("bookmarked") == "true",
		OnlyUnread:     c.Query("unread") == "true",
		HideDuplicates: c.Query("hide_duplicates") == "true",
		StartDate:      c.Query("start_date"),
		EndDate:        c.Query("end_date"),
	}

	if exclude := c.Query("exclude"); exclude != "" {
		for _, word := range strings.Split(exclude, ",") {
			if trimmed := strings.TrimSpace(word); trimmed != "" {
				opts.ExcludeWords = append(opts.ExcludeWords, trimmed)
			}
		}
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			opts.Limit = limit
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			opts.Offset = offset
		}
	}

	return opts
}

func (s *Server) getArticles(c *gin.Context) {
	opts := parseQueryOptions(c)
	if opts.Keyword == "" && !opts.OnlyBookmarked {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword or bookmarked=true is required"})
		return
	}

	key := cache.ArticlesKey(opts)
	if cached, found := s.cache.Get(key); found {
		if articles, ok := cached.([]models.Article); ok {
			c.JSON(http.StatusOK, gin.H{"articles": articles, "count": len(articles), "cached": true})
			return
		}
	}

	articles, err := s.store.FetchNews(opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cache.Set(key, articles, s.cfg.CacheTTL)

	c.JSON(http.StatusOK, gin.H{"articles": articles, "count": len(articles)})
}

func (s *Server) getArticleCount(c *gin.Context) {
	opts := parseQueryOptions(c)
	if opts.Keyword == "" && !opts.OnlyBookmarked {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword or bookmarked=true is required"})
		return
	}

	key := cache.CountKey(opts)
	if cached, found := s.cache.Get(key); found {
		if count, ok := cached.(int); ok {
			c.JSON(http.StatusOK, gin.H{"count": count, "cached": true})
			return
		}
	}

	count, err := s.store.CountNews(opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cache.Set(key, count, s.cfg.CacheTTL)

	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (s *Server) getNote(c *gin.Context) {
	link := c.Query("link")
	if link == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "link is required"})
		return
	}

	note, err := s.store.GetNote(link)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": link, "note": note})
}

func (s *Server) saveNote(c *gin.Context) {
	var body struct {
		Link string `json:"link" binding:"required"`
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.SaveNote(body.Link, body.Note); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cache.Flush()

	c.JSON(http.StatusOK, gin.H{"message": "Note saved", "link": body.Link})
}

func (s *Server) updateStatus(c *gin.Context) {
	var body struct {
		Link  string      `json:"link" binding:"required"`
		Field string      `json:"field" binding:"required"`
		Value interface{} `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	value := body.Value
	// Flag fields arrive as JSON booleans, stored as 0/1.
	if flag, ok := value.(bool); ok {
		if flag {
			value = 1
		} else {
			value = 0
		}
	}

	if err := s.store.UpdateStatus(body.Link, body.Field, value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.cache.Flush()

	c.JSON(http.StatusOK, gin.H{"message": "Status updated", "link": body.Link, "field": body.Field})
}

func (s *Server) markAllRead(c *gin.Context) {
	var body struct {
		Keyword        string `json:"keyword"`
		OnlyBookmarked bool   `json:"only_bookmarked"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Keyword == "" && !body.OnlyBookmarked {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword or only_bookmarked is required"})
		return
	}

	changed, err := s.store.MarkAllRead(body.Keyword, body.OnlyBookmarked)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cache.Flush()

	c.JSON(http.StatusOK, gin.H{"message": "Articles marked read", "changed": changed})
}

func (s *Server) deleteOldArticles(c *gin.Context) {
	days := s.cfg.RetentionDays
	if daysStr := c.Query("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = parsed
	}
	if days < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "retention is disabled, pass days explicitly"})
		return
	}

	deleted, err := s.store.DeleteOldNews(days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cache.Flush()

	c.JSON(http.StatusOK, gin.H{"message": "Old articles deleted", "deleted": deleted, "days": days})
}

func (s *Server) deleteAllArticles(c *gin.Context) {
	deleted, err := s.store.DeleteAllNews()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cache.Flush()

	c.JSON(http.StatusOK, gin.H{"message": "Articles deleted, bookmarks kept", "deleted": deleted})
}

func (s *Server) getStatistics(c *gin.Context) {
	if cached, found := s.cache.Get(cache.StatsKey); found {
		if stats, ok := cached.(models.Statistics); ok {
			c.JSON(http.StatusOK, stats)
			return
		}
	}

	stats, err := s.store.Statistics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cache.Set(cache.StatsKey, stats, s.cfg.CacheTTL)

	c.JSON(http.StatusOK, stats)
}

func (s *Server) getTopPublishers(c *gin.Context) {
	limit := 10
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	publishers, err := s.store.TopPublishers(c.Query("keyword"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publishers": publishers, "count": len(publishers)})
}

func (s *Server) startFetch(c *gin.Context) {
	var body struct {
		Keyword string `json:"keyword" binding:"required"`
		More    bool   `json:"more"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requestID, err := s.refresher.FetchNews(body.Keyword, body.More)
	switch {
	case errors.Is(err, refresh.ErrNoKeyword):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, refresh.ErrRecentFetch):
		c.JSON(http.StatusConflict, gin.H{"error": "an identical fetch just ran, try again shortly"})
	case errors.Is(err, refresh.ErrPageLimit):
		c.JSON(http.StatusOK, gin.H{"message": "No further pages available", "keyword": body.Keyword})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{
			"message":    "Fetch started",
			"keyword":    body.Keyword,
			"request_id": requestID,
		})
	}
}

func (s *Server) startRefresh(c *gin.Context) {
	if !s.refresher.StartCycle() {
		c.JSON(http.StatusConflict, gin.H{"error": "a refresh cycle is already running or no keywords are configured"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Refresh cycle started", "keywords": len(s.cfg.TabKeywords)})
}

func (s *Server) getRefreshStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.refresher.Status())
}

func (s *Server) recalculateKeyword(c *gin.Context) {
	var body struct {
		Keyword string `json:"keyword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	duplicates, err := s.store.RecalculateDuplicates(body.Keyword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cache.Flush()

	c.JSON(http.StatusOK, gin.H{
		"message":    "Duplicates recalculated",
		"keyword":    body.Keyword,
		"duplicates": duplicates,
	})
}
