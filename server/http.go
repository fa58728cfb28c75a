package server

import (
	"errors"
	"expvar"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/hatgame/logger"
	"github.com/wfunc/hatgame/match"
	"github.com/wfunc/hatgame/network"
	"github.com/wfunc/hatgame/persistence"
	"github.com/wfunc/hatgame/room"
	"github.com/wfunc/hatgame/stats"
	"github.com/wfunc/hatgame/words"
)

func (s *GameServer) setupRouter(gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.Use(cors.New(corsConfig(s.cfg.AllowedOrigins)))

	api := router.Group("/api")
	{
		api.GET("/matches/:id", s.getMatch)
		api.GET("/players/:key/stats", s.getPlayerStats)
		api.GET("/leaderboards/:metric", s.getLeaderboard)
	}

	router.GET("/ws", func(c *gin.Context) {
		s.handleWebSocket(c.Writer, c.Request)
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/debug/vars", gin.WrapH(expvar.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"matches":  s.roomManager.Count(),
			"sessions": s.sessionManager.Count(),
		})
	})
	return router
}

func (s *GameServer) getMatch(c *gin.Context) {
	snap, err := s.game.GetMatchSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *GameServer) getPlayerStats(c *gin.Context) {
	profile, err := s.game.GetPlayerWithStats(c.Request.Context(), c.Param("key"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *GameServer) getLeaderboard(c *gin.Context) {
	metric := c.Param("metric")
	rows, err := s.game.GetLeaderboard(c.Request.Context(), metric)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, network.LeaderboardResponse{Metric: metric, Rows: rows})
}

func abortWithError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Log.Errorw("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

// statusFor maps service errors onto HTTP status codes. The WebSocket error
// packet reuses the same codes.
func statusFor(err error) int {
	var (
		noMatch    *match.NoActiveMatchError
		roster     *match.InvalidRosterError
		emptyPool  *match.EmptyWordPoolError
		transition *match.InvalidTransitionError
		shortfall  *words.InsufficientWordsError
	)
	switch {
	case errors.As(err, &noMatch), errors.Is(err, persistence.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrRoomExists):
		return http.StatusConflict
	case errors.As(err, &roster), errors.As(err, &emptyPool), errors.As(err, &transition),
		errors.As(err, &shortfall), errors.Is(err, stats.ErrUnknownMetric):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodOptions}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.Debugw("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
