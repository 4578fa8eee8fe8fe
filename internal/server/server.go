// Package server exposes the webhook endpoint and the dashboard REST API.
package server

import (
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tvcornix-go/internal/config"
	"tvcornix-go/internal/metrics"
	"tvcornix-go/internal/route"
	"tvcornix-go/internal/signal"
	"tvcornix-go/internal/store"
	"tvcornix-go/internal/telegram"
	"tvcornix-go/internal/util"
	"tvcornix-go/internal/webhook"
)

const version = "1.0.0"

// Telegram update envelope keys. Their presence on the webhook endpoint
// means someone pointed the bot's own webhook here by mistake.
var telegramUpdateKeys = []string{"update_id", "message", "channel_post", "my_chat_member"}

var vercelOriginRe = regexp.MustCompile(`\.vercel\.app$`)

// Server wires the pipeline behind the HTTP boundary.
type Server struct {
	cfg    *config.Config
	log    zerolog.Logger
	ring   *util.RingBuffer
	store  *store.Store
	router *route.Router
	tg     *telegram.Client
	hub    *Hub

	mu        sync.RWMutex
	botInfo   *telegram.BotInfo
	connected bool
}

// New assembles the server; call Engine to obtain the handler.
func New(cfg *config.Config, log zerolog.Logger, ring *util.RingBuffer, st *store.Store, router *route.Router, tg *telegram.Client) *Server {
	return &Server{
		cfg:    cfg,
		log:    log,
		ring:   ring,
		store:  st,
		router: router,
		tg:     tg,
		hub:    NewHub(log),
	}
}

// SetBotInfo records the result of the startup connectivity probe.
func (s *Server) SetBotInfo(info *telegram.BotInfo, connected bool) {
	s.mu.Lock()
	s.botInfo = info
	s.connected = connected
	s.mu.Unlock()
}

func (s *Server) botStatus() (*telegram.BotInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.botInfo, s.connected
}

// Engine builds the gin router with every route registered.
func (s *Server) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.corsMiddleware(), s.requestLog())

	engine.GET("/", s.handleRoot)
	engine.GET("/health", s.handleHealth)
	engine.GET("/api/signals", s.handleSignals)
	engine.GET("/api/stats", s.handleStats)
	engine.GET("/api/logs", s.handleLogs)
	engine.GET("/api/status", s.handleStatus)
	engine.GET("/ws", s.handleWS)
	engine.POST("/webhook", s.handleWebhook)
	engine.POST("/test-telegram", s.handleTestTelegram)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found", "path": c.Request.URL.Path})
	})
	return engine
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case origin != "" && (vercelOriginRe.MatchString(origin) || origin == s.cfg.Server.FrontendURL || origin == "http://localhost:5173"):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
		default:
			c.Header("Access-Control-Allow-Origin", "*")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Webhook-Secret")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.log.Debug().Str("method", c.Request.Method).Str("path", c.Request.URL.Path).Msg("request")
		c.Next()
	}
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "TradingView-Telegram-Cornix Relay",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	info, connected := s.botStatus()
	state := "disconnected"
	if connected {
		state = "connected"
	}
	resp := gin.H{
		"status":    "healthy",
		"telegram":  state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if info != nil {
		resp["botInfo"] = gin.H{"username": info.Username, "id": info.ID, "firstName": info.FirstName}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSignals(c *gin.Context) {
	recent := s.store.Recent()
	c.JSON(http.StatusOK, gin.H{"success": true, "signals": recent, "count": len(recent)})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": s.store.Snapshot()})
}

func (s *Server) handleLogs(c *gin.Context) {
	logs := s.ring.Recent()
	c.JSON(http.StatusOK, gin.H{"success": true, "logs": logs})
}

func (s *Server) handleStatus(c *gin.Context) {
	info, connected := s.botStatus()
	tgState := "offline"
	if connected {
		tgState = "online"
	}
	status := gin.H{
		"server":   "online",
		"telegram": tgState,
		"webhook":  "ready",
		"cornix":   tgState,
	}
	if info != nil {
		status["botInfo"] = gin.H{"username": info.Username, "id": info.ID, "firstName": info.FirstName}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": status})
}

// handleWebhook is the TradingView ingress: authenticate, validate,
// route, persist, respond.
func (s *Server) handleWebhook(c *gin.Context) {
	started := time.Now()

	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		metrics.WebhooksTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	// A Telegram update here means the bot webhook was misconfigured to
	// point at the TradingView endpoint. Acknowledge and drop.
	for _, key := range telegramUpdateKeys {
		if _, present := raw[key]; present {
			s.log.Info().Str("key", key).Msg("telegram update received on webhook endpoint, ignoring")
			metrics.WebhooksTotal.WithLabelValues("ignored").Inc()
			c.JSON(http.StatusOK, gin.H{"status": "ignored", "message": "Telegram updates not supported on this endpoint"})
			return
		}
	}

	if !s.authorized(c) {
		s.log.Warn().Bool("has_token", providedToken(c) != "").Msg("webhook authentication failed")
		metrics.WebhooksTotal.WithLabelValues("unauthorized").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid or missing webhook secret token"})
		return
	}

	result := webhook.Validate(raw)
	if !result.Valid {
		s.log.Warn().Interface("errors", result.Errors).Msg("webhook validation failed")
		metrics.WebhooksTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook data", "details": result.Errors})
		return
	}

	sig := result.Signal
	s.log.Info().Str("symbol", sig.Symbol).Str("action", string(sig.Action)).Str("format", sig.OriginalFormat).Msg("webhook validated")

	routed, err := s.router.Handle(c.Request.Context(), sig)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("webhook processing failed")
		s.store.RecordError()
		metrics.WebhooksTotal.WithLabelValues("error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed", "message": err.Error()})
		return
	}

	rec := signal.Record{
		Symbol:        routed.Symbol,
		Side:          string(sig.Side),
		Action:        string(routed.Action),
		CornixCommand: routed.CornixCommand,
		Status:        "sent",
	}
	if sig.Size != nil {
		rec.Size = *sig.Size
	}
	rec.SizeType = string(sig.SizeType)
	stored := s.store.Append(rec)
	s.hub.Broadcast(stored)

	metrics.WebhooksTotal.WithLabelValues("ok").Inc()
	metrics.SignalsTotal.WithLabelValues(string(routed.Action), routed.Symbol).Inc()

	elapsed := time.Since(started)
	s.log.Info().Str("symbol", routed.Symbol).Str("action", string(routed.Action)).Dur("elapsed", elapsed).Msg("webhook processed")
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"action":         routed.Action,
		"symbol":         routed.Symbol,
		"cornixCommand":  routed.CornixCommand,
		"message":        "Trade signal executed successfully",
		"processingTime": elapsed.String(),
		"timestamp":      routed.Timestamp.Format(time.RFC3339),
	})
}

func (s *Server) handleTestTelegram(c *gin.Context) {
	if !s.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid or missing webhook secret token"})
		return
	}
	msg := "🧪 *TEST MESSAGE*\nBot connection is working correctly!\nTime: " + time.Now().UTC().Format(time.RFC3339)
	if _, err := s.tg.SendMessage(c.Request.Context(), msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send test message", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Test message sent to Telegram successfully"})
}

func providedToken(c *gin.Context) string {
	if token := c.GetHeader("X-Webhook-Secret"); token != "" {
		return token
	}
	return c.Query("token")
}

func (s *Server) authorized(c *gin.Context) bool {
	return webhook.SecureCompare(providedToken(c), s.cfg.Server.WebhookSecret)
}
