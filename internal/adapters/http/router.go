package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/dkeye/CodeSync/internal/adapters/signal"
	"github.com/dkeye/CodeSync/internal/app/orch"
	"github.com/dkeye/CodeSync/internal/auth"
	"github.com/dkeye/CodeSync/internal/config"
	"github.com/dkeye/CodeSync/internal/metrics"
	transport "github.com/dkeye/CodeSync/internal/transport/http"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "ct"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags every request with a per-browser token kept in
// the cookie session. It survives reconnects, unlike the connection id.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// TokenMiddleware rejects requests without a valid identity token. The
// token is read from ?token= or an Authorization bearer header.
func TokenMiddleware(verifier *auth.JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := c.Query("token")
		if tok == "" {
			tok = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		sub, err := verifier.Verify(tok)
		if err != nil {
			log.Info().Err(err).Str("module", "adapters.http").Msg("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("identity", sub)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, m *metrics.Metrics) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString()
	}
	store := cookie.NewStore([]byte(secret))
	r.Use(sessions.Sessions("CodeSyncSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", transport.Healthz)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	transport.PresenceHandlers{Registry: o.Registry}.Register(api)

	ctrl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:      cfg.WS.ReadLimit,
		SendBuffer:     cfg.WS.SendBuffer,
		WriteWait:      cfg.WS.WriteWait,
		PongWait:       cfg.WS.PongWait,
		PingPeriod:     cfg.WS.PingPeriod,
		RateLimit:      cfg.Rate.Limit,
		RateInterval:   cfg.Rate.Interval,
		AllowedOrigins: cfg.WS.AllowedOrigins,
	}, m)

	wsHandlers := []gin.HandlerFunc{}
	if cfg.Auth.JWTSecret != "" {
		wsHandlers = append(wsHandlers, TokenMiddleware(auth.New(cfg.Auth.JWTSecret)))
	}
	wsHandlers = append(wsHandlers, func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/ws", wsHandlers...)

	return r
}

// WithCORS wraps the engine for browser clients served from another origin.
func WithCORS(cfg *config.Config, h http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.WS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	}).Handler(h)
}
