// Package httpapi exposes the mess service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"foodforge/internal/attendance"
	"foodforge/internal/auth"
	"foodforge/internal/httpmiddleware"
	"foodforge/internal/identity"
	"foodforge/internal/menu"
	"foodforge/internal/realtime"
	"foodforge/internal/report"
)

// Deps are the handles the API is built from. Limiter, Realtime and Gatherer
// are optional.
type Deps struct {
	Logger       *zap.Logger
	Admissions   *attendance.Service
	Identities   *identity.Provider
	Issuer       *auth.Issuer
	Menu         *menu.Store
	Reports      *report.Builder
	Realtime     *realtime.Gateway
	Limiter      *httpmiddleware.KeyedLimiter
	Gatherer     prometheus.Gatherer
	Health       map[string]func(context.Context) bool
	CORSOrigins  []string
	AdmitTimeout time.Duration
	Production   bool
	Now          func() time.Time
}

// Handler serves the API routes.
type Handler struct {
	d   Deps
	log *zap.Logger
}

// New creates a Handler, filling defaults for optional deps.
func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.AdmitTimeout <= 0 {
		d.AdmitTimeout = 5 * time.Second
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	return &Handler{d: d, log: d.Logger.Named("http")}
}

// Router builds the gin engine with all middleware and routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(
		httpmiddleware.RequestLogger(h.log, "/healthz", "/metrics"),
		httpmiddleware.Recovery(h.log),
		cors.New(h.corsConfig()),
		httpmiddleware.SecurityHeaders(h.d.Production),
	)

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.d.Gatherer, promhttp.HandlerOpts{})))

	public := r.Group("/v1/auth", h.limit(httpmiddleware.ClientIP))
	{
		public.POST("/register", h.Register)
		public.POST("/login", h.Login)
		public.POST("/refresh", h.Refresh)
		public.POST("/logout", h.Logout)
	}

	v1 := r.Group("/v1", auth.RequireSession(h.d.Issuer), h.limit(httpmiddleware.SessionOrIP))
	{
		v1.GET("/me", h.Me)
		v1.GET("/me/token", h.MyToken)
		v1.GET("/me/token.png", h.MyTokenPNG)
		v1.GET("/me/attendance", h.MyAttendance)
		v1.GET("/me/optins", h.MyOptIns)
		v1.PUT("/me/optins", h.SetOptIn)
		v1.GET("/menu", h.Menu)
		if h.d.Realtime != nil {
			v1.GET("/realtime", h.d.Realtime.Handle)
		}
	}

	admin := v1.Group("", auth.RequireRole(string(identity.RoleAdmin)))
	{
		admin.POST("/scans", h.Scan)
		admin.GET("/attendance", h.AttendanceByDate)
		admin.GET("/attendance/:id", h.AttendanceRecord)
		admin.GET("/students", h.ListStudents)
		admin.POST("/students", h.CreateStudent)
		admin.PUT("/menu", h.ReplaceMenu)
		admin.GET("/reports/daily", h.DailyReport)
		admin.GET("/reports/daily.pdf", h.DailyReportPDF)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

func (h *Handler) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range h.d.CORSOrigins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = h.d.CORSOrigins
	cfg.AllowCredentials = true
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	}
	return cfg
}

func (h *Handler) limit(key httpmiddleware.KeyFunc) gin.HandlerFunc {
	if h.d.Limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return h.d.Limiter.Middleware(key)
}
