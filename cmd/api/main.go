package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	qrcode "github.com/skip2/go-qrcode"

	"edtrack/internal/attendance"
	"edtrack/internal/auth"
	"edtrack/internal/campus"
	"edtrack/internal/config"
	"edtrack/internal/httpmiddleware"
	"edtrack/internal/metrics"
	"edtrack/internal/queue"
	"edtrack/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL, store.Pool{
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		// A bad connection string is unrecoverable; a failed ping still
		// yields a usable pool that reconnects once the database is up.
		if db == nil {
			return fmt.Errorf("db open: %w", err)
		}
		log.Printf("warning: db not reachable: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	var dir *campus.Client
	if cfg.CampusSkip {
		log.Println("campus directory not configured, skipping subject/faculty validation")
	} else {
		dir = campus.New(cfg.CampusServiceURL, false)
		if err := dir.Health(context.Background()); err != nil {
			log.Printf("WARNING: campus directory not available: %v", err)
		}
	}

	repo := attendance.NewRepository(db.Client)
	svc := attendance.NewService(repo, repo, dir, attendance.Config{
		SessionTTL:     cfg.SessionTTL,
		DefaultRadiusM: cfg.DefaultRadiusM,
		FallbackLat:    cfg.FallbackLat,
		FallbackLon:    cfg.FallbackLon,
	})
	summaries := attendance.NewSummaryStore(redisClient.Client)

	r := newRouter(cfg, svc, summaries, q, db, redisClient)

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func newRouter(cfg config.App, svc *attendance.Service, summaries *attendance.SummaryStore, q queue.Queue, db *store.DB, redisClient *store.Redis) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	var limiterRedis *redis.Client
	if redisClient != nil {
		limiterRedis = redisClient.Client
	}
	r.Use(httpmiddleware.NewLimiter(cfg.RateLimitPerMin, limiterRedis).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	faculty := r.Group("/v1/attendance", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleFaculty))

	faculty.POST("/sessions/start", func(c *gin.Context) {
		var req struct {
			SubjectID string   `json:"subject_id" binding:"required"`
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
			RadiusM   *float64 `json:"radius_m"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		facultyID := auth.FromContext(c).Subject
		sess, err := svc.StartSession(c.Request.Context(), req.SubjectID, facultyID, req.Latitude, req.Longitude, req.RadiusM)
		if err != nil {
			writeError(c, err)
			return
		}

		metrics.SessionsStarted.Inc()
		c.JSON(http.StatusCreated, sess)
	})

	faculty.POST("/sessions/:id/end", func(c *gin.Context) {
		facultyID := auth.FromContext(c).Subject
		if err := svc.EndSession(c.Request.Context(), c.Param("id"), facultyID); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Session ended"})
	})

	faculty.GET("/sessions/:id/qr", func(c *gin.Context) {
		facultyID := auth.FromContext(c).Subject
		sess, err := svc.SessionForFaculty(c.Request.Context(), c.Param("id"), facultyID)
		if err != nil {
			writeError(c, err)
			return
		}
		png, err := qrcode.Encode(sess.Code, qrcode.Medium, 256)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "qr encoding failed"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	faculty.GET("/report/:id", func(c *gin.Context) {
		facultyID := auth.FromContext(c).Subject
		records, err := svc.Report(c.Request.Context(), c.Param("id"), facultyID)
		if err != nil {
			writeError(c, err)
			return
		}

		resp := gin.H{"records": records}
		if summaries != nil {
			if sum, serr := summaries.Get(c.Request.Context(), c.Param("id")); serr == nil {
				resp["summary"] = sum
			}
		}
		c.JSON(http.StatusOK, resp)
	})

	student := r.Group("/v1/attendance", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleStudent))

	student.POST("/mark", func(c *gin.Context) {
		var req struct {
			QRCode    string   `json:"qr_code" binding:"required"`
			Latitude  *float64 `json:"latitude" binding:"required"`
			Longitude *float64 `json:"longitude" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		studentID := auth.FromContext(c).Subject
		rec, err := svc.MarkAttendance(c.Request.Context(), req.QRCode, studentID, *req.Latitude, *req.Longitude)
		if err != nil {
			metrics.Marks.WithLabelValues(markOutcome(err)).Inc()
			writeError(c, err)
			return
		}
		metrics.Marks.WithLabelValues("ok").Inc()

		msg, err := queue.NewMarkedMessage(queue.MarkedEvent{RecordID: rec.ID, SessionID: rec.SessionID})
		if err == nil {
			err = q.Publish(c.Request.Context(), msg)
		}
		if err != nil {
			log.Printf("queue publish failed: %v", err)
		}

		c.JSON(http.StatusOK, gin.H{"message": "Attendance marked", "record": rec})
	})

	return r
}

// writeError translates service errors into JSON bodies and HTTP statuses.
func writeError(c *gin.Context, err error) {
	var gfe *attendance.GeofenceError
	switch {
	case errors.Is(err, attendance.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Attendance Failed: Invalid or Expired QR Code."})
	case errors.As(err, &gfe):
		c.JSON(http.StatusForbidden, gin.H{
			"error":    "Attendance Failed: You are outside the campus geofence.",
			"distance": gfe.Distance(),
		})
	case errors.Is(err, attendance.ErrAlreadyMarked):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Attendance already marked"})
	case errors.Is(err, attendance.ErrNotSessionOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "Session belongs to another faculty member"})
	case errors.Is(err, attendance.ErrUnknownSubject), errors.Is(err, attendance.ErrUnknownFaculty):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func markOutcome(err error) string {
	var gfe *attendance.GeofenceError
	switch {
	case errors.Is(err, attendance.ErrSessionNotFound):
		return "not_found"
	case errors.As(err, &gfe):
		return "geofence"
	case errors.Is(err, attendance.ErrAlreadyMarked):
		return "duplicate"
	default:
		return "error"
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
