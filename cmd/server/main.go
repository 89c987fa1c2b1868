package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/config"
	"github.com/yukikurage/circuit/internal/constants"
	"github.com/yukikurage/circuit/internal/database"
	"github.com/yukikurage/circuit/internal/docstore"
	"github.com/yukikurage/circuit/internal/handlers"
	"github.com/yukikurage/circuit/internal/logger"
	"github.com/yukikurage/circuit/internal/middleware"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/notify"
	"github.com/yukikurage/circuit/internal/repository"
	"github.com/yukikurage/circuit/internal/services"
	"github.com/yukikurage/circuit/internal/storage"
	"github.com/yukikurage/circuit/internal/validation"
)

const streamBuffer = 16

func main() {
	// Load configuration
	cfg := config.Load()
	appLog := logger.New(log.Default(), cfg.RollbarToken, cfg.Env)
	defer appLog.Close()

	gin.SetMode(cfg.GinMode)

	if err := validation.Register(); err != nil {
		appLog.Fatal("Failed to register validators", err)
	}

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		appLog.Fatal("Failed to connect to database", err)
	}

	// Run migrations
	if err := database.Migrate(); err != nil {
		appLog.Fatal("Failed to run migrations", err)
	}
	db := database.GetDB()

	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	ticketRepo := repository.NewTicketRepository(db)

	// Attendance and feed live in MongoDB when it is configured
	var (
		attendanceRepo repository.AttendanceRepository
		feedRepo       repository.FeedRepository
	)
	if cfg.MongoURI != "" {
		mongoDB, err := docstore.NewMongoDB(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			appLog.Fatal("Failed to connect to MongoDB", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoDB.Close(ctx)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.OutboundTimeout)
		attendanceStore, err := docstore.NewAttendanceStore(ctx, mongoDB)
		if err != nil {
			cancel()
			appLog.Fatal("Failed to prepare attendance collection", err)
		}
		feedStore, err := docstore.NewFeedStore(ctx, mongoDB)
		cancel()
		if err != nil {
			appLog.Fatal("Failed to prepare feed collection", err)
		}
		attendanceRepo, feedRepo = attendanceStore, feedStore
	} else {
		attendanceRepo = repository.NewAttendanceRepository(db)
		feedRepo = repository.NewFeedRepository(db)
	}

	var objectStore storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			appLog.Fatal("Failed to configure object storage", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.OutboundTimeout)
		err = minioStore.EnsureBucket(ctx)
		cancel()
		if err != nil {
			appLog.Fatal("Failed to prepare bucket", err)
		}
		objectStore = minioStore
	} else {
		appLog.Warn("MINIO_ENDPOINT is not set, uploads are disabled")
	}

	// Notifications
	catalog, err := notify.NewCatalog(cfg.DefaultLocale)
	if err != nil {
		appLog.Fatal("Failed to load notification messages", err)
	}
	hub := notify.NewStreamHub(streamBuffer)
	channels := []notify.Channel{hub}
	if cfg.PushGatewayURL != "" {
		channels = append(channels, notify.NewPushChannel(cfg.PushGatewayURL, cfg.PushGatewayToken, userRepo, cfg.OutboundTimeout))
	}
	if cfg.SendgridAPIKey != "" {
		channels = append(channels, notify.NewEmailChannel(cfg.SendgridAPIKey, "Circuit", cfg.MailFrom, "Circuit"))
	}
	dispatcher := notify.NewDispatcher(userRepo, catalog, appLog, cfg.OutboundTimeout, channels...)

	// Initialize AI service
	var aiService *services.AIService
	if cfg.OpenAIAPIKey != "" {
		aiService = services.NewAIService(cfg.OpenAIAPIKey, cfg.OutboundTimeout)
	}

	tokenService := services.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	authService := services.NewAuthService(userRepo, tokenService)
	userService := services.NewUserService(userRepo)
	uploadService := services.NewUploadService(objectStore, cfg.UploadMaxBytes, cfg.OutboundTimeout)
	projectService := services.NewProjectService(projectRepo, feedRepo, dispatcher)
	taskService := services.NewTaskService(taskRepo, projectRepo, aiService, uploadService, dispatcher)
	ticketService := services.NewTicketService(ticketRepo, taskRepo, projectRepo, dispatcher)
	attendanceService := services.NewAttendanceService(attendanceRepo, projectRepo, dispatcher)
	feedService := services.NewFeedService(feedRepo, projectRepo, dispatcher)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, userService)
	userHandler := handlers.NewUserHandler(userService)
	projectHandler := handlers.NewProjectHandler(projectService)
	feedHandler := handlers.NewFeedHandler(feedService)
	taskHandler := handlers.NewTaskHandler(taskService)
	ticketHandler := handlers.NewTicketHandler(ticketService)
	attendanceHandler := handlers.NewAttendanceHandler(attendanceService)
	uploadHandler := handlers.NewUploadHandler(uploadService)
	notificationHandler := handlers.NewNotificationHandler(hub, userService)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.ReportErrors(appLog), middleware.Locale())

	store, err := sessionStore(cfg)
	if err != nil {
		appLog.Fatal("Failed to create session store", err)
	}
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(constants.SessionCookieName, store))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "message": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Circuit API is running"})
	})

	requireAuth := middleware.RequireAuth(authService)
	staffOnly := middleware.RequireRole(models.RoleManager, models.RoleAdmin)
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	loginLimiter := middleware.NewIPRateLimiter(cfg.LoginRatePerMinute)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/signup", middleware.RateLimit(loginLimiter), authHandler.Signup)
			auth.POST("/login", middleware.RateLimit(loginLimiter), authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", requireAuth, authHandler.GetCurrentUser)
			auth.PATCH("/profile", requireAuth, authHandler.UpdateProfile)
			auth.POST("/password", requireAuth, authHandler.ChangePassword)
		}

		users := api.Group("/users")
		users.Use(requireAuth)
		{
			users.GET("", staffOnly, userHandler.ListUsers)
			users.POST("", adminOnly, userHandler.CreateUser)
			users.GET("/:id", userHandler.GetUser)
			users.PATCH("/:id", staffOnly, userHandler.UpdateUser)
			users.DELETE("/:id", adminOnly, userHandler.DeleteUser)
		}

		projects := api.Group("/projects")
		projects.Use(requireAuth)
		{
			projects.GET("", projectHandler.ListProjects)
			projects.POST("", staffOnly, projectHandler.CreateProject)

			project := projects.Group("/:id", middleware.RequireProjectID())
			project.GET("", projectHandler.GetProject)
			project.PATCH("", staffOnly, projectHandler.UpdateProject)
			project.DELETE("", adminOnly, projectHandler.DeleteProject)
			project.PUT("/participants", staffOnly, projectHandler.ReplaceParticipants)
			project.POST("/participants", staffOnly, projectHandler.AddParticipant)
			project.DELETE("/participants/:user_id", staffOnly, projectHandler.RemoveParticipant)
			project.GET("/feed", feedHandler.ListEntries)
			project.POST("/feed", feedHandler.PostEntry)
		}

		api.POST("/feed/:entry_id/read", requireAuth, feedHandler.MarkRead)

		tasks := api.Group("/tasks")
		tasks.Use(requireAuth)
		{
			tasks.GET("", taskHandler.ListTasks)
			tasks.POST("", staffOnly, taskHandler.CreateTask)
			tasks.POST("/generate", staffOnly, taskHandler.GenerateTasks)

			task := tasks.Group("/:id", middleware.RequireTaskID())
			task.GET("", taskHandler.GetTask)
			task.PATCH("", taskHandler.UpdateTask)
			task.DELETE("", adminOnly, taskHandler.DeleteTask)
			task.POST("/checklist/:index/toggle", taskHandler.ToggleChecklistItem)
			task.PUT("/assignee-state", taskHandler.UpdateAssigneeState)
			task.POST("/attachments", taskHandler.AddAttachment)

			task.GET("/tickets", ticketHandler.ListTickets)
			task.POST("/tickets", staffOnly, ticketHandler.CreateTicket)
			task.GET("/tickets/:ticket_id", ticketHandler.GetTicket)
			task.PATCH("/tickets/:ticket_id", ticketHandler.UpdateTicket)
			task.DELETE("/tickets/:ticket_id", staffOnly, ticketHandler.DeleteTicket)
			task.POST("/tickets/:ticket_id/comments", ticketHandler.AddComment)
		}

		attendance := api.Group("/attendance")
		attendance.Use(requireAuth)
		{
			attendance.POST("", attendanceHandler.MarkAttendance)
			attendance.GET("", attendanceHandler.QueryAttendance)
			attendance.GET("/today", attendanceHandler.TodayAttendance)
			attendance.PUT("/:id/decision", staffOnly, attendanceHandler.DecideAttendance)
		}

		api.POST("/uploads", requireAuth, uploadHandler.Upload)

		notifications := api.Group("/notifications")
		notifications.Use(requireAuth)
		{
			notifications.GET("/stream", notificationHandler.Stream)
			notifications.POST("/tokens", notificationHandler.RegisterToken)
			notifications.DELETE("/tokens/:token", notificationHandler.RemoveToken)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		appLog.Info("Server starting on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server")

	// Streams never finish on their own, so close the hub before waiting on handlers.
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLog.Error("Server forced to shutdown", err)
	}
	dispatcher.Wait()
}

// sessionStore uses Redis when REDIS_HOST is set and signed cookies otherwise.
func sessionStore(cfg *config.Config) (sessions.Store, error) {
	if cfg.RedisHost == "" {
		return cookie.NewStore([]byte(cfg.SessionSecret)), nil
	}

	redisAddr := cfg.RedisHost + ":" + cfg.RedisPort
	return redisStore.NewStore(
		10,        // Redis pool size
		"tcp",     // network type
		redisAddr, // Redis address from config
		"",        // username (empty for default user)
		"",        // password (empty = no password)
		[]byte(cfg.SessionSecret),
	)
}
