package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"docflow/approval-engine/internal/approval"
	"docflow/approval-engine/internal/config"
	"docflow/approval-engine/internal/directory"
	"docflow/approval-engine/internal/documents"
	"docflow/approval-engine/internal/notify"
	"docflow/approval-engine/internal/notify/websocket"
	"docflow/approval-engine/internal/templates"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Connect to database
	dbURL := cfg.Database.GetDatabaseURL()
	logger.Info("Connecting to database", zap.String("host", cfg.Database.Host))
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to open gorm connection", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(&directory.User{}, &directory.Delegation{}); err != nil {
		logger.Fatal("Failed to migrate directory tables", zap.Error(err))
	}

	// Notifications
	hub := websocket.NewHub(logger)
	notifier, err := notify.NewService(gormDB, hub, logger)
	if err != nil {
		logger.Fatal("Failed to initialize notifier", zap.Error(err))
	}
	defer notifier.Close()

	// Directory
	directoryRepo := directory.NewRepository(gormDB)
	directoryService := directory.NewService(directoryRepo, logger)
	directoryHandler := directory.NewHandler(directoryService)

	// Workflow engine
	store := approval.NewPostgresStore(db)
	engine := approval.NewEngine(store, directoryService, notifier, logger)
	engine.SetLockWait(cfg.Engine.LockWait)
	approvalHandler := approval.NewHandler(engine, logger)

	// Route templates and document registry
	templateService := templates.NewService(templates.NewRepository(db), logger)
	templateHandler := templates.NewHandler(templateService, logger)

	documentService := documents.NewService(documents.NewRepository(db), engine, templateService, logger)
	documentHandler := documents.NewHandler(documentService, logger)

	// Deadline watcher
	watcher := approval.NewDeadlineWatcher(store, notifier, logger)
	if err := watcher.Start(context.Background(), cfg.Engine.OverdueSchedule); err != nil {
		logger.Fatal("Failed to start deadline watcher", zap.Error(err))
	}
	defer watcher.Stop()

	// Setup Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	api := router.Group("/api/v1")
	{
		approvalHandler.RegisterRoutes(api)
		directoryHandler.RegisterRoutes(api)
		documentHandler.RegisterRoutes(api)
		templateHandler.RegisterRoutes(api)
	}

	// Workflow event stream
	router.GET("/ws", func(c *gin.Context) {
		if _, err := hub.HandleConnection(c.Writer, c.Request); err != nil {
			logger.Error("websocket upgrade failed", zap.Error(err))
		}
	})

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.Int("port", cfg.Server.Port))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
