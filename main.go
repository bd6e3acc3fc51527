package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/meowdiary/cookie-bot/auth"
	"github.com/meowdiary/cookie-bot/bot"
	"github.com/meowdiary/cookie-bot/cli"
	"github.com/meowdiary/cookie-bot/config"
	"github.com/meowdiary/cookie-bot/database"
	"github.com/meowdiary/cookie-bot/handlers"
	"github.com/meowdiary/cookie-bot/logger"
	"github.com/meowdiary/cookie-bot/middleware"
	"github.com/meowdiary/cookie-bot/scheduler"
	"github.com/meowdiary/cookie-bot/services"
	"github.com/meowdiary/cookie-bot/websocket"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogOutput); err != nil {
		logger.Fatalf("Failed to initialize logger: %v", err)
	}

	// Initialize database
	if err := database.Init(databaseConfig(cfg)); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Load the rule tables
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		logger.Fatalf("Failed to load rules: %v", err)
	}
	logger.Infof("Rules loaded: %d achievements, %d badges, %d cards, %d levels",
		len(rules.Achievements), len(rules.Badges), len(rules.Cards), len(rules.Levels))

	// Initialize services
	progression := services.NewProgressionService(services.NewSQLStore(), rules, cfg.ChatAllowed)
	leaderboards := services.NewLeaderboardService(rules)

	// CLI mode: any positional argument runs an admin command and exits
	if len(os.Args) > 1 && os.Args[1] != "serve" {
		if err := cli.Run(progression, leaderboards, os.Args[1:]); err != nil {
			logger.Fatalf("%v", err)
		}
		return
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Start the Telegram bot
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tgBot, err := bot.New(cfg, progression, leaderboards, wsHub)
	if err != nil {
		logger.Fatalf("Failed to start Telegram bot: %v", err)
	}
	go tgBot.Run(ctx)

	// Start the daily report scheduler
	sched := scheduler.New(leaderboards, tgBot, bot.FormatReport)
	if err := sched.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Admin HTTP API
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpirationDays)
	authHandler := handlers.NewAuthHandler(cfg, jwtManager)
	adminHandler := handlers.NewAdminHandler(progression, leaderboards, wsHub)
	wsHandler := handlers.NewWSHandler(wsHub)

	r := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.FrontendURL}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// API routes
	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", authHandler.Login)

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.RequireAdmin(jwtManager))
		{
			// WebSocket event feed (token passed as query param)
			protected.GET("/ws", wsHandler.Serve)

			protected.GET("/status", adminHandler.Status)
			protected.GET("/chats", adminHandler.GetChats)
			protected.GET("/chats/:id/leaderboard", adminHandler.GetLeaderboard)
			protected.GET("/users", adminHandler.GetUsers)
			protected.GET("/users/:id", adminHandler.GetUser)
			protected.POST("/users/:id/adjust", adminHandler.AdjustPoints)
			protected.GET("/rules", adminHandler.GetRules)
			protected.POST("/wipe", adminHandler.Wipe)
		}
	}

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		logger.Infof("Admin API listening on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Errorf("Server shutdown: %v", err)
	}
}

func databaseConfig(cfg *config.Config) database.Config {
	dbCfg := database.Config{
		Type: database.DBType(cfg.DBType),
		Path: cfg.DBPath,
	}
	if dbCfg.Type == database.DBTypeMySQL {
		mysqlCfg := database.DefaultMySQLConfig()
		mysqlCfg.Host = cfg.MySQLHost
		mysqlCfg.Port = cfg.MySQLPort
		mysqlCfg.User = cfg.MySQLUser
		mysqlCfg.Password = cfg.MySQLPassword
		mysqlCfg.Database = cfg.MySQLDatabase
		mysqlCfg.MaxOpenConns = cfg.MySQLMaxOpenConns
		mysqlCfg.MaxIdleConns = cfg.MySQLMaxIdleConns
		mysqlCfg.ConnMaxLifetime = cfg.MySQLConnMaxLifetime
		mysqlCfg.ConnMaxIdleTime = cfg.MySQLConnMaxIdleTime
		dbCfg.MySQL = mysqlCfg
	}
	return dbCfg
}
