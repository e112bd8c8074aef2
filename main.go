package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"avro-exporter/api"
	"avro-exporter/avrofile"
	"avro-exporter/commands"
	"avro-exporter/config"
	"avro-exporter/db"
	"avro-exporter/pipeline"
)

func main() {
	// Initialize structured logging (JSON format for Cloud Run)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using system environment variables")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	defs, err := config.LoadDefinitions(cfg.PipelinesFile)
	if err != nil {
		slog.Error("Failed to load pipeline definitions", "file", cfg.PipelinesFile, "error", err)
		os.Exit(1)
	}
	defs.SetDefaultProject(cfg.GCPProjectID)
	registry, err := db.NewRegistry(defs.Databases)
	if err != nil {
		slog.Error("Failed to initialize databases", "error", err)
		os.Exit(1)
	}
	pipelines, err := commands.BuildPipelines(defs.Pipelines)
	if err != nil {
		slog.Error("Failed to build pipelines", "error", err)
		os.Exit(1)
	}
	writer, err := avrofile.NewWriter(cfg.AvroCodec)
	if err != nil {
		slog.Error("Failed to initialize Avro writer", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded pipelines", "pipelines", len(pipelines), "databases", registry.Aliases())

	runner := pipeline.NewRunner(pipeline.Env{
		Settings: pipeline.Settings{DataDir: cfg.DataDir, DefaultDBAlias: cfg.DefaultDBAlias},
		Tables:   registry,
		Encoder:  writer,
	})

	// Job mode: execute once and exit (for Cloud Run Jobs)
	if cfg.RunMode == config.RunModeJob {
		p, ok := pipelines[cfg.JobPipeline]
		if !ok {
			slog.Error("Unknown pipeline", "pipeline", cfg.JobPipeline)
			os.Exit(1)
		}
		res, err := runner.Run(context.Background(), p)
		if err != nil {
			slog.Error("Job execution failed", "run_id", res.RunID, "error", err)
			os.Exit(1)
		}
		slog.Info("Job execution completed", "run_id", res.RunID, "pipeline", res.Pipeline)
		return
	}

	// Release mode is better for production performance
	if cfg.GinMode == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New() // Use New() to skip default logger/recovery middleware for custom ones
	r.Use(gin.Recovery())

	if cfg.APIKey != "" {
		r.Use(func(c *gin.Context) {
			if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
				c.Next()
				return
			}
			if c.GetHeader("X-API-Key") != cfg.APIKey {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.Next()
		})
	}

	// Custom logger middleware for Gin that uses slog
	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		msg := "Request processed"
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", latency),
			slog.String("client_ip", c.ClientIP()),
		}
		if raw != "" {
			attrs = append(attrs, slog.String("query", raw))
		}

		// Cloud Scheduler specific headers
		if jobName := c.GetHeader("X-CloudScheduler-JobName"); jobName != "" {
			attrs = append(attrs, slog.String("scheduler_job", jobName))
		}

		if status >= 500 {
			slog.Error(msg, attrs...)
		} else {
			slog.Info(msg, attrs...)
		}
	})

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api.NewHandler(runner, pipelines).Register(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		slog.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exiting")
}
