package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	v1 "go-collab/cmd/coordinator/router/v1"
	cacheAdapter "go-collab/internal/infrastructure/cache/adapter"
	"go-collab/internal/infrastructure/database"
	queueAdapter "go-collab/internal/infrastructure/queue/adapter"
	"go-collab/internal/infrastructure/realtime"
	"go-collab/internal/pkg/collab/application/task"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil {
		log.WithError(err).Warn(".env file not found or could not be loaded")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	pool, err := database.NewPoolFromEnv(ctx)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer pool.Close()

	cache, err := cacheAdapter.NewRedisAdapter()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer cache.Close()

	queueClient, err := queueAdapter.NewAsynqClientFromEnv()
	if err != nil {
		log.WithError(err).Fatal("failed to create queue client")
	}
	defer queueClient.Close()

	queueServer, err := queueAdapter.NewAsynqServer(log)
	if err != nil {
		log.WithError(err).Fatal("failed to create queue server")
	}
	task.RegisterExpireInvitationTask(queueServer, pool, log)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	go func() {
		if err := queueServer.Run(workerCtx); err != nil {
			log.WithError(err).Error("queue server stopped")
		}
	}()

	hub := realtime.NewHub()
	defer hub.Close()

	r := gin.Default()
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	v1.RegisterRoutes(r, pool, cache, queueClient, hub, log)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		log.WithField("addr", addr).Info("coordinator listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	// Block until a shutdown signal, then drain.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	stopWorkers()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown failed")
	}
}
