package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"

	"github.com/graybeam/relaypoint/internal/boot"
	"github.com/graybeam/relaypoint/internal/delivery"
	"github.com/graybeam/relaypoint/internal/handlers"
	"github.com/graybeam/relaypoint/internal/service/chat"
	"github.com/graybeam/relaypoint/internal/service/user"
	"github.com/graybeam/relaypoint/internal/store"
)

type UserService interface {
	handlers.UserService
}

type ChatService interface {
	handlers.ChatService
}

type config struct {
	boot.Config
	userService UserService
	chatService ChatService
	blobStore   *store.BlobStore
	sweep       *delivery.Sweep
}

func newConfig(bootConfig *boot.Config) *config {
	if err := os.MkdirAll(bootConfig.DataDirectory(), 0o755); err != nil {
		log.Fatalf("creating data directory: %+v", err)
	}

	messageLog, err := store.NewMessageLog(bootConfig)
	if err != nil {
		log.Fatalf("creating message log: %+v", err)
	}
	userStore, err := store.NewUserStore(bootConfig)
	if err != nil {
		log.Fatalf("creating user store: %+v", err)
	}
	blobStore, err := store.NewBlobStore(bootConfig.StorageDirectory())
	if err != nil {
		log.Fatalf("creating blob store: %+v", err)
	}

	mailboxes := delivery.NewMailboxStore()
	presence := delivery.NewPresenceRegistry()
	waiters := delivery.NewWaiterRegistry()

	userService := user.New(userStore, presence, bootConfig.Auth.TokenSecret, bootConfig.Auth.TokenTTL)
	chatService := chat.New(userService, messageLog, blobStore, mailboxes, presence, waiters)
	sweep := delivery.NewSweep(bootConfig.Delivery.SweepInterval, waiters, mailboxes)

	return &config{*bootConfig, userService, chatService, blobStore, sweep}
}

func main() {
	bootConfig, err := boot.Load()
	if err != nil {
		log.Fatalf("boot: %+v", err)
	}

	config := newConfig(bootConfig)

	server := echo.New()
	server.Use(middleware.BodyLimit("100M"))
	server.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return cuid2.Generate()
		},
	}))
	server.Use(echoprometheus.NewMiddleware("relaypoint"))
	server.Use(middleware.Recover())

	server.Logger.SetLevel(log.INFO)

	headers := []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, handlers.AccessTokenHeader}
	server.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     strings.Split(config.Server.Origins, ","),
		AllowHeaders:     headers,
		AllowCredentials: true,
	}))

	server.POST("/api/users", handlers.CreateUser(config.userService))
	server.POST("/api/login", handlers.Login(config.userService))
	server.GET("/api/friends", handlers.GetFriends(config.userService))
	server.POST("/api/friends", handlers.AddFriend(config.userService))
	server.POST("/api/send-message", handlers.SendMessage(config.userService, config.chatService))
	server.GET("/api/get-new-messages", handlers.GetNewMessages(config.userService, config.chatService, config.Delivery.PollTimeout))
	server.GET("/api/files/:name", handlers.DownloadFile(config.userService, config.blobStore))

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go config.sweep.Run(sweepCtx)

	go func() {
		metrics := echo.New()
		metrics.GET("/metrics", echoprometheus.NewHandler())
		if err := metrics.Start(":" + config.Server.MetricsPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	go func() {
		if err := server.Start(":" + config.Server.Port); err != nil && err != http.ErrServerClosed {
			server.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		server.Logger.Fatal(err)
	}
}
