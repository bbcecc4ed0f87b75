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

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"messageboard/auth"
	"messageboard/cache"
	"messageboard/common"
	"messageboard/config"
	"messageboard/home"
	"messageboard/posts"
	"messageboard/render"
	"messageboard/store"
	"messageboard/users"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newCache(ctx context.Context, cfg *config.Config) cache.Cache {
	if !cfg.CacheEnabled() {
		log.Println("redis_addr not set - page cache disabled")
		return cache.NopCache{}
	}
	client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Printf("redis unavailable at %s, page cache disabled: %v", cfg.RedisAddr, err)
		return cache.NopCache{}
	}
	log.Println("page cache on redis at:", cfg.RedisAddr)
	return cache.NewRedisCache(client, "messageboard", cfg.CacheTTL)
}

func newRouter(cfg *config.Config, s store.Store, c cache.Cache) (*gin.Engine, error) {
	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   false,
	})
	router.Use(sessions.Sessions(cfg.SessionName, sessionStore))

	if err := render.Load(router); err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	authModule := auth.NewAuthModule(s)
	router.Use(authModule.LoadUser)
	authModule.RegisterRoutes(router)

	homeModule := home.NewHomeModule(s, c)
	homeModule.RegisterRoutes(router)

	postsModule := posts.NewPostsModule(s, c)
	postsModule.RegisterRoutes(router)

	usersModule := users.NewUsersModule(s)
	usersModule.RegisterRoutes(router)

	router.NoRoute(common.NotFound)

	return router, nil
}

func serve(ctx context.Context) error {
	s, err := common.ConnectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer s.Close(context.Background())

	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	router, err := newRouter(cfg, s, newCache(ctx, cfg))
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           common.MethodOverride(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Starting server on port %s...", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-sigChan:
		log.Println("Shutting down gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	log.Println("Server stopped")
	return nil
}
