package main

import (
	"context"
	"log"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/authcore/backend/internal/config"
	"github.com/authcore/backend/internal/db"
	"github.com/authcore/backend/internal/handler"
	"github.com/authcore/backend/internal/service"
)

func main() {
	// .env 파일이 있으면 로드 (없어도 무시)
	_ = godotenv.Load()

	cfg := config.Load()
	ctx := context.Background()

	// PostgreSQL 커넥션 풀 초기화
	pool, err := db.NewPostgresPool(ctx)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	store := &db.Postgres{Pool: pool}
	if err := store.EnsureAuthSchema(ctx); err != nil {
		log.Fatalf("failed to ensure auth schema: %v", err)
	}

	authSvc, err := service.NewAuthService(store, store, cfg.Auth)
	if err != nil {
		log.Fatalf("failed to init auth service: %v", err)
	}
	authHandler := handler.NewAuthHandler(authSvc)

	router := gin.Default()
	if origins := strings.Split(cfg.Server.AllowedOrigins, ","); cfg.Server.AllowedOrigins != "" {
		router.Use(handler.CORSMiddleware(origins, true))
	}

	// 헬스 체크
	router.GET("/ping", handler.Ping)
	router.GET("/", handler.Root)

	// 인증 엔드포인트
	router.POST("/sign-up", authHandler.SignUp)
	router.POST("/sign-in", authHandler.SignIn)
	router.POST("/token", authHandler.Refresh)
	router.POST("/reset-password", authHandler.RequestReset)
	router.POST("/reset-password/:token", authHandler.ConfirmReset)

	// 액세스 토큰이 필요한 엔드포인트
	protected := router.Group("/")
	protected.Use(handler.AuthMiddleware(authSvc.Codec()))
	protected.DELETE("/delete-user", authHandler.DeleteUser)
	protected.GET("/protected", authHandler.Me)

	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
