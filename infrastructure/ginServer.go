package infrastructure

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	apperrors "veridoc.io/application/appErrors"
	"veridoc.io/infrastructure/logger"
	messagequeue "veridoc.io/infrastructure/message_queue"
	ratelimit "veridoc.io/infrastructure/ratelimit"
	webRoutev1 "veridoc.io/infrastructure/routes/ginRouter/web/v1"
	server_response "veridoc.io/infrastructure/serverResponse"
	startup "veridoc.io/infrastructure/startUp"
)

// StartServer boots every service and serves the verification API until
// the process is stopped.
func StartServer() {
	startup.StartServices()
	defer startup.CleanUpServices()

	go messagequeue.StartQueue()

	server := gin.Default()
	origins := []string{}
	if os.Getenv("GIN_MODE") == "debug" {
		origins = append(origins, "http://localhost:5174")
	} else if os.Getenv("GIN_MODE") == "release" {
		origins = append(origins, "https://app.veridoc.io", "https://www.veridoc.io")
	}
	corsConfig := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "User-Agent"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	server.Use(cors.New(corsConfig))
	server.Use(ratelimit.TokenBucketPerIP())
	server.MaxMultipartMemory = 15 << 20

	routerV1 := server.Group("/api").Group("/v1")
	{
		webRoutev1.VerificationRouter(routerV1)
		webRoutev1.BiometricRouter(routerV1)
	}

	server.GET("/ping", func(ctx *gin.Context) {
		server_response.Responder.Respond(ctx, http.StatusOK, "pong!", nil, nil, nil)
	})

	server.NoRoute(func(ctx *gin.Context) {
		apperrors.NotFoundError(ctx, fmt.Sprintf("%s %s does not exist", ctx.Request.Method, ctx.Request.URL))
	})

	gin_mode := os.Getenv("GIN_MODE")
	port := os.Getenv("PORT")
	if gin_mode == "debug" || gin_mode == "release" {
		logger.Info(fmt.Sprintf("Server starting on PORT %s", port))
		server.Run(fmt.Sprintf(":%s", port))
	} else {
		panic(fmt.Sprintf("invalid gin mode used - %s", gin_mode))
	}
}
