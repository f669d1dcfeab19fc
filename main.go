package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/justpiple/whatsapp-messaging-api/cache"
	"github.com/justpiple/whatsapp-messaging-api/controller"
	"github.com/justpiple/whatsapp-messaging-api/dao"
	_ "github.com/justpiple/whatsapp-messaging-api/docs"
	"github.com/justpiple/whatsapp-messaging-api/log"
	"github.com/justpiple/whatsapp-messaging-api/queue"
	"github.com/justpiple/whatsapp-messaging-api/router"
	"github.com/justpiple/whatsapp-messaging-api/service"
	"github.com/justpiple/whatsapp-messaging-api/session"
	"github.com/justpiple/whatsapp-messaging-api/util"
	"github.com/justpiple/whatsapp-messaging-api/wa"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
)

// @title WhatsApp messaging HTTP API
// @description Multi account outbound message gateway

func init() {
	err := godotenv.Load()
	if err != nil {
		log.Error.Println(err)
	}
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	//create db client
	dbClient, err := dao.GetClient(util.GetEnv("DB_PATH", "gateway.db"))
	if err != nil {
		log.Fatal(err)
	}

	accountDao := dao.NewAccountDao(dbClient)
	sessionDao := dao.NewSessionDao(dbClient)
	affinityDao := dao.NewAffinityDao(dbClient)
	jobDao := dao.NewJobDao(dbClient)

	//session reads go through redis when configured
	var sessionCache cache.Cache = cache.Noop{}
	if addr := util.GetEnv("REDIS_ADDR", ""); !util.IsBlank(addr) {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		sessionCache = cache.NewRedisCache(rdb, time.Hour)
	}

	sessionStore := session.NewStore(sessionDao, sessionCache, logger)

	//create bridge transport
	transport := wa.NewBridgeTransport(
		util.GetEnv("BRIDGE_URL", "ws://localhost:3000/ws"),
		util.GetEnvAsInt("SEND_PER_SEC", 10),
		sessionStore,
		logger,
	)

	manager := wa.NewManager(transport, accountDao, affinityDao, sessionStore,
		util.GetEnvAsInt("RECONNECT_DELAY_SEC", 5), logger)

	messageRouter := router.New(util.GetEnv("COUNTRY_CODE", "62"),
		accountDao, affinityDao, jobDao, manager, logger)

	dispatcher := queue.NewDispatcher(jobDao, messageRouter, manager, queue.Config{
		Workers:    util.GetEnvAsInt("WORKERS", 4),
		MaxRetries: util.GetEnvAsInt("MAX_RETRIES", 3),
		RetryDelay: time.Duration(util.GetEnvAsInt("RETRY_DELAY_SEC", 10)) * time.Second,
		Backoff:    util.GetEnv("RETRY_BACKOFF", queue.BackoffFixed),
	}, logger)

	//reconnect accounts that were active before the restart
	manager.BootstrapAll(context.Background())

	dispatcher.Start(context.Background())

	gatewayService := service.NewService(
		dispatcher,
		manager,
		messageRouter,
		accountDao,
		jobDao,
		util.GetEnvAsInt("JOB_STORE_DAYS", 7),
	)

	//attach http handlers
	e := echo.New()
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	e.HideBanner = true
	e.Use(middleware.BodyLimit("10M"))

	bindRoutes(e, gatewayService)

	//start http server
	log.Fatal(e.Start(":" + util.GetEnv("HTTP_PORT", "8080")))
}

func bindRoutes(e *echo.Echo, service service.Service) {

	e.POST("/messages", controller.GetSendMessageFunc(service))

	e.GET("/messages/:id", controller.GetCheckMessageFunc(service))

	e.DELETE("/messages/:id", controller.GetCancelMessageFunc(service))

	e.POST("/accounts", controller.GetRegisterAccountFunc(service))

	e.GET("/accounts", controller.GetListAccountsFunc(service))

	e.GET("/accounts/:id", controller.GetCheckAccountFunc(service))

	e.POST("/accounts/:id/restart", controller.GetRestartAccountFunc(service))

	e.DELETE("/accounts/:id", controller.GetRemoveAccountFunc(service))
}
