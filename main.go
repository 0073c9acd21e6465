package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SCProject/global"
	"SCProject/logger"
	mid "SCProject/middleware"
	chatstore "SCProject/module/chat/service"
	"SCProject/service/auth"
	"SCProject/service/chat"
	"SCProject/service/chat/handlers"
	"SCProject/service/mgo"
	"SCProject/service/natsx"
	"SCProject/service/notify"
	"SCProject/service/storage"
	redisx "SCProject/service/storage/redis"
	"SCProject/service/upload"
	"SCProject/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
)

func main() {
	cfg, err := global.Load(os.Getenv("SC_CONFIG"))
	if err != nil {
		logger.Errorf("config load failed: %v", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		logger.Errorf("SC_JWT_SECRET is required")
		os.Exit(1)
	}
	ids.SetNodeID(cfg.NodeID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- backends ----
	db, closeMongo, err := mgo.Connect(ctx, mgo.Config{URI: cfg.MongoURI, Database: cfg.MongoDB})
	if err != nil {
		logger.Errorf("mongo: %v", err)
		os.Exit(1)
	}
	defer closeMongo()

	rdb, err := redisx.New(redisx.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Errorf("redis: %v", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// push transport is optional; without NATS the dispatcher just logs
	var nc *nats.Conn
	if cfg.NatsURL != "" {
		nc, err = natsx.Connect(natsx.Config{URL: cfg.NatsURL, Name: "sc-gateway"})
		if err != nil {
			logger.Warnf("nats unavailable, push events disabled: %v", err)
		} else {
			defer nc.Close()
		}
	}

	// ---- realtime core ----
	resolver := auth.NewJWTResolver([]byte(cfg.JWTSecret))
	messages := chatstore.NewMongoMessageStore(db)
	uploads := chatstore.NewMongoUploadStore(db)
	friends := chatstore.NewMongoFriendRequestCounter(db)

	var pub notify.Publisher
	if nc != nil {
		pub = nc
	}
	dispatcher := notify.NewDispatcher(pub, cfg.PushWorkers, cfg.PushQueue)
	defer dispatcher.Close()

	srv := chat.NewServer(chat.Config{
		Resolver: resolver,
		Messages: messages,
		Friends:  friends,
		Presence: storage.NewRedisPresence(rdb),
		Push:     dispatcher,
	})
	defer srv.Shutdown()

	files, err := upload.NewStorage(cfg.UploadDir, cfg.MediaBase)
	if err != nil {
		logger.Errorf("upload storage: %v", err)
		os.Exit(1)
	}
	uploadMgr, err := upload.NewManager(uploads, files, upload.Config{
		TmpDir:      cfg.UploadTmpDir,
		ChunkSize:   cfg.ChunkSize,
		MaxFileSize: cfg.MaxFileSize,
		SessionTTL:  cfg.UploadTTL,
	})
	if err != nil {
		logger.Errorf("upload manager: %v", err)
		os.Exit(1)
	}
	defer uploadMgr.Stop()

	msgHandlers := handlers.NewMessages(messages, srv, files)
	uploadHandlers := upload.NewHandler(uploadMgr, resolver)

	// ---- routes ----
	mid.Init(resolver)
	r := gin.New()
	r.Use(gin.Recovery(), mid.Origin())

	r.GET("/ws/chat/:token", srv.HandleChatWS)
	r.GET("/ws/notifications/:token", srv.HandleNotifyWS)

	mid.GET(r, "/api/messages/:peer", msgHandlers.History, mid.RouteOpt{IsAuth: true})
	mid.DELETE(r, "/api/messages/:id", msgHandlers.Delete, mid.RouteOpt{IsAuth: true})
	mid.POST(r, "/api/messages/delete", msgHandlers.BulkDelete, mid.RouteOpt{IsAuth: true})
	mid.POST(r, "/api/messages/read/:peer", msgHandlers.MarkRead, mid.RouteOpt{IsAuth: true})

	mid.POST(r, "/api/upload/init", uploadHandlers.Init, mid.RouteOpt{IsAuth: true})
	// chunk auth is form/query token, handled inside
	mid.POST(r, "/api/upload/chunk/:upload_id", uploadHandlers.Chunk, mid.RouteOpt{})
	mid.GET(r, "/api/upload/status/:upload_id", uploadHandlers.Status, mid.RouteOpt{IsAuth: true})

	r.Static(cfg.MediaBase, cfg.UploadDir)

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		logger.Infof("[http] listening on %s", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
