package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	global "PSession/global"
	mid "PSession/middleware"
	midsec "PSession/middleware/security"
	"PSession/module/session/store"
	mgoSrv "PSession/service/mgo"
	sess "PSession/service/session"
	"PSession/service/storage"
	"PSession/tools/errs"

	"github.com/gin-gonic/gin"
)

func main() {

	global.ConfigIds()
	global.ConfigRedis()
	global.ConfigMgo()
	global.ConfigMiddleware()
	midsec.SetSecret(global.GetJwtSecret())

	cfg := global.SessionGatewayConfig

	ctx := context.Background()
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := mgoSrv.WaitReady(waitCtx, mgoSrv.Manager()); err != nil {
		cancel()
		log.Fatalf("mongo not ready: %v", err)
	}
	cancel()

	if err := store.EnsureIndexes(ctx, mgoSrv.GetDB()); err != nil {
		log.Fatalf("ensure indexes failed: %v", err)
	}
	db := store.NewMongoDB(mgoSrv.GetDB())

	// 1) Transport plumbing
	fanout := sess.NewFanout(8, 1024)
	registry := sess.NewRegistry(fanout)

	// 2) Cross-node notifier (optional, gateway keeps running without it)
	var opts []sess.CoreOption
	if notifier, err := sess.NewNatsNotifier(cfg.NatsURL, cfg.NatsSubject); err != nil {
		log.Printf("nats unavailable, cross-node notify disabled: %v", err)
	} else {
		defer notifier.Close()
		opts = append(opts, sess.WithNotifier(notifier))
	}

	presence := storage.NewPresenceStore(storage.PresenceConfig{
		NodeID:      cfg.GatewayNodeId,
		TTL:         2 * time.Minute,
		ChannelName: "session:offline",
	})
	opts = append(opts, sess.WithPresence(presence))

	// 3) Session core
	core := sess.NewCore(db, registry, global.GetJwtSecret(), opts...)
	core.RegisterCoreEvents()

	if err := core.BootNormalize(ctx); err != nil {
		log.Fatalf("boot normalize failed: %v", err)
	}

	sweeper := sess.NewSweeper(core, registry, time.Duration(cfg.SweepSeconds)*time.Second)
	sweeper.Start()
	defer sweeper.Stop()

	server := sess.NewServer(core, registry)

	// 4) HTTP + WebSocket
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mid.Origin())

	r.GET("/ws", server.HandleWS)

	mid.GET(r, "/rooms", func(c *gin.Context) {
		rooms, err := core.Rooms().List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, global.Fail(500, err.Error()))
			return
		}
		c.JSON(http.StatusOK, global.Success(rooms))
	}, mid.RouteOpt{IsAuth: false})

	mid.GET(r, "/session/:conn", func(c *gin.Context) {
		rec, err := core.Sessions().Lookup(c.Request.Context(), c.Param("conn"))
		if err != nil {
			if errs.IsNotFound(err) {
				c.JSON(http.StatusNotFound, global.Fail(404, "no such connection"))
				return
			}
			c.JSON(http.StatusInternalServerError, global.Fail(500, err.Error()))
			return
		}
		c.JSON(http.StatusOK, global.Success(rec))
	}, mid.RouteOpt{IsAuth: true})

	log.Printf("[HTTP] Listening on :%d", cfg.Port)
	if err := r.Run(":" + strconv.Itoa(cfg.Port)); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}
