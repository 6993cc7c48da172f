package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gorilla/sessions"

	"tuhogar-store/core"
)

func main() {
	cfg := core.Load()
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	// Order archive is optional; without a DSN checkout skips archiving.
	var orders core.OrderRepository
	if cfg.DatabaseURL != "" {
		db, err := core.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect database: %v", err)
		}
		defer db.Close()
		orders = core.NewPgOrderRepository(db)
	}

	if err := core.BootstrapUsersFile(cfg); err != nil {
		log.Fatalf("failed to bootstrap users file: %v", err)
	}
	directory, err := core.LoadCredentialDirectory(cfg.UsersFile)
	if err != nil {
		log.Fatalf("failed to load credential directory: %v", err)
	}

	kv := core.NewRedisKV(redisClient, "store:")
	metrics := core.NewMetricsService(redisClient)
	catalog := core.NewHTTPCatalogClient(cfg.CatalogURL)

	sessionStore := core.NewSessionStore(directory, kv, cfg.SessionTTL)
	sessionStore.RestoreOnStart(ctx)

	cart := core.NewCartStore(core.CartPersistHook(kv))
	core.RestoreCart(ctx, kv, cart)

	// Gorilla cookie store carries the opaque session token.
	cookies := sessions.NewCookieStore([]byte(cfg.SessionKey))

	router := core.NewRouter(cfg, cookies, sessionStore, cart, catalog, orders, metrics)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting storefront api on %s (catalog %s)", addr, cfg.CatalogURL)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
