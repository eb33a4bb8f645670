package infrastructure

import (
	"context"

	"sikabot/internal/config"
	"sikabot/internal/fulfillment"
	"sikabot/internal/gateway"
	"sikabot/internal/repository"
	"sikabot/internal/service"
	"sikabot/internal/session"
	transportHTTP "sikabot/internal/transport/http"
	transportNATS "sikabot/internal/transport/nats"
	"sikabot/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	nc, err := connectNats(cfg.NatsAddr())
	if err != nil {
		db.Close()
		_ = rdb.Close()
		return nil, nil, err
	}

	cleanup := func() {
		nc.Close()
		_ = rdb.Close()
		db.Close()
	}

	// Storage and adapters
	walletRepo := repository.NewWalletRepo(db)
	orderRepo := repository.NewOrderRepo(db)
	userRepo := repository.NewUserRepo(db)
	sessions := session.NewRedisStore(rdb, cfg.SessionTTL)
	locks := repository.NewRefLock(rdb)
	bus := transportNATS.NewBus(nc)

	gw := gateway.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)
	fulfiller := fulfillment.NewClient(cfg.BundleAPIBaseURL, cfg.BundleAPIKey, cfg.SMMAPIBaseURL, cfg.SMMAPIKey)

	// Core services
	engine := service.NewEngine(sessions, walletRepo, orderRepo, gw, fulfiller, locks, bus)
	flows := service.NewFlowService(sessions, userRepo, walletRepo, orderRepo, gw, engine, cfg.CallbackURL)

	servers := []Server{
		transportHTTP.NewServer(cfg.ApiAddr(), flows, engine),
		worker.NewReceiptWorker(worker.LogNotifier{}, nc),
	}

	return NewApp(servers), cleanup, nil
}
