package main

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap"

	"private-messenger/internal/relay"
	"private-messenger/internal/server"
	"private-messenger/internal/storage"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("zap.NewDevelopment: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Messenger relay is starting")

	srvCfg := server.EnvConfig{}
	if err := env.Parse(&srvCfg); err != nil {
		sugar.Fatalf("Cannot parse server env config: %v", err)
	}

	storeCfg := storage.Config{}
	if err := env.Parse(&storeCfg); err != nil {
		sugar.Fatalf("Cannot parse storage env config: %v", err)
	}

	store, err := storage.New(sugar, storeCfg, storage.ConnectionTimeout(30*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	registry := relay.NewRegistry()
	router := relay.NewRouter(sugar, registry, store, store)
	hub := relay.NewHub(sugar, registry, router)

	srv, err := server.NewServer(logger, store, hub,
		server.WithEnvConfig(srvCfg),
		server.ReadTimeout(5*time.Second),
		server.RegisterAfterShutdown(store.Close),
	)
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}
