// The scout service exposes hackathon discovery over HTTP: each request
// triggers one orchestration run over the configured or supplied sources.
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"hackscout/config"
	"hackscout/eventbus"
	"hackscout/fetch"
	"hackscout/llm"
	"hackscout/notify"
	"hackscout/sandbox"
	"hackscout/scout"
	"hackscout/store"
	"hackscout/toolcache"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SCOUT_CONFIG"))
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	cache := toolcache.New(rdb, cfg.CacheTTLHours)
	hackathons := store.NewHackathons(rdb)
	preferences := store.NewPreferences(rdb)

	llmClient := llm.NewClient(llm.Config{
		Provider:   cfg.LLM.Provider,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		EmbedModel: cfg.LLM.EmbedModel,
		APIKey:     cfg.LLM.APIKey,
	})

	fetcher := fetch.New(cfg.FetchTimeout())
	if cfg.Fetch.RenderJS {
		renderer, err := fetch.NewRenderer(0)
		if err != nil {
			log.Printf("⚠️ JS rendering unavailable, using static fetches: %v", err)
		} else {
			defer renderer.Close()
			fetcher = fetcher.WithRenderer(renderer)
			log.Printf("🌐 JS rendering enabled")
		}
	}

	deps := scout.Deps{
		Cache:      cache,
		Executor:   sandbox.NewDockerExecutor(cfg.Sandbox.Image),
		Discoverer: llmClient,
		Generator:  llmClient,
		Fetcher:    fetcher,
		Store:      hackathons,
	}

	if bus, err := eventbus.NewBus(eventbus.Config{URL: cfg.NATSURL, Subject: cfg.NATSSubject}); err != nil {
		log.Printf("⚠️ Event bus unavailable, discovery events disabled: %v", err)
	} else {
		defer bus.Close()
		deps.Bus = bus
	}

	if cfg.TelegramToken != "" {
		deps.Gateway = notify.NewTelegramGateway(cfg.TelegramToken)
	} else {
		deps.Gateway = notify.LogGateway{}
	}

	orch := scout.New(deps, scout.Config{
		FetchTimeout: cfg.FetchTimeout(),
		SandboxLimits: sandbox.Limits{
			Timeout:   cfg.SandboxTimeout(),
			MemoryMB:  cfg.Sandbox.MemoryMB,
			CPUs:      cfg.Sandbox.CPUs,
			PidsLimit: cfg.Sandbox.PidsLimit,
		},
		DefaultSources: cfg.Sources,
	})

	srv := newServer(orch, cache, hackathons, preferences, llmClient)
	log.Printf("🚀 Scout service listening on %s", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, srv.router()); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
}
