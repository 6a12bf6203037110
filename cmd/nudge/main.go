// The nudge service runs the preference-matching pass on a cron schedule and
// messages users about fresh hackathons they would care about.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"hackscout/config"
	"hackscout/llm"
	"hackscout/notify"
	"hackscout/nudge"
	"hackscout/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SCOUT_CONFIG"))
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	llmClient := llm.NewClient(llm.Config{
		Provider:   cfg.LLM.Provider,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		EmbedModel: cfg.LLM.EmbedModel,
		APIKey:     cfg.LLM.APIKey,
	})

	var gateway notify.Gateway = notify.LogGateway{}
	if cfg.TelegramToken != "" {
		gateway = notify.NewTelegramGateway(cfg.TelegramToken)
	}

	agent := nudge.NewAgent(
		store.NewPreferences(rdb),
		store.NewHackathons(rdb),
		store.NewNotifications(rdb),
		llmClient,
		llmClient,
		gateway,
		nudge.Config{},
	)

	runPass := func() {
		if _, err := agent.Run(context.Background()); err != nil {
			log.Printf("❌ [NUDGE] Pass failed: %v", err)
		}
	}

	if os.Getenv("RUN_NOW") == "1" {
		runPass()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.NudgeSchedule, runPass); err != nil {
		log.Fatalf("❌ Invalid nudge schedule %q: %v", cfg.NudgeSchedule, err)
	}
	c.Start()
	log.Printf("⏰ Nudge agent scheduled: %s", cfg.NudgeSchedule)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	<-c.Stop().Done()
}
