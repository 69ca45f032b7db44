package triggers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"aurora_back/cache"
)

const (
	providersCacheKey = "aurora:triggers:providers"
	providersCacheTTL = time.Hour
)

// providerCatalog is the static set of integrations agents can be wired
// to. Served from Redis when available so the catalog survives as a
// cheap read path for dashboards polling it.
var providerCatalog = []Provider{
	{ProviderID: "webhook", Name: "Generic Webhook", TriggerType: TypeWebhook, Description: "Fire the agent from any HTTP POST", RequiresOAuth: false},
	{ProviderID: "schedule", Name: "Schedule", TriggerType: TypeSchedule, Description: "Run the agent on a cron schedule", RequiresOAuth: false},
	{ProviderID: "slack", Name: "Slack", TriggerType: TypeEvent, Description: "React to Slack messages and mentions", RequiresOAuth: true},
	{ProviderID: "github", Name: "GitHub", TriggerType: TypeWebhook, Description: "React to repository events", RequiresOAuth: true},
	{ProviderID: "telegram", Name: "Telegram", TriggerType: TypeEvent, Description: "React to Telegram bot messages", RequiresOAuth: true},
	{ProviderID: "email", Name: "Email", TriggerType: TypeEvent, Description: "Run the agent on inbound email", RequiresOAuth: false},
}

// Providers returns the catalog, reading through the Redis cache when a
// client is configured. Cache failures fall back to the in-process copy.
func Providers(ctx context.Context) []Provider {
	client, err := cache.GetRedisClient()
	if err != nil || client == nil {
		return providerCatalog
	}

	raw, err := client.Get(ctx, providersCacheKey).Result()
	if err == nil {
		var cached []Provider
		if json.Unmarshal([]byte(raw), &cached) == nil && len(cached) > 0 {
			return cached
		}
	} else if err != redis.Nil {
		log.Printf("triggers: read provider cache: %v", err)
	}

	if encoded, err := json.Marshal(providerCatalog); err == nil {
		if err := client.Set(ctx, providersCacheKey, encoded, providersCacheTTL).Err(); err != nil {
			log.Printf("triggers: write provider cache: %v", err)
		}
	}
	return providerCatalog
}

func findProvider(providerID string) (Provider, bool) {
	for _, provider := range providerCatalog {
		if provider.ProviderID == providerID {
			return provider, true
		}
	}
	return Provider{}, false
}
