package apiv1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PricePilot/PricePilot/internal/pkg/cache"
	"github.com/PricePilot/PricePilot/internal/pkg/env"
	"github.com/PricePilot/PricePilot/internal/pkg/pricecache"
)

func configureTestCache(t *testing.T) {
	t.Helper()

	hosts := []string{env.GetEnv("CACHE_HOST", ""), "cache", "localhost", "127.0.0.1"}
	port := env.GetEnv("CACHE_PORT", "6379")
	password := env.GetEnv("CACHE_PASSWORD", "")

	var lastErr error
	for _, host := range hosts {
		if host == "" {
			continue
		}
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", host, port),
			Password: password,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		_, err := client.Ping(ctx).Result()
		cancel()
		_ = client.Close()
		if err == nil {
			if env.Env == nil {
				env.Env = map[string]string{}
			}
			env.Env["CACHE_HOST"] = host
			env.Env["CACHE_PORT"] = port
			env.Env["CACHE_PASSWORD"] = password
			_ = os.Setenv("CACHE_HOST", host)
			cache.SetupCache()
			return
		}
		lastErr = err
	}

	t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", lastErr)
}

func newPriceTestApp(prices *pricecache.Cache) *fiber.App {
	server := NewAPIServer(nil, nil, nil, nil, prices)
	app := fiber.New()
	app.Get("/plans/:id/price", server.GetPlanPrice)
	return app
}

func TestGetPlanPriceRejectsInvalidID(t *testing.T) {
	app := newPriceTestApp(nil)

	for _, id := range []string{"abc", "0", "-3"} {
		resp, err := app.Test(httptest.NewRequest("GET", "/plans/"+id+"/price", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	}
}

func TestGetPlanPriceServesCachedQuote(t *testing.T) {
	configureTestCache(t)

	prices := pricecache.New(nil)
	t.Cleanup(func() { _ = prices.InvalidatePlan(7) })

	// Seed the quote the way a previous request would have stored it; the
	// handler must answer from the cache without touching the database.
	err := prices.Set(7, map[string]string{}, pricecache.Entry{
		Price:      1150,
		Currency:   "INR",
		Multiplier: 1.1,
	})
	require.NoError(t, err)

	app := newPriceTestApp(prices)
	resp, err := app.Test(httptest.NewRequest("GET", "/plans/7/price", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var entry pricecache.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
	assert.Equal(t, uint(7), entry.PlanID)
	assert.Equal(t, 1150.0, entry.Price)
	assert.Equal(t, "INR", entry.Currency)
	assert.InDelta(t, 1.1, entry.Multiplier, 0.0001)
}
