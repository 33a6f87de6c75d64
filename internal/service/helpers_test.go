package service

import (
	"time"

	"github.com/qs3c/pixelchat_server/config"
)

var testNow = time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:           "test-secret",
			ExpireHours:      24,
			GuestExpireHours: 24,
		},
		Stripe: config.StripeConfig{
			PriceMonthly:         "price_month",
			PriceYearly:          "price_year",
			YearlyThresholdCents: 19990,
			FrontendURL:          "http://localhost:5173",
			FetchTimeoutSeconds:  1,
		},
		Quota: config.QuotaConfig{
			GuestDailyLimit:     10,
			EssentialDailyLimit: 50,
		},
		Plans: map[string]config.PlanConfig{
			config.PlanEssential: {DisplayName: "Essential", Model: "llama-3.1-8b-instant", HistoryDays: 7},
			config.PlanAdvanced:  {DisplayName: "Advanced", Model: "llama-3.3-70b-versatile"},
		},
		LLM: config.LLMConfig{GuestModel: "llama-3.1-8b-instant"},
	}
}
