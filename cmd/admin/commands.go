package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/qs3c/pixelchat_server/internal/database"
	"github.com/qs3c/pixelchat_server/internal/repository"
	"github.com/qs3c/pixelchat_server/internal/service"
)

var (
	promoCode      string
	promoMaxUses   int
	promoGrantDays int
	accountEmail   string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		if err := database.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migration complete")
		return nil
	},
}

var promoCmd = &cobra.Command{
	Use:   "promo",
	Short: "Promo code management",
}

var promoCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a promo code granting the advanced plan",
	Example: `  # 100 redemptions, 30 days of advanced each
  admin promo create --code LAUNCH2026 --max-uses 100 --days 30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}

		promo, err := service.NewPromoService(repository.NewPromoRepository(db)).
			Create(cmd.Context(), promoCode, promoMaxUses, promoGrantDays)
		if err != nil {
			if errors.Is(err, service.ErrInvalidCode) {
				return fmt.Errorf("invalid promo definition: code must be non-empty, max-uses positive and days >= 0")
			}
			return fmt.Errorf("create promo code: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created promo code %s (max uses %d, %d days)\n",
			promo.Code, promo.MaxUses, promo.GrantDays)
		return nil
	},
}

var promoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List promo codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}

		promoService := service.NewPromoService(repository.NewPromoRepository(db))
		promos, err := promoService.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list promo codes: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tUSES\tREDEEMED\tDAYS\tACTIVE\tCREATED")
		for _, p := range promos {
			redeemed, err := promoService.RedemptionCount(cmd.Context(), p.ID)
			if err != nil {
				return fmt.Errorf("count redemptions of %s: %w", p.Code, err)
			}
			fmt.Fprintf(w, "%s\t%d/%d\t%d\t%d\t%t\t%s\n",
				p.Code, p.CurrentUses, p.MaxUses, redeemed, p.GrantDays, p.IsActive, p.CreatedAt.UTC().Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Account inspection",
}

var accountShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show an account's plan and billing state",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}

		user, err := repository.NewUserRepository(db).GetByEmail(cmd.Context(), accountEmail)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no account with email %s", accountEmail)
			}
			return err
		}

		now := time.Now().UTC()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ID:            %d\n", user.ID)
		fmt.Fprintf(out, "Username:      %s\n", user.Username)
		fmt.Fprintf(out, "Plan:          %s (effective %s)\n", user.Plan, user.EffectivePlan(now))
		fmt.Fprintf(out, "Plan expiry:   %s\n", formatTime(user.PlanExpiry))
		fmt.Fprintf(out, "Customer:      %s\n", deref(user.BillingCustomerID))
		fmt.Fprintf(out, "Subscription:  %s\n", deref(user.BillingSubscriptionID))
		fmt.Fprintf(out, "Last event at: %s\n", formatTime(user.BillingEventAt))
		fmt.Fprintf(out, "Used today:    %d (last message %s)\n", user.MessagesUsedToday, formatTime(user.LastMessageDate))
		return nil
	},
}

func init() {
	promoCreateCmd.Flags().StringVar(&promoCode, "code", "", "promo code (case-insensitive)")
	promoCreateCmd.Flags().IntVar(&promoMaxUses, "max-uses", 1, "number of redemptions allowed")
	promoCreateCmd.Flags().IntVar(&promoGrantDays, "days", 30, "days of advanced plan granted per redemption")
	_ = promoCreateCmd.MarkFlagRequired("code")
	promoCmd.AddCommand(promoCreateCmd, promoListCmd)

	accountShowCmd.Flags().StringVar(&accountEmail, "email", "", "account email")
	_ = accountShowCmd.MarkFlagRequired("email")
	accountCmd.AddCommand(accountShowCmd)
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
