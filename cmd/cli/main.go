// Package main provides an operator CLI for the Reevlo backend. It runs the
// database migrations, inspects and settles payout requests and replays the
// recent checkout sessions of a user.
//
// Usage:
//
//	cli [flags] migrate-up
//	cli [flags] migrate-down STEPS
//	cli [flags] payouts USER_EMAIL
//	cli [flags] payout-status PAYOUT_ID paid|rejected
//	cli [flags] sync USER_EMAIL
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/internal"
	"github.com/reevlo/reevlo-backend/stripe"
	"github.com/reevlo/reevlo-backend/wallet"
	"github.com/shopspring/decimal"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.vocdoni.io/dvote/log"
)

func main() {
	// Define command-line flags
	flag.StringP("mongo-url", "m", "", "MongoDB connection URL")
	flag.StringP("mongo-db", "d", "reevlo", "MongoDB database name")
	flag.String("stripe-api-secret", "", "Stripe API secret (sync only)")
	flag.String("stripe-webhook-secret", "", "Stripe webhook secret (sync only)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] migrate-up | migrate-down STEPS | payouts USER_EMAIL |"+
			" payout-status PAYOUT_ID STATUS | sync USER_EMAIL\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize Viper for environment variable support
	viper.SetEnvPrefix("REEVLO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		log.Fatalf("could not bind flags: %v", err)
	}
	viper.AutomaticEnv()
	log.Init("info", "stdout", nil)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	mongoURL := viper.GetString("mongo-url")
	if mongoURL == "" {
		log.Fatal("mongo-url is required")
	}
	// db.New applies the pending migrations on connect
	database, err := db.New(mongoURL, viper.GetString("mongo-db"))
	if err != nil {
		log.Fatalf("could not connect to MongoDB: %v", err)
	}

	err = run(database, args[0], args[1:])
	database.Close()
	if err != nil {
		log.Errorf("%s: %v", args[0], err)
		os.Exit(1)
	}
}

func run(database *db.MongoStorage, command string, args []string) error {
	switch command {
	case "migrate-up":
		return printMigrations(database)
	case "migrate-down":
		if len(args) != 1 {
			return fmt.Errorf("usage: migrate-down STEPS")
		}
		steps, err := strconv.Atoi(args[0])
		if err != nil || steps < 1 {
			return fmt.Errorf("invalid number of steps %q", args[0])
		}
		if err := database.RunMigrationsDown(steps); err != nil {
			return err
		}
		return printMigrations(database)
	case "payouts":
		if len(args) != 1 {
			return fmt.Errorf("usage: payouts USER_EMAIL")
		}
		return listPayouts(database, args[0])
	case "payout-status":
		if len(args) != 2 {
			return fmt.Errorf("usage: payout-status PAYOUT_ID STATUS")
		}
		return setPayoutStatus(database, args[0], db.PayoutStatus(args[1]))
	case "sync":
		if len(args) != 1 {
			return fmt.Errorf("usage: sync USER_EMAIL")
		}
		return syncUser(database, args[0])
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printMigrations(database *db.MongoStorage) error {
	applied, err := database.AppliedMigrations()
	if err != nil {
		return err
	}
	printSectionHeader("APPLIED MIGRATIONS")
	if len(applied) == 0 {
		fmt.Println("none")
		return nil
	}
	for _, m := range applied {
		fmt.Printf("%4d  %-32s  %s\n", m.Version, m.Name, m.AppliedAt.Format(time.RFC3339))
	}
	return nil
}

func listPayouts(database *db.MongoStorage, email string) error {
	user, err := database.UserByEmail(internal.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("could not get user %s: %w", email, err)
	}
	balance, err := database.Balance(user.ID)
	if err != nil {
		return err
	}
	payouts, err := database.Payouts(user.ID)
	if err != nil {
		return err
	}
	printSectionHeader("USER")
	fmt.Printf("ID: %s\nEmail: %s\nBalance: %d coins (%s USD)\n",
		user.ID, user.Email, balance.VirtualMoney, wallet.CoinsToUSD(balance.VirtualMoney).StringFixed(2))
	printSectionHeader(fmt.Sprintf("PAYOUTS (%d)", len(payouts)))
	for _, p := range payouts {
		fmt.Printf("%s  %-8s  %6d coins  %s USD  %s\n", p.ID, p.Status, p.Coins,
			decimal.New(p.USDCents, -2).StringFixed(2), p.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func setPayoutStatus(database *db.MongoStorage, payoutID string, status db.PayoutStatus) error {
	if status == db.PayoutPending || !status.Valid() {
		return fmt.Errorf("status must be %q or %q", db.PayoutPaid, db.PayoutRejected)
	}
	if err := database.SetPayoutStatus(payoutID, status); err != nil {
		return err
	}
	payout, err := database.Payout(payoutID)
	if err != nil {
		return err
	}
	printJSON("Payout", payout)
	return nil
}

func syncUser(database *db.MongoStorage, email string) error {
	config, err := stripe.NewConfig(viper.GetString("stripe-api-secret"), viper.GetString("stripe-webhook-secret"))
	if err != nil {
		return err
	}
	service, err := stripe.NewService(config, nil, database)
	if err != nil {
		return err
	}
	user, err := database.UserByEmail(internal.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("could not get user %s: %w", email, err)
	}
	applied, err := service.SyncUser(user)
	if err != nil {
		return err
	}
	balance, err := database.Balance(user.ID)
	if err != nil {
		return err
	}
	fmt.Printf("applied %d missed sessions, balance is now %d coins\n", applied, balance.VirtualMoney)
	return nil
}

func printSectionHeader(title string) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", 60))
}

func printJSON(label string, data any) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Warnf("could not marshal %s: %v", label, err)
		return
	}
	fmt.Printf("%s:\n%s\n", label, out)
}
