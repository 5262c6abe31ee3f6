package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Investmeows/extendedbot/internal/basket"
	"github.com/Investmeows/extendedbot/internal/config"
	"github.com/Investmeows/extendedbot/internal/exchange/rest"
	"github.com/Investmeows/extendedbot/internal/logging"
	"github.com/Investmeows/extendedbot/internal/orders"
)

// verify checks venue connectivity and prints the orders the bot would place
// for the configured basket, without submitting anything.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	showPositions := flag.Bool("positions", false, "also print live positions")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	apiKey := strings.TrimSpace(os.Getenv("EXT_API_KEY"))
	if apiKey == "" {
		fatal(errors.New("EXT_API_KEY is required"))
	}
	client := rest.New(cfg.REST.BaseURL, apiKey, "extendedbot-verify/1.0", cfg.REST.Timeout, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	targets := make(basket.Basket, 0, len(cfg.Basket.Long)+len(cfg.Basket.Short))
	for _, leg := range cfg.Basket.Long {
		targets = append(targets, basket.PairTarget{Pair: leg.Pair, TargetNotional: leg.TargetNotional, Direction: basket.Long})
	}
	for _, leg := range cfg.Basket.Short {
		targets = append(targets, basket.PairTarget{Pair: leg.Pair, TargetNotional: leg.TargetNotional, Direction: basket.Short})
	}

	fmt.Printf("venue: %s\n", cfg.REST.BaseURL)
	for _, target := range targets {
		book, err := client.Orderbook(ctx, target.Pair)
		if err != nil {
			fatal(err)
		}
		prec, err := client.MarketPrecision(ctx, target.Pair)
		if err != nil {
			fatal(err)
		}
		order, err := orders.PlanOpen(target, book, prec, cfg.Orders.PriceBuffer)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%-12s %-5s bid=%.2f ask=%.2f -> %s %s @ %s (target $%.2f)\n",
			target.Pair, target.Direction, book.BestBid, book.BestAsk,
			order.Side, order.Qty, order.Price, target.TargetNotional)
	}

	if *showPositions {
		positions, err := client.Positions(ctx)
		if err != nil {
			fatal(err)
		}
		if len(positions) == 0 {
			fmt.Println("no open positions")
		}
		for _, pos := range positions {
			fmt.Printf("%-12s %-5s size=%.6f mark=%.2f notional=$%.2f\n",
				pos.Market, pos.Side, pos.Size, pos.MarkPrice, pos.Notional())
		}
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "verify: %v\n", err)
	os.Exit(1)
}
