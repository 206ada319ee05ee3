package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"

	"redisdeck/internal/client"
	"redisdeck/internal/config"
	"redisdeck/internal/logger"
	"redisdeck/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "redisdeck: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	connName := flag.String("connection", "", "named connection to use (default: first in config)")
	pattern := flag.String("pattern", "*", "key pattern to scan")
	sampleFor := flag.Duration("sample", 0, "sample server stats for this long (0 disables)")
	flag.Parse()

	// .env is optional; environment already set wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	if len(cfg.Connections) == 0 {
		return fmt.Errorf("no connections defined in %s", *configPath)
	}

	conn := cfg.Connections[0]
	if *connName != "" {
		conn, err = cfg.ConnectionByName(*connName)
		if err != nil {
			return err
		}
	}

	ctx := context.Background()
	pool := transport.NewPool()
	defer pool.Close()

	deck := client.NewDeck(pool, client.OptionsFromConfig(cfg))
	id, err := deck.Open(ctx, transport.Descriptor{Name: conn.Name, URL: conn.URL, DB: conn.DB})
	if err != nil {
		return err
	}
	defer deck.Close(id)

	if err := printOverview(ctx, deck, id); err != nil {
		return err
	}
	if err := printKeys(ctx, deck, id, *pattern); err != nil {
		return err
	}
	if *sampleFor > 0 {
		if err := sampleStats(ctx, deck, id, *sampleFor); err != nil {
			return err
		}
	}
	return printSlowLog(ctx, deck, id)
}

func printOverview(ctx context.Context, deck *client.Deck, id string) error {
	info, err := deck.ServerInfo(ctx, id)
	if err != nil {
		return err
	}
	overview := map[string]string{}
	for _, field := range []string{"redis_version", "uptime_in_seconds", "connected_clients", "used_memory_human"} {
		if v, ok := info.Field(field); ok {
			overview[field] = v
		}
	}
	return printJSON("server", overview)
}

func printKeys(ctx context.Context, deck *client.Deck, id, pattern string) error {
	scanner := deck.Scanner(id, pattern)
	for scanner.HasMore() {
		if _, err := scanner.Next(ctx); err != nil {
			return err
		}
	}
	// Give the background type classification a moment before printing.
	time.Sleep(200 * time.Millisecond)
	return printJSON("keys", scanner.Records())
}

func sampleStats(ctx context.Context, deck *client.Deck, id string, duration time.Duration) error {
	sampler := deck.Sampler(id)
	sampler.Start(ctx)
	time.Sleep(duration)
	sampler.Stop()

	rates := map[string]float64{
		"ops_per_sec": sampler.MetricRate("total_commands_processed"),
	}
	for _, name := range sampler.CommandNames() {
		rates["cmd_"+name] = sampler.CommandRate(name)
	}
	return printJSON("rates", rates)
}

func printSlowLog(ctx context.Context, deck *client.Deck, id string) error {
	entries, err := deck.SlowLog(ctx, id, 10)
	if err != nil {
		return err
	}
	return printJSON("slowlog", entries)
}

func printJSON(label string, v any) error {
	out, err := sonic.ConfigDefault.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling %s: %w", label, err)
	}
	fmt.Printf("=== %s ===\n%s\n", label, out)
	return nil
}
