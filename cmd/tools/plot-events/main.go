package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/AgaveCraft/PlotSquared/internal/eventbus"
)

const (
	defaultNatsURL = "nats://127.0.0.1:4222"
	timeFormat     = "2006-01-02T15:04:05Z"
)

func main() {
	var (
		natsURL    = flag.String("nats", defaultNatsURL, "NATS server URL")
		stream     = flag.String("stream", "PLOTS", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, stats, types")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		worldName  = flag.String("world", "", "World filter")
		since      = flag.String("since", "1h", "Time duration since now (e.g., 1h, 30m)")
		limit      = flag.Int("limit", 100, "Maximum number of events")
		follow     = flag.Bool("follow", false, "Follow new events (like tail -f)")
		wait       = flag.Duration("wait", 3*time.Second, "Stop after this long without new events (ignored with -follow)")
	)
	flag.Parse()

	if *command == "types" {
		showTypes()
		return
	}

	startTime, err := parseSinceTime(*since, time.Now())
	if err != nil {
		log.Fatalf("❌ Invalid since time: %v", err)
	}
	opts := &TailOptions{
		EventTypes: parseStringList(*eventTypes),
		World:      *worldName,
		Since:      startTime,
		Limit:      *limit,
		Follow:     *follow,
		Idle:       *wait,
	}

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 0)
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *command {
	case "tail":
		if err := tailEvents(ctx, bus, opts, printEvent); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "stats":
		counts := make(map[string]int)
		var mu sync.Mutex
		if err := tailEvents(ctx, bus, opts, func(ev *eventbus.Envelope) {
			mu.Lock()
			counts[ev.EventType]++
			mu.Unlock()
		}); err != nil {
			log.Fatalf("❌ Stats failed: %v", err)
		}
		printStats(counts, opts.Since)

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, types")
		os.Exit(1)
	}
}

type TailOptions struct {
	EventTypes []string
	World      string
	Since      time.Time
	Limit      int
	Follow     bool
	Idle       time.Duration
}

// filter строит фильтр шины из параметров командной строки.
func (o *TailOptions) filter() eventbus.Filter {
	f := eventbus.Filter{Types: o.EventTypes, Since: o.Since}
	if o.World != "" {
		f.Worlds = []string{o.World}
	}
	return f
}

// tailEvents читает события из стрима до лимита, паузы без событий или сигнала.
func tailEvents(ctx context.Context, bus eventbus.EventBus, opts *TailOptions, out func(*eventbus.Envelope)) error {
	fmt.Printf("🎬 Tailing plot events (limit: %d, follow: %v)\n", opts.Limit, opts.Follow)

	events := make(chan *eventbus.Envelope, 64)
	sub, err := bus.Subscribe(ctx, opts.filter(), func(_ context.Context, ev *eventbus.Envelope) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	idle := time.NewTimer(opts.Idle)
	defer idle.Stop()

	eventCount := 0
	for {
		var idleC <-chan time.Time
		if !opts.Follow {
			idleC = idle.C
		}
		select {
		case <-ctx.Done():
			fmt.Printf("\n📊 Total events: %d\n", eventCount)
			return nil
		case <-idleC:
			fmt.Printf("\n📊 Total events: %d\n", eventCount)
			return nil
		case ev := <-events:
			out(ev)
			eventCount++
			if !opts.Follow && eventCount >= opts.Limit {
				fmt.Printf("\n📊 Total events: %d\n", eventCount)
				return nil
			}
			idle.Reset(opts.Idle)
		}
	}
}

// showTypes выводит типы событий сервиса плотов
func showTypes() {
	fmt.Println("📋 Available event types")
	for _, t := range []struct{ name, desc string }{
		{eventbus.TypePlotTrusted, "players added to a plot's trusted list"},
		{eventbus.TypePlotCleared, "plot cleared (accelerated or layered)"},
		{eventbus.TypePlotExported, "plot archive written to a sink"},
		{eventbus.TypeRegionEdited, "region manager operation finished"},
	} {
		fmt.Printf("  %-14s %s\n", t.name, t.desc)
	}
}

func printStats(counts map[string]int, since time.Time) {
	fmt.Println("📊 Event statistics")
	fmt.Printf("Since: %s\n", since.UTC().Format(timeFormat))
	types := make([]string, 0, len(counts))
	total := 0
	for t, n := range counts {
		types = append(types, t)
		total += n
	}
	slices.Sort(types)
	fmt.Printf("Total events: %d\n", total)
	fmt.Println("\nBy event type:")
	for _, t := range types {
		fmt.Printf("  %s: %d events\n", t, counts[t])
	}
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	fmt.Printf("[%s] %s [%s] %s\n",
		ev.Timestamp.Format("15:04:05"),
		ev.World(),
		ev.EventType,
		ev.ID)

	// Детали зависят от типа события
	switch ev.EventType {
	case eventbus.TypePlotTrusted:
		var e eventbus.PlotTrusted
		if ev.Decode(&e) == nil {
			fmt.Printf("  Plot: %s Actor: %s Added: %v\n", e.Plot, e.Actor, e.Added)
		}
	case eventbus.TypePlotCleared:
		var e eventbus.PlotCleared
		if ev.Decode(&e) == nil {
			fmt.Printf("  Plot: %s Accelerated: %v %s\n", e.Plot, e.Accelerated, e.Error)
		}
	case eventbus.TypePlotExported:
		var e eventbus.PlotExported
		if ev.Decode(&e) == nil {
			fmt.Printf("  Plot: %s Regions: %d Bytes: %d %s\n", e.Plot, e.Regions, e.Bytes, e.Error)
		}
	case eventbus.TypeRegionEdited:
		var e eventbus.RegionEdited
		if ev.Decode(&e) == nil {
			fmt.Printf("  Operation: %s Regions: %d %s\n", e.Operation, e.Regions, e.Error)
		}
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m"
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return time.Time{}, nil
	}

	duration, err := time.ParseDuration(since)
	if err != nil {
		// Пробуем парсить как абсолютное время
		return time.Parse(timeFormat, since)
	}

	return from.Add(-duration), nil
}
