// Command watch follows a user's live activity from a terminal: it keeps
// the push channel open, folds events into the local read model, and
// prints task updates, stats and notices as they happen.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"scenarioflow/internal/cache"
	syncpkg "scenarioflow/internal/sync"
	"scenarioflow/pkg/client"
	"scenarioflow/pkg/models"
)

func main() {
	serverURL := flag.String("server", envOr("SCENARIOFLOW_URL", "http://localhost:8080"), "server base URL")
	token := flag.String("token", os.Getenv("SCENARIOFLOW_TOKEN"), "bearer credential")
	pageSize := flag.Int("page-size", 20, "task history page size")
	flag.Parse()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	if *token == "" {
		fmt.Fprintln(os.Stderr, "missing credential: set -token or SCENARIOFLOW_TOKEN")
		os.Exit(1)
	}

	api := client.New(*serverURL, *token)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshot := cache.NewSnapshot()
	merger := cache.NewMerger()

	if next, err := refetch(ctx, api, snapshot, *pageSize); err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch task history: %v\n", err)
		os.Exit(1)
	} else {
		snapshot = next
	}
	fmt.Printf("watching %d task entries\n", len(snapshot.Tasks))

	wsURL := toWebsocketURL(*serverURL) + "/ws"
	manager := syncpkg.NewManager(func(credential string) *syncpkg.Channel {
		return syncpkg.Dial(wsURL, credential, syncpkg.WithLogger(log))
	})
	manager.SetCredential(*token)
	defer manager.Close()
	channel := manager.Channel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	wasDown := false
	for {
		select {
		case <-quit:
			fmt.Println("bye")
			return

		case st := <-channel.States():
			fmt.Printf("connection: %s\n", st)
			switch st {
			case syncpkg.StateReconnecting:
				wasDown = true
			case syncpkg.StateOpen:
				// events sent while disconnected are gone; refetch
				// instead of pretending the stream was continuous
				if wasDown {
					wasDown = false
					if next, err := refetch(ctx, api, snapshot, *pageSize); err != nil {
						fmt.Fprintf(os.Stderr, "refetch failed: %v\n", err)
					} else {
						snapshot = next
						fmt.Printf("resynced %d task entries\n", len(snapshot.Tasks))
					}
				}
			case syncpkg.StateClosed:
				return
			}

		case event := <-channel.Events():
			var notices []cache.Notice
			snapshot, notices = merger.Apply(snapshot, event)
			printEvent(snapshot, event)
			for _, n := range notices {
				fmt.Printf("*** task %s finished: %s %s\n", n.EntryID, n.Status, n.Result)
			}
			if snapshot.NotificationsStale {
				if resp, err := api.Notifications(ctx); err == nil {
					fmt.Printf("notifications: %d unread\n", resp.UnreadCount)
					snapshot.NotificationsStale = false
				}
			}
		}
	}
}

func refetch(ctx context.Context, api *client.Client, snapshot cache.Snapshot, pageSize int) (cache.Snapshot, error) {
	page, err := api.TaskHistory(ctx, 1, pageSize)
	if err != nil {
		return snapshot, err
	}
	entries := make([]models.TaskHistoryEntry, len(page.Entries))
	for i, e := range page.Entries {
		entries[i] = models.TaskHistoryEntry{
			ID:         e.ID,
			TaskName:   e.TaskName,
			Status:     e.Status,
			Parameters: e.Parameters,
			Result:     e.Result,
			CreatedAt:  e.CreatedAt,
		}
	}
	return snapshot.MaterializeTasks(entries), nil
}

func printEvent(snapshot cache.Snapshot, event models.PushEvent) {
	switch event.Type {
	case models.EventLog:
		if p, err := event.Log(); err == nil {
			fmt.Printf("[%s] %s\n", p.Level, p.Message)
		}
	case models.EventStatsUpdate:
		fmt.Printf("stats: %v\n", snapshot.Counters)
	case models.EventTaskHistoryUpdate:
		if p, err := event.TaskHistoryUpdate(); err == nil {
			fmt.Printf("task %s -> %s\n", p.EntryID, p.Status)
		}
	}
}

func toWebsocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
