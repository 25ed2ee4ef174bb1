// Command client joins a whiteboard room from a terminal. It keeps a local
// replica of the room and sends edits typed on stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"whiteboard/internal/client"
	"whiteboard/internal/config"
	"whiteboard/pkg/logger"
)

func main() {
	var (
		serverURL = flag.String("server", "", "server base URL, discovered over mDNS when empty")
		roomID    = flag.String("room", "", "room id to join")
		token     = flag.String("token", "", "participant token from an earlier session")
		discover  = flag.Duration("discover-timeout", 3*time.Second, "how long to browse for a server")
	)
	flag.Parse()

	cfg := config.Load()
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	if *roomID == "" {
		logger.Fatal("-room is required")
	}
	if *serverURL == "" {
		found, err := client.Discover(*discover)
		if err != nil {
			logger.Fatal("No server given and discovery failed: %v", err)
		}
		*serverURL = found
		logger.Info("Discovered server at %s", found)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	c, err := client.Dial(ctx, *serverURL, *roomID,
		client.WithToken(*token),
		client.WithUndoDepth(cfg.Realtime.UndoDepth),
	)
	cancel()
	if err != nil {
		logger.Fatal("Failed to join room %s: %v", *roomID, err)
	}
	defer c.Close()

	fmt.Printf("joined room %s as %s\nreconnect with -token %s\ntype help for commands\n", c.Room(), c.Identity(), c.Token())

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "quit", "exit":
			return
		case "offline":
			c.Close()
			fmt.Println("offline, edits stay local until reconnect")
			continue
		case "reconnect":
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := c.Reconnect(ctx)
			cancel()
			if err != nil {
				fmt.Printf("reconnect failed: %v\n", err)
				continue
			}
			fmt.Printf("resynced, %d elements\n", len(c.Replica().Elements()))
			continue
		}
		if err := run(c.Replica(), line, os.Stdout); err != nil {
			fmt.Println(err)
		}
	}
}
