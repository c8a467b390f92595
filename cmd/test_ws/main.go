package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hyperhook/pkg/ws"
)

func main() {
	log.Println("Testing Hyperliquid WebSocket...")

	wsClient := ws.NewHyperliquidWSClient("wss://api.hyperliquid.xyz/ws")

	ctx := context.Background()
	if err := wsClient.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer wsClient.Close()

	// Wait for connection to establish
	time.Sleep(2 * time.Second)

	err := wsClient.Subscribe("allMids", "", func(data json.RawMessage) {
		var mids ws.AllMids
		if err := json.Unmarshal(data, &mids); err != nil {
			log.Printf("Failed to decode mids: %v", err)
			return
		}
		log.Printf("BTC mid: %s, ETH mid: %s", mids.Mids["BTC"], mids.Mids["ETH"])
	})
	if err != nil {
		log.Printf("Failed to subscribe: %v", err)
	}

	log.Println("Subscribed to allMids. Press Ctrl+C to exit...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
}
