package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// HyperliquidWSClient handles the WebSocket connection to Hyperliquid.
type HyperliquidWSClient struct {
	url         string
	conn        *websocket.Conn
	mu          sync.RWMutex
	handlers    map[string]func(json.RawMessage)
	stopCh      chan struct{}
	reconnectCh chan struct{}
	log         *logrus.Entry
}

type wsRequest struct {
	Method       string          `json:"method"`
	Subscription *wsSubscription `json:"subscription,omitempty"`
}

type wsSubscription struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
}

type wsMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// AllMids is the payload of the allMids channel: coin -> mid price.
type AllMids struct {
	Mids map[string]string `json:"mids"`
}

func NewHyperliquidWSClient(url string) *HyperliquidWSClient {
	return &HyperliquidWSClient{
		url:         url,
		handlers:    make(map[string]func(json.RawMessage)),
		stopCh:      make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
		log:         logrus.WithField("component", "ws"),
	}
}

func (c *HyperliquidWSClient) Connect(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Hyperliquid WebSocket: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.log.Infof("connected to %s", c.url)

	go c.handleMessages()
	go c.handlePing()

	return nil
}

// Subscribe registers a handler for a subscription type ("allMids",
// "trades", ...). Messages are dispatched by channel name, which matches
// the subscription type.
func (c *HyperliquidWSClient) Subscribe(subType, coin string, handler func(json.RawMessage)) error {
	c.mu.Lock()
	c.handlers[subType] = handler
	c.mu.Unlock()

	return c.send(wsRequest{
		Method:       "subscribe",
		Subscription: &wsSubscription{Type: subType, Coin: coin},
	})
}

func (c *HyperliquidWSClient) Unsubscribe(subType, coin string) error {
	c.mu.Lock()
	delete(c.handlers, subType)
	c.mu.Unlock()

	return c.send(wsRequest{
		Method:       "unsubscribe",
		Subscription: &wsSubscription{Type: subType, Coin: coin},
	})
}

func (c *HyperliquidWSClient) send(msg interface{}) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("websocket not connected")
	}

	return conn.WriteJSON(msg)
}

func (c *HyperliquidWSClient) handleMessages() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				time.Sleep(time.Second)
				continue
			}

			var msg wsMessage
			err := conn.ReadJSON(&msg)
			if err != nil {
				c.log.Errorf("read error: %v", err)
				// Trigger reconnect
				select {
				case c.reconnectCh <- struct{}{}:
				default:
				}
				time.Sleep(time.Second)
				continue
			}

			switch msg.Channel {
			case "pong":
				// Ignore pong responses

			case "subscriptionResponse":
				c.log.Debugf("subscription confirmed: %s", string(msg.Data))

			case "error":
				c.log.Errorf("server error: %s", string(msg.Data))

			default:
				c.mu.RLock()
				handler, ok := c.handlers[msg.Channel]
				c.mu.RUnlock()

				if ok && handler != nil {
					handler(msg.Data)
				}
			}
		}
	}
}

// handlePing keeps the connection alive; the venue drops sockets idle for
// 60 seconds.
func (c *HyperliquidWSClient) handlePing() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.send(wsRequest{Method: "ping"}); err != nil {
				c.log.Errorf("ping error: %v", err)
			}
		}
	}
}

func (c *HyperliquidWSClient) Close() error {
	close(c.stopCh)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
