package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"hyperhook/internal/auth"
	"hyperhook/internal/exchange"
	"hyperhook/internal/trading"
)

// Dispatcher is the core boundary this transport forwards authenticated
// signals to.
type Dispatcher interface {
	Dispatch(ctx context.Context, sig trading.Signal) trading.Response
}

type Server struct {
	router          *gin.Engine
	authenticator   *auth.Authenticator
	dispatcher      Dispatcher
	venue           exchange.Exchange
	enforceSourceIP bool
	port            int
	log             *logrus.Entry
}

func New(authenticator *auth.Authenticator, dispatcher Dispatcher, venue exchange.Exchange, enforceSourceIP bool, port int) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:          router,
		authenticator:   authenticator,
		dispatcher:      dispatcher,
		venue:           venue,
		enforceSourceIP: enforceSourceIP,
		port:            port,
		log:             logrus.WithField("component", "server"),
	}

	router.Use(s.requestLogger())
	s.setupRoutes()

	return s
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.log.Debugf("incoming request: %s %s (from %s)", c.Request.Method, c.Request.URL.Path, c.ClientIP())
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/webhook", s.handleWebhook)
	s.router.GET("/positions", s.handlePositions)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleWebhook(c *gin.Context) {
	var sig trading.Signal
	if err := c.ShouldBindJSON(&sig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid JSON in request body"})
		return
	}

	if !s.authenticator.Authenticate(sig.Password, s.sourceIP(c)) {
		s.log.Warnf("rejected webhook from %s", c.ClientIP())
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "Authentication failed"})
		return
	}

	resp := s.dispatcher.Dispatch(c.Request.Context(), sig)
	c.JSON(resp.StatusCode, resp.Body)
}

// handlePositions is a read-only view of the account, guarded by the same
// shared secret as the webhook. The source-IP check never applies here:
// this endpoint is for operators, not TradingView.
func (s *Server) handlePositions(c *gin.Context) {
	if !s.authenticator.Authenticate(c.GetHeader("X-Webhook-Password"), "") {
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "Authentication failed"})
		return
	}

	state, err := s.venue.AccountState(c.Request.Context())
	if err != nil {
		s.log.Errorf("failed to fetch account state: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "message": "Failed to fetch account state"})
		return
	}

	positions := make([]gin.H, 0, len(state.Positions))
	for _, p := range state.Positions {
		side := "short"
		if p.IsLong() {
			side = "long"
		}
		positions = append(positions, gin.H{
			"asset":       p.Coin,
			"size":        p.Size.Abs().String(),
			"side":        side,
			"entry_price": p.EntryPrice.String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"withdrawable": state.Withdrawable.String(),
		"positions":    positions,
	})
}

// sourceIP returns the client address for the allowlist check, or empty
// when enforcement is off (behind tunnels the observed IP is the proxy's).
func (s *Server) sourceIP(c *gin.Context) string {
	if !s.enforceSourceIP {
		return ""
	}
	return c.ClientIP()
}

func (s *Server) Run() error {
	s.log.Infof("starting webhook server on port %d", s.port)
	return s.router.Run(fmt.Sprintf(":%d", s.port))
}
