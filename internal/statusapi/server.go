// Package statusapi serves a read-only JSON view of the session: balances,
// order books, recent events and status lines. Display only; nothing here
// mutates ledger state.
package statusapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/godex/internal/book"
	"github.com/betbot/godex/internal/session"
)

// Server wraps the HTTP listener.
type Server struct {
	sess   *session.Session
	router *gin.Engine
	http   *http.Server
}

// New builds the server for listenAddr.
func New(sess *session.Session, listenAddr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{sess: sess}
	api := router.Group("/api/v1")
	api.GET("/status", s.handleStatus)
	api.GET("/statuses", s.handleStatuses)
	api.GET("/balances", s.handleBalances)
	api.GET("/orderbook/:symbol", s.handleOrderBook)
	api.GET("/events", s.handleEvents)

	s.router = router
	s.http = &http.Server{Addr: listenAddr, Handler: router}
	return s
}

// Handler exposes the route table for serving through an external listener.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{}

	if account, err := s.sess.Account(); err == nil {
		resp["account"] = account.Hex()
	} else {
		resp["account"] = nil
	}
	if addr, err := s.sess.ExchangeAddress(); err == nil {
		resp["exchange"] = addr.Hex()
	}
	if addr, err := s.sess.TokenAddress(); err == nil {
		resp["token"] = addr.Hex()
	}
	if last, ok := s.sess.LastStatus(); ok {
		resp["last_status"] = last.Message
		resp["last_status_at"] = last.Time
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatuses(c *gin.Context) {
	notices := s.sess.RecentStatus()
	out := make([]gin.H, 0, len(notices))
	for _, n := range notices {
		out = append(out, gin.H{"time": n.Time, "message": n.Message})
	}
	c.JSON(http.StatusOK, gin.H{"statuses": out})
}

func (s *Server) handleBalances(c *gin.Context) {
	snapshot, err := s.sess.BalanceSnapshot()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	out := make(map[string]string, len(snapshot))
	for asset, amount := range snapshot {
		out[asset] = amount.String()
	}
	c.JSON(http.StatusOK, gin.H{"balances": out})
}

func (s *Server) handleOrderBook(c *gin.Context) {
	symbol := c.Param("symbol")

	view := s.sess.Books.Last(symbol)
	if c.Query("refresh") == "true" {
		fresh, err := s.sess.OrderBook(c.Request.Context(), symbol)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		view = fresh
	}
	if view == nil {
		// Not yet loaded, which is different from an empty book.
		c.JSON(http.StatusNotFound, gin.H{"error": "order book not loaded"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":     view.Symbol,
		"asks":       renderLevels(view.Asks),
		"bids":       renderLevels(view.Bids),
		"fetched_at": view.FetchedAt,
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	events := s.sess.RecentEvents()
	out := make([]gin.H, 0, len(events))
	for _, e := range events {
		args := make(map[string]string, len(e.Event.Args))
		for k, v := range e.Event.Args {
			args[k] = renderArg(v)
		}
		out = append(out, gin.H{
			"time":   e.Time,
			"source": e.Source,
			"kind":   e.Event.Kind,
			"block":  e.Event.ID.Block,
			"index":  e.Event.ID.Index,
			"tx":     e.Event.TxHash.Hex(),
			"args":   args,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func renderLevels(levels []book.Level) []gin.H {
	out := make([]gin.H, 0, len(levels))
	for _, l := range levels {
		out = append(out, gin.H{"price": l.Price.String(), "volume": l.Volume.String()})
	}
	return out
}
