// Package api is an HTTP relay: it reads token state and submits permits
// signed elsewhere.
package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/jackchuma/tokenbank/internal/contracts"
	"github.com/jackchuma/tokenbank/internal/events"
	"github.com/jackchuma/tokenbank/internal/metrics"
	"github.com/jackchuma/tokenbank/internal/permit"
	"github.com/jackchuma/tokenbank/internal/template"
	"github.com/jackchuma/tokenbank/internal/units"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Deps are the collaborators the handlers use. Submitter and Feed may be nil;
// the routes that need them then answer 503.
type Deps struct {
	ChainID   *big.Int
	Caller    contracts.Caller
	Token     *contracts.Token
	Submitter *permit.Submitter
	Feed      *events.Feed
	Names     template.Names
	Metrics   *metrics.Metrics

	// PriceDecimals scales listing prices in the markdown event report.
	PriceDecimals uint8
}

type Server struct {
	deps   Deps
	engine *gin.Engine
	log    *logrus.Entry
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewServer(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		deps:   deps,
		engine: gin.New(),
		log:    logrus.WithField("component", "api"),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())

	s.engine.GET("/health", s.health)
	v1 := s.engine.Group("/v1")
	v1.GET("/tokens/:address/balance/:owner", s.balance)
	v1.GET("/permits/nonce/:owner", s.nonce)
	v1.POST("/permits", s.submit(permit.MethodPermit))
	v1.POST("/permits/deposit", s.submit(permit.MethodPermitDeposit))
	v1.GET("/events", s.events)
	if deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then drains for up to five seconds.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("Relay listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shut down relay")
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("Request")
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	e := permit.Classify(err)

	status := http.StatusBadGateway
	switch e.Kind {
	case permit.KindValidation:
		status = http.StatusBadRequest
	case permit.KindContract:
		status = http.StatusUnprocessableEntity
	case permit.KindWallet:
		status = http.StatusConflict
	}
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Code: e.Code, Message: e.Message})
}

func unavailable(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{
		Code:    "unavailable",
		Message: what + " is not configured",
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"chainId": s.deps.ChainID.String(),
		"chain":   s.deps.Names.Chain,
		"relay":   s.deps.Submitter != nil,
	})
}

func (s *Server) balance(c *gin.Context) {
	tokenAddr, err := permit.ParseAddress("token", c.Param("address"))
	if err != nil {
		s.fail(c, err)
		return
	}
	owner, err := permit.ParseAddress("owner", c.Param("owner"))
	if err != nil {
		s.fail(c, err)
		return
	}

	token := contracts.NewToken(tokenAddr, s.deps.Caller)
	ctx := c.Request.Context()
	balance, err := token.BalanceOf(ctx, owner)
	if err != nil {
		s.fail(c, err)
		return
	}
	decimals, err := token.Decimals(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	formatted := balance.String()
	if u, overflow := uint256.FromBig(balance); !overflow {
		formatted = units.FormatUnits(u, decimals)
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     tokenAddr.Hex(),
		"owner":     owner.Hex(),
		"balance":   balance.String(),
		"formatted": formatted,
		"decimals":  decimals,
	})
}

func (s *Server) nonce(c *gin.Context) {
	owner, err := permit.ParseAddress("owner", c.Param("owner"))
	if err != nil {
		s.fail(c, err)
		return
	}
	nonce, err := s.deps.Token.Nonces(c.Request.Context(), owner)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": s.deps.Token.Address.Hex(),
		"owner": owner.Hex(),
		"nonce": nonce.String(),
	})
}

func (s *Server) submit(method string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Submitter == nil {
			unavailable(c, "relay signer")
			return
		}

		body, err := c.GetRawData()
		if err != nil {
			s.fail(c, err)
			return
		}
		if err := validate(body); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: "invalid_request", Message: err.Error()})
			return
		}
		var req permit.SubmitRequest
		if err := json.Unmarshal(body, &req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: "invalid_request", Message: err.Error()})
			return
		}

		var sub *permit.Submission
		if method == permit.MethodPermitDeposit {
			sub, err = s.deps.Submitter.SubmitPermitDeposit(c.Request.Context(), req)
		} else {
			sub, err = s.deps.Submitter.SubmitPermit(c.Request.Context(), req)
		}
		if err != nil {
			s.fail(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"method": sub.Method,
			"txHash": sub.TxHash.Hex(),
			"block":  blockNumber(sub),
			"status": "confirmed",
		})
	}
}

func blockNumber(sub *permit.Submission) string {
	if sub.Receipt == nil || sub.Receipt.BlockNumber == nil {
		return ""
	}
	return sub.Receipt.BlockNumber.String()
}

// events serves the feed as JSON, or as markdown with ?format=markdown.
// ?limit caps each kind.
func (s *Server) events(c *gin.Context) {
	if s.deps.Feed == nil {
		unavailable(c, "event watcher")
		return
	}
	snap := s.deps.Feed.Snapshot()

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: "invalid_limit", Message: "limit must be a non-negative integer"})
			return
		}
		snap = truncate(snap, limit)
	}

	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", template.BuildEventReport(s.deps.Names, s.deps.PriceDecimals, snap))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary": template.NewEventSummary(s.deps.Names, snap),
		"events":  snap,
	})
}

func truncate(snap events.Snapshot, limit int) events.Snapshot {
	if len(snap.Listed) > limit {
		snap.Listed = snap.Listed[:limit]
	}
	if len(snap.Sold) > limit {
		snap.Sold = snap.Sold[:limit]
	}
	if len(snap.Cancelled) > limit {
		snap.Cancelled = snap.Cancelled[:limit]
	}
	return snap
}
