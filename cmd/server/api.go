package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/ledger"
	"papertrade/internal/observability"
	"papertrade/internal/strategy"
)

// ownerHeader identifies the caller. Authentication is out of scope; the
// header stands in for whatever gateway fronts this service.
const ownerHeader = "X-Owner-ID"

// startHTTPServer starts the HTTP server for the API, health and metrics.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	// Strategy management
	mux.HandleFunc("POST /api/strategies", s.handleCreateStrategy)
	mux.HandleFunc("GET /api/strategies", s.handleListStrategies)
	mux.HandleFunc("GET /api/strategies/{id}", s.handleGetStrategy)
	mux.HandleFunc("PUT /api/strategies/{id}", s.handleUpdateStrategy)
	mux.HandleFunc("DELETE /api/strategies/{id}", s.handleDeleteStrategy)
	mux.HandleFunc("POST /api/strategies/execute", s.handleExecuteNow)

	// Paper trading
	mux.HandleFunc("POST /api/account/enable", s.handleEnableAccount)
	mux.HandleFunc("POST /api/orders", s.handlePlaceOrder)
	mux.HandleFunc("GET /api/orders", s.handleListOrders)
	mux.HandleFunc("GET /api/positions", s.handleListPositions)
	mux.HandleFunc("GET /api/balance", s.handleBalanceSummary)
	mux.HandleFunc("GET /api/stats", s.handleTradingStats)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status            string    `json:"status"`
	Uptime            string    `json:"uptime"`
	Mode              string    `json:"mode"`
	ActiveStrategies  int       `json:"active_strategies"`
	SubscribedSymbols []string  `json:"subscribed_symbols"`
	TicksSeen         uint64    `json:"ticks_seen"`
	LastTickAt        time.Time `json:"last_tick_at,omitempty"`
	SweepInterval     string    `json:"sweep_interval"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	mode := "postgres+clickhouse"
	if s.useMemory {
		mode = "memory"
	}

	s.mu.Lock()
	ticksSeen := s.ticksSeen
	lastTickAt := s.lastTickAt
	started := s.started
	s.mu.Unlock()

	resp := StatusResponse{
		Status:            "running",
		Uptime:            time.Since(started).String(),
		Mode:              mode,
		ActiveStrategies:  s.registry.ActiveCount(),
		SubscribedSymbols: s.hub.Symbols(),
		TicksSeen:         ticksSeen,
		LastTickAt:        lastTickAt,
		SweepInterval:     s.sweepInterval.String(),
	}

	writeJSON(w, http.StatusOK, resp)
}

// strategyRequest is the JSON body for create and update.
type strategyRequest struct {
	Name           *string                `json:"name"`
	Description    *string                `json:"description"`
	Type           *domain.StrategyType   `json:"type"`
	Status         *domain.StrategyStatus `json:"status"`
	Symbols        []string               `json:"symbols"`
	Parameters     map[string]float64     `json:"parameters"`
	RiskParameters *riskParametersJSON    `json:"risk_parameters"`
}

type riskParametersJSON struct {
	MaxPositionSize        float64 `json:"max_position_size"`
	MaxTotalPositions      int     `json:"max_total_positions"`
	StopLossPercentage     float64 `json:"stop_loss_percentage"`
	TakeProfitPercentage   float64 `json:"take_profit_percentage"`
	MaxDailyLoss           float64 `json:"max_daily_loss"`
	TrailingStopEnabled    bool    `json:"trailing_stop_enabled"`
	TrailingStopPercentage float64 `json:"trailing_stop_percentage"`
}

func (r *riskParametersJSON) toDomain() domain.RiskParameters {
	return domain.RiskParameters{
		MaxPositionSize:        r.MaxPositionSize,
		MaxTotalPositions:      r.MaxTotalPositions,
		StopLossPercentage:     r.StopLossPercentage,
		TakeProfitPercentage:   r.TakeProfitPercentage,
		MaxDailyLoss:           r.MaxDailyLoss,
		TrailingStopEnabled:    r.TrailingStopEnabled,
		TrailingStopPercentage: r.TrailingStopPercentage,
	}
}

func (s *Server) handleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	in := strategy.CreateInput{
		Symbols:    req.Symbols,
		Parameters: req.Parameters,
	}
	if req.Name != nil {
		in.Name = *req.Name
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.Type != nil {
		in.Type = *req.Type
	}
	if req.RiskParameters != nil {
		in.RiskParameters = req.RiskParameters.toDomain()
	}

	st, err := s.strategies.Create(r.Context(), owner, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStrategyJSON(st))
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	list, err := s.strategies.List(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStrategyListJSON(list))
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	st, err := s.strategies.Get(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStrategyJSON(st))
}

func (s *Server) handleUpdateStrategy(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	in := strategy.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		Symbols:     req.Symbols,
		Parameters:  req.Parameters,
	}
	if req.RiskParameters != nil {
		rp := req.RiskParameters.toDomain()
		in.RiskParameters = &rp
	}

	st, err := s.strategies.Update(r.Context(), owner, r.PathValue("id"), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	observability.UpdateRegistrySizes(s.registry.ActiveCount(), len(s.hub.Symbols()))
	writeJSON(w, http.StatusOK, toStrategyJSON(st))
}

func (s *Server) handleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	if err := s.strategies.Delete(r.Context(), owner, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}

	observability.UpdateRegistrySizes(s.registry.ActiveCount(), len(s.hub.Symbols()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecuteNow(w http.ResponseWriter, r *http.Request) {
	results, err := s.runner.ExecuteNow(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionResultListJSON(results))
}

type enableAccountRequest struct {
	InitialBalance float64 `json:"initial_balance"`
}

func (s *Server) handleEnableAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req enableAccountRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.InitialBalance == 0 {
		req.InitialBalance = ledger.DefaultInitialBalance
	}

	account, err := s.ledger.EnableAccount(r.Context(), owner, req.InitialBalance)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountJSON(account))
}

type placeOrderRequest struct {
	Symbol   string           `json:"symbol"`
	Side     domain.OrderSide `json:"side"`
	Quantity float64          `json:"quantity"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	order, err := s.ledger.PlaceOrder(r.Context(), owner, req.Symbol, req.Side, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	observability.RecordOrderPlaced(string(order.Side))
	writeJSON(w, http.StatusCreated, toOrderJSON(order))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	orders, err := s.ledger.GetOrders(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderListJSON(orders))
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	positions, err := s.ledger.GetPositions(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionListJSON(positions))
}

func (s *Server) handleBalanceSummary(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	summary, err := s.ledger.GetBalanceSummary(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceSummaryJSON(summary))
}

func (s *Server) handleTradingStats(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	stats, err := s.ledger.GetTradingStats(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTradingStatsJSON(stats))
}

// requireOwner extracts the owner from the request header.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.Header.Get(ownerHeader)
	if owner == "" {
		writeError(w, http.StatusBadRequest, ownerHeader+" header required")
		return "", false
	}
	return owner, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps domain sentinels to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientQuantity),
		errors.Is(err, domain.ErrNoPosition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUpstream):
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}
