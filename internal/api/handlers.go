package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/selivandex/price-tracker/pkg/logger"
	"github.com/selivandex/price-tracker/pkg/models"
)

type errorResponse struct {
	Error string `json:"error"`
}

type updateResponse struct {
	Message string `json:"message"`
	Updated int    `json:"updated"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

// handleUpdatePrices runs one ingestion pass - POST /api/crypto/update-prices
func (s *Server) handleUpdatePrices(w http.ResponseWriter, r *http.Request) {
	result := s.updater.RunUpdate(r.Context())

	if !result.Success {
		msg := "price update failed"
		if result.Error != nil {
			msg = *result.Error
		}
		writeError(w, http.StatusInternalServerError, msg)
		return
	}

	writeJSON(w, http.StatusOK, updateResponse{Message: "Prices updated.", Updated: result.Inserted})
}

// handleLatestPrices - GET /api/crypto/latest-prices
func (s *Server) handleLatestPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := s.projector.GetLatestPrices(r.Context())
	if err != nil {
		logger.Error("failed to project latest prices", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load latest prices")
		return
	}

	writeJSON(w, http.StatusOK, prices)
}

// handleHistory - GET /api/crypto/history/{symbol}?days=30
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = n
	}

	points, err := s.projector.GetHistory(r.Context(), symbol, days)
	if errors.Is(err, models.ErrAssetNotFound) {
		writeError(w, http.StatusNotFound, "unknown asset: "+symbol)
		return
	}
	if err != nil {
		logger.Error("failed to project price history",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load price history")
		return
	}

	writeJSON(w, http.StatusOK, points)
}
