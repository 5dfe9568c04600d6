package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

const (
	defaultCategoryLimit = 10
	defaultRecentLimit   = 10
	maxStatsLimit        = 500
	statsTimeout         = 5 * time.Second
)

// StatsHandler exposes read-only store statistics.
type StatsHandler struct {
	stats   reconcile.StatsReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewStatsHandler wires the stats reader and logger.
func NewStatsHandler(stats reconcile.StatsReader, logger *zap.Logger) *StatsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsHandler{
		stats:   stats,
		timeout: statsTimeout,
		logger:  logger.Named("stats"),
	}
}

type statsResponse struct {
	Totals     reconcile.Totals           `json:"totals"`
	Categories []reconcile.CategoryCount  `json:"categories"`
	Recent     []reconcile.ArticleSummary `json:"recent"`
}

// Stats handles GET /stats?categories=&recent=. It returns totals, the top categories
// by article count and the most recent articles, 400 for invalid limits, 503 when no
// store is configured, or 500 if a query fails.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	categoryLimit, err := parseLimit(r, "categories", defaultCategoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recentLimit, err := parseLimit(r, "recent", defaultRecentLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var resp statsResponse
	if resp.Totals, err = h.stats.Totals(ctx); err != nil {
		h.fail(w, "totals", err)
		return
	}
	if resp.Categories, err = h.stats.CategoryStats(ctx, categoryLimit); err != nil {
		h.fail(w, "category stats", err)
		return
	}
	if resp.Recent, err = h.stats.RecentArticles(ctx, recentLimit); err != nil {
		h.fail(w, "recent articles", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StatsHandler) fail(w http.ResponseWriter, query string, err error) {
	h.logger.Error("stats query failed", zap.String("query", query), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to load "+query)
}

func parseLimit(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid " + key + " limit")
	}
	return min(val, maxStatsLimit), nil
}
