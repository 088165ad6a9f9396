package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/news-bot/app/database"
	"github.com/lysyi3m/news-bot/app/pipeline"
)

const (
	defaultFeedItems   = 50
	defaultRecentRuns  = 10
	defaultApprovalMax = 100
)

func NewHandler(services Services, languages []string, botDisabled bool, version string) *Handler {
	return &Handler{
		Services:    services,
		languages:   languages,
		botDisabled: botDisabled,
		version:     version,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	lang := c.Param("lang")
	if !slices.Contains(h.languages, lang) {
		c.Status(http.StatusNotFound)
		return
	}

	limit := defaultFeedItems
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}

	items, err := h.Articles.ListPublishedTranslations(c.Request.Context(), lang, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_published", "lang", lang, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.Generator.Run(lang, items)
	if err != nil {
		slog.Error("RSS generation error", "lang", lang, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.Header("X-Feed-Language", lang)

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]any{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if feedCount, err := h.Feeds.GetFeedCount(c.Request.Context()); err == nil {
		health["feeds"] = feedCount
	}

	c.JSON(http.StatusOK, health)
}

// APITriggerCycle runs one cycle synchronously. Partial failures are reported
// inside stats with a 200 status.
func (h *Handler) APITriggerCycle(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "priority is required"})
		return
	}

	priority, err := database.ParsePriority(req.Priority)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	result, err := h.Runner.RunCycle(c.Request.Context(), priority)
	if errors.Is(err, pipeline.ErrAlreadyRunning) {
		c.JSON(http.StatusOK, gin.H{
			"success":        false,
			"alreadyRunning": true,
			"message":        "a " + string(priority) + " priority cycle is already running",
		})
		return
	}
	if err != nil {
		slog.Error("Manual cycle failed", "priority", priority, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	response := gin.H{
		"success":  true,
		"runLogId": result.RunLogID,
		"stats":    result.Stats,
	}
	if result.Skipped {
		response["skipped"] = true
		response["reason"] = result.Reason
	}
	c.JSON(http.StatusOK, response)
}

func (h *Handler) APIGetStatus(c *gin.Context) {
	ctx := c.Request.Context()

	settings, err := h.Settings.GetSettings(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "get_settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	dayStart := time.Now().Add(-24 * time.Hour)
	totals, err := h.Runs.TotalsSince(ctx, dayStart)
	if err != nil {
		slog.Error("Database error", "operation", "run_totals", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	daily := dailyStats{RunTotals: totals}
	if n, err := h.Articles.CountCreatedSince(ctx, dayStart); err == nil {
		daily.ArticlesCreated = n
	}
	if n, err := h.Articles.CountPublishedSince(ctx, dayStart); err == nil {
		daily.ArticlesPublished = n
	}
	if settings != nil {
		daily.DailyArticleTarget = settings.DailyArticleTarget
	}

	feedStats, err := h.Feeds.GetFeedStats(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "feed_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	recent, err := h.Runs.ListRecentRuns(ctx, "", defaultRecentRuns)
	if err != nil {
		slog.Error("Database error", "operation", "recent_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if recent == nil {
		recent = []database.RunLog{}
	}

	running := make(map[database.Priority]bool, len(database.Priorities))
	for _, p := range database.Priorities {
		running[p] = h.Runner.Running(p)
	}

	stats := gin.H{"daily": daily, "feeds": feedStats}
	if h.Index != nil {
		n, err := h.Index.Len(ctx)
		if err != nil {
			slog.Warn("Failed to read dedup index size", "error", err)
		} else {
			stats["dedupIndexEntries"] = n
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"isEnabled":  !h.botDisabled && settings != nil && settings.IsEnabled,
		"settings":   settings,
		"stats":      stats,
		"recentRuns": recent,
		"running":    running,
	})
}

func (h *Handler) APISeed(c *gin.Context) {
	result, err := h.Seeder.Seed(c.Request.Context())
	if err != nil {
		slog.Error("Seeding failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	h.reloadScheduler(c)

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"feedsInserted":   result.FeedsInserted,
		"feedsSkipped":    result.FeedsSkipped,
		"settingsCreated": result.SettingsCreated,
	})
}

func (h *Handler) APISeedStatus(c *gin.Context) {
	status, err := h.Seeder.Status(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "seed_status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// APIUpdateSettings applies a partial update on top of the current settings.
func (h *Handler) APIUpdateSettings(c *gin.Context) {
	ctx := c.Request.Context()

	current, err := h.Settings.GetSettings(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "get_settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if current == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Bot settings not seeded"})
		return
	}

	next := *current
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid settings payload"})
		return
	}
	if err := next.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Settings.UpdateSettings(ctx, next); err != nil {
		slog.Error("Database error", "operation", "update_settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	h.reloadScheduler(c)

	updated, err := h.Settings.GetSettings(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) APIListApprovals(c *gin.Context) {
	status := database.ApprovalStatus(c.DefaultQuery("status", string(database.ApprovalPending)))
	if status == "all" {
		status = ""
	}

	limit := defaultApprovalMax
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}

	items, err := h.Approvals.ListApprovals(c.Request.Context(), status, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_approvals", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if items == nil {
		items = []database.ApprovalItem{}
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) APIApprove(c *gin.Context) {
	h.review(c, h.Approvals.ApproveTranslation)
}

func (h *Handler) APIReject(c *gin.Context) {
	h.review(c, h.Approvals.RejectTranslation)
}

type reviewFunc func(ctx context.Context, translationID, reviewerID, notes string) (*database.ApprovalItem, error)

// review moves a pending approval entry; id is the translation id.
func (h *Handler) review(c *gin.Context, apply reviewFunc) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing translation id parameter"})
		return
	}

	var req reviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid review payload"})
			return
		}
	}

	item, err := apply(c.Request.Context(), id, req.ReviewerID, req.Notes)
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Approval entry not found"})
		return
	case errors.Is(err, database.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		slog.Error("Database error", "operation", "review", "translation_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Approval reviewed", "translation_id", id, "status", item.Status, "reviewer", req.ReviewerID)
	c.JSON(http.StatusOK, item)
}

func (h *Handler) APIBackfillSlugs(c *gin.Context) {
	result, err := h.Backfill.Run(c.Request.Context())
	if err != nil {
		slog.Error("Slug backfill failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *Handler) reloadScheduler(c *gin.Context) {
	if h.Scheduler == nil {
		return
	}
	if err := h.Scheduler.Reload(c.Request.Context()); err != nil {
		slog.Warn("Failed to reload scheduler intervals", "error", err)
	}
}
