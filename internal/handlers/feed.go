package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/dto"
	"github.com/yukikurage/circuit/internal/middleware"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/services"
	"github.com/yukikurage/circuit/internal/utils"
)

// FeedHandler serves the per-project log of updates and announcements.
type FeedHandler struct {
	feedService *services.FeedService
}

func NewFeedHandler(feedService *services.FeedService) *FeedHandler {
	return &FeedHandler{feedService: feedService}
}

func (h *FeedHandler) PostEntry(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	projectID, _ := middleware.GetProjectID(c)

	type PostEntryRequest struct {
		Kind       models.FeedKind `json:"kind" binding:"required,oneof=update announcement"`
		Message    string          `json:"message" binding:"required,notblank"`
		FileURL    string          `json:"file_url" binding:"omitempty,url"`
		Recipients []string        `json:"recipients" binding:"omitempty,dive,email"`
	}

	var req PostEntryRequest
	if !bindJSON(c, &req) {
		return
	}

	entry, err := h.feedService.Post(c.Request.Context(), caller, projectID, services.PostInput{
		Kind:       req.Kind,
		Message:    req.Message,
		FileURL:    req.FileURL,
		Recipients: req.Recipients,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// ListEntries returns the feed newest first. inbox=true keeps entries addressed to the
// caller; unread=true keeps the ones the caller has not read yet.
func (h *FeedHandler) ListEntries(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	projectID, _ := middleware.GetProjectID(c)

	type ListEntriesQuery struct {
		Kind   *models.FeedKind `form:"kind" binding:"omitempty,oneof=update announcement"`
		Inbox  bool             `form:"inbox"`
		Unread bool             `form:"unread"`
	}

	var query ListEntriesQuery
	if !bindQuery(c, &query) {
		return
	}
	params := utils.GetPaginationParams(c)

	entries, total, err := h.feedService.List(c.Request.Context(), caller, projectID, services.ListFeedInput{
		Kind:       query.Kind,
		Inbox:      query.Inbox,
		UnreadOnly: query.Unread,
		Page:       params.Page,
		PageSize:   params.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToFeedListResponse(entries, params.Page, params.Limit, total))
}

// MarkRead flips the caller's read state on one entry.
func (h *FeedHandler) MarkRead(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	entry, err := h.feedService.MarkRead(c.Request.Context(), caller, c.Param("entry_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}
