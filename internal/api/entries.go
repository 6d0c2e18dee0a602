package api

import (
	"errors"
	"net/http"
	"strconv"

	"swish-forms/internal/entries"
	"swish-forms/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EntryHandler exposes stored submissions to the admin.
type EntryHandler struct {
	entries *entries.Store
	log     *zap.Logger
}

func NewEntryHandler(d Deps) *EntryHandler {
	return &EntryHandler{entries: d.Entries, log: d.Log}
}

func (h *EntryHandler) GetEntries(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.Query("perPage"))

	list, err := h.entries.List(c.Request.Context(), c.Query("formId"), entries.ListArgs{
		Page:    page,
		PerPage: perPage,
		Order:   c.Query("order"),
	})
	if err != nil {
		h.log.Error("Failed to list entries", zap.Error(err))
		failure(c, http.StatusInternalServerError, "Failed to load entries.")
		return
	}

	// Return empty array instead of null
	if list == nil {
		list = []models.Entry{}
	}
	success(c, list)
}

func (h *EntryHandler) CountEntries(c *gin.Context) {
	n, err := h.entries.Count(c.Request.Context(), c.Query("formId"))
	if err != nil {
		failure(c, http.StatusInternalServerError, "Failed to count entries.")
		return
	}
	success(c, gin.H{"count": n})
}

func (h *EntryHandler) GetEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	entry, err := h.entries.Get(c.Request.Context(), id)
	if errors.Is(err, entries.ErrNotFound) {
		failure(c, http.StatusNotFound, "Entry not found.")
		return
	}
	if err != nil {
		failure(c, http.StatusInternalServerError, "Failed to load entry.")
		return
	}
	success(c, entry)
}

func (h *EntryHandler) DeleteEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	err := h.entries.Delete(c.Request.Context(), id)
	if errors.Is(err, entries.ErrNotFound) {
		failure(c, http.StatusNotFound, "Entry not found.")
		return
	}
	if err != nil {
		failure(c, http.StatusInternalServerError, "Failed to delete entry.")
		return
	}
	success(c, gin.H{"message": "Entry deleted."})
}

func entryID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		failure(c, http.StatusBadRequest, "Invalid entry id.")
		return 0, false
	}
	return uint(id), true
}
