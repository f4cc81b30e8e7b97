package ledger

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/careledger/careledger/internal/platform/auth"
	"github.com/careledger/careledger/pkg/pagination"
)

// Handler exposes the ledger over HTTP for the platform's admin UI and
// for internal services that log over the wire instead of in-process.
type Handler struct {
	writer   *Writer
	verifier *Verifier
	queries  *QueryService
}

func NewHandler(writer *Writer, verifier *Verifier, queries *QueryService) *Handler {
	return &Handler{writer: writer, verifier: verifier, queries: queries}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	audit := api.Group("/audit", auth.RequireRole("admin"))
	audit.GET("/entries", h.ListEntries)
	audit.POST("/entries", h.CreateEntry)
	audit.GET("/entities/:type/:id", h.EntityHistory)
	audit.GET("/actors/:id", h.ActorActivity)
	audit.GET("/stats", h.GetStats)
	audit.GET("/verify", h.VerifyChain)
}

// logRequest is the write payload for POST /audit/entries. Actor fields
// default to the authenticated caller when omitted, so services logging
// on their own behalf do not repeat themselves.
type logRequest struct {
	ActorID           string         `json:"actor_id"`
	ActorEmail        string         `json:"actor_email"`
	ActorName         string         `json:"actor_name"`
	ActionType        string         `json:"action_type"`
	ActionDescription string         `json:"action_description"`
	EntityType        string         `json:"entity_type"`
	EntityID          string         `json:"entity_id"`
	DataBefore        map[string]any `json:"data_before"`
	DataAfter         map[string]any `json:"data_after"`
	Metadata          map[string]any `json:"metadata"`
}

func (h *Handler) CreateEntry(c echo.Context) error {
	var req logRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if NormalizeActionType(req.ActionType) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action_type is required")
	}

	actor := auth.ActorFromContext(c.Request().Context())
	if req.ActorID == "" {
		req.ActorID = actor.ID
		req.ActorEmail = actor.Email
		req.ActorName = actor.Name
	}
	rid, _ := c.Get("request_id").(string)

	entry, err := h.writer.LogAction(c.Request().Context(), ActionInput{
		ActorID:           req.ActorID,
		ActorEmail:        req.ActorEmail,
		ActorName:         req.ActorName,
		ActionType:        req.ActionType,
		ActionDescription: req.ActionDescription,
		EntityType:        req.EntityType,
		EntityID:          req.EntityID,
		DataBefore:        req.DataBefore,
		DataAfter:         req.DataAfter,
		IPAddress:         c.RealIP(),
		UserAgent:         c.Request().UserAgent(),
		RequestID:         rid,
		Metadata:          req.Metadata,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "audit store unavailable")
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) ListEntries(c echo.Context) error {
	pg := pagination.FromContext(c)
	f, err := filterFromQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	entries, total, err := h.queries.Entries(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

func (h *Handler) EntityHistory(c echo.Context) error {
	entries, total, err := h.queries.EntityHistory(c.Request().Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, MaxHistoryPage, 0))
}

func (h *Handler) ActorActivity(c echo.Context) error {
	pg := pagination.FromContext(c)
	entries, total, err := h.queries.ActorActivity(c.Request().Context(), c.Param("id"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetStats(c echo.Context) error {
	stats, err := h.queries.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

// VerifyChain runs a full integrity check. A chain violation is a normal
// 200 response carrying the report; only a store read failure maps to an
// error status, so operators can tell the two apart.
func (h *Handler) VerifyChain(c echo.Context) error {
	report, err := h.verifier.VerifyChain(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]any{
			"verified": false,
			"error":    err.Error(),
		})
	}
	return c.JSON(http.StatusOK, report)
}

func filterFromQuery(c echo.Context) (Filter, error) {
	f := Filter{
		ActorID:    c.QueryParam("actor_id"),
		ActionType: c.QueryParam("action_type"),
		EntityType: c.QueryParam("entity_type"),
		EntityID:   c.QueryParam("entity_id"),
	}
	if v := c.QueryParam("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("start must be an RFC3339 timestamp")
		}
		f.Start = &t
	}
	if v := c.QueryParam("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("end must be an RFC3339 timestamp")
		}
		f.End = &t
	}
	return f, nil
}
