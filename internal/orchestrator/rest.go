package orchestrator

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/mesh/internal/sessionstore"
)

const sessionTokenTTL = 24 * time.Hour

// RegisterRoutes wires the WebSocket admission route and the REST
// session surface onto engine, mirroring the teacher's route-group
// registration style (HealthCheckRoutes, TalkCallbackApiRoute).
func (r *Router) RegisterRoutes(engine *gin.Engine) {
	v1 := engine.Group("/v1")
	{
		v1.GET("/ws/:session_id", r.HandleWS)
		v1.POST("/sessions", r.CreateSession)
		v1.GET("/sessions/:session_id/summary", r.SessionSummary)
		v1.DELETE("/sessions/:session_id", r.DeleteSession)
		v1.GET("/healthz", r.Healthz)
		if r.mapper != nil {
			v1.POST("/map", r.Map)
		}
		if r.mappingsLoader != nil {
			v1.POST("/reload", r.ReloadMappings)
		}
	}
}

type mapRequest struct {
	Styles    []string `json:"styles"`
	BrandRefs []string `json:"brand_refs"`
	Component string   `json:"component"`
}

// Map handles `POST /v1/map`, the design-mapper collaborator's request/
// response surface.
func (r *Router) Map(c *gin.Context) {
	var req mapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tokens, classes, usedBrands, usedStyles := r.mapper.Map(req.Styles, req.BrandRefs, req.Component)
	c.JSON(http.StatusOK, gin.H{
		"theme_tokens":     tokens,
		"tailwind_classes": classes,
		"source_styles":    usedStyles,
		"source_brands":    usedBrands,
	})
}

// ReloadMappings handles `POST /v1/reload`.
func (r *Router) ReloadMappings(c *gin.Context) {
	if err := r.mappingsLoader.Reload(); err != nil {
		r.logger.Warnf("orchestrator: mappings reload failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

// CreateSession handles `POST /v1/sessions`: mints a session id, persists
// a pending Session record, and issues a token whose subject is that id.
func (r *Router) CreateSession(c *gin.Context) {
	sessionID := generateSessionID()

	if _, err := r.sessions.Create(c.Request.Context(), sessionID); err != nil {
		r.logger.Warnf("orchestrator: create session %s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}

	tok, err := r.tokens.Issue(sessionID, nil, sessionTokenTTL)
	if err != nil {
		r.logger.Warnf("orchestrator: issue token for %s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": sessionID,
		"token":      tok,
	})
}

// SessionSummary handles `GET /v1/sessions/{id}/summary`.
func (r *Router) SessionSummary(c *gin.Context) {
	sessionID := c.Param("session_id")

	sess, err := r.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, sessionstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		r.logger.Warnf("orchestrator: get session %s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":      sess.SessionID,
		"status":          sess.Status,
		"utterance_count": sess.UtteranceN,
		"created_date":    sess.CreatedDate,
		"updated_date":    sess.UpdatedDate,
	})
}

// DeleteSession handles `DELETE /v1/sessions/{id}`.
func (r *Router) DeleteSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	if err := r.sessions.Delete(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, sessionstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		r.logger.Warnf("orchestrator: delete session %s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete session"})
		return
	}

	r.manager.Deregister(sessionID)
	c.Status(http.StatusNoContent)
}

// Healthz handles `GET /v1/healthz`.
func (r *Router) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"current_time_utc":  time.Now().UTC().Format(time.RFC3339),
		"connections":       r.manager.Count(),
	})
}
