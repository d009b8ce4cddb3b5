// Package runs exposes the pipeline-run HTTP endpoints.
package runs

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apppkg "github.com/trackops/slapipe/cmd/api/app"
	"github.com/trackops/slapipe/internal/store"
)

// CreateReq names the raw export object to process.
type CreateReq struct {
	ObjectKey string `json:"object_key" binding:"required"`
}

type job struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type runJob struct {
	RunID     string `json:"run_id"`
	ObjectKey string `json:"object_key"`
}

// Create records a queued run and enqueues it for the worker.
func Create(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Q == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "queue not configured"})
			return
		}
		var in CreateReq
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "object_key required"})
			return
		}
		ctx := c.Request.Context()
		id := uuid.New().String()
		if err := store.CreateRun(ctx, a.DB, id, in.ObjectKey); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		data, _ := json.Marshal(runJob{RunID: id, ObjectKey: in.ObjectKey})
		payload, _ := json.Marshal(job{Type: "run_pipeline", Data: data})
		if err := a.Q.LPush(ctx, "jobs", payload).Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": id, "status": store.StatusQueued})
	}
}

// Artifact redirects to a presigned download URL for one run artifact.
// Artifacts are addressed by the name recorded in the run ledger, e.g.
// gold_sla_issues.csv.
func Artifact(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Presign == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "downloads unavailable on this store"})
			return
		}
		r, err := store.GetRun(c.Request.Context(), a.DB, c.Param("id"))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		name := c.Param("name")
		key, ok := r.Artifacts[name]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown artifact"})
			return
		}
		u, err := a.Presign.PresignGet(c.Request.Context(), key, path.Base(key), 15*time.Minute)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Redirect(http.StatusFound, u)
	}
}

// Get returns one run with its status and artifact keys.
func Get(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := store.GetRun(c.Request.Context(), a.DB, c.Param("id"))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, r)
	}
}
