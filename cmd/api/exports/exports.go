// Package exports issues presigned upload URLs for raw issue exports.
package exports

import (
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apppkg "github.com/trackops/slapipe/cmd/api/app"
)

// PresignReq names the file the client wants to upload.
type PresignReq struct {
	Filename string `json:"filename" binding:"required"`
}

// Presign returns a short-lived PUT URL under raw/ plus the object key to
// submit with POST /runs once the upload finishes.
func Presign(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Presign == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "uploads unavailable on this store"})
			return
		}
		var in PresignReq
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "filename required"})
			return
		}
		key := "raw/" + uuid.New().String() + "_" + path.Base(in.Filename)
		u, err := a.Presign.PresignPut(c.Request.Context(), key, 15*time.Minute)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"object_key": key, "url": u})
	}
}
