package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-api/apperr"
	"github.com/LovationAdmin/finance-api/logger"
	"github.com/LovationAdmin/finance-api/middleware"
	"github.com/LovationAdmin/finance-api/pagination"
	"github.com/LovationAdmin/finance-api/sanitize"
	"github.com/LovationAdmin/finance-api/utils"
)

const maxBodyBytes = 1 << 20

// respondError writes err as a JSON error. Only deliberate service errors
// reach the client; anything else is logged and reported as a 500.
func respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal(err)
	}

	log := logger.FromContext(c.Request.Context())
	if appErr.Kind == apperr.KindInternal {
		log.Error().
			Err(err).
			Str("owner", utils.MaskID(middleware.GetUserID(c))).
			Str("path", utils.MaskPath(c.Request.URL.Path)).
			Msg("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": appErr.Message})
		return
	}

	if apperr.IsValidation(appErr) {
		log.Debug().Str("field", appErr.Field).Msg("input rejected")
	}
	body := gin.H{"error": appErr.Message}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	c.AbortWithStatusJSON(appErr.Kind.Status(), body)
}

// ownerID returns the authenticated user or answers 401.
func ownerID(c *gin.Context) (string, bool) {
	id := middleware.GetUserID(c)
	if id == "" {
		respondError(c, apperr.Unauthorized())
		return "", false
	}
	return id, true
}

func readPayload(c *gin.Context) (sanitize.Payload, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation("body", "request body too large")
		}
		return nil, err
	}
	return sanitize.Decode(body)
}

func pageParams(c *gin.Context) (pagination.Params, error) {
	return pagination.Parse(c.Query("page"), c.Query("pageSize"))
}

func deleted(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
