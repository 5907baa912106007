package api

import (
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/eq-labs/interactions-gateway/pkg/auth"
	"github.com/eq-labs/interactions-gateway/pkg/models"
	"github.com/eq-labs/interactions-gateway/pkg/pipeline"
)

// cleanTextHandler handles POST /v1/text/clean.
// Cleans raw text synchronously and fans the interaction out in the
// background.
func (s *Server) cleanTextHandler(c *echo.Context) error {
	rc, ok := auth.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	var req CleanTextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text must not be empty")
	}

	cleaned := s.cleaner.Clean(c.Request().Context(), req.Text)

	source := req.Source
	if source == "" {
		source = models.SourceAPI
	}
	extras := map[string]any{}
	for k, v := range req.Metadata {
		extras[k] = v
	}

	env := models.EnvelopeV1{
		SchemaVersion:   models.SchemaVersionV1,
		TenantID:        rc.TenantID,
		UserID:          rc.UserID,
		AccountID:       optional(rc.AccountID),
		InteractionType: models.InteractionTypeNote,
		Content:         models.Content{Text: cleaned, Format: models.ContentFormatPlain},
		Timestamp:       time.Now().UTC(),
		Source:          source,
		Extras:          identityExtras(rc, extras),
		InteractionID:   rc.InteractionID,
		TraceID:         rc.TraceID,
	}

	s.fork.Dispatch(c.Request().Context(), pipeline.Input{Envelope: env})

	return c.JSON(http.StatusOK, &CleanTextResponse{
		RawText:       req.Text,
		CleanedText:   cleaned,
		InteractionID: env.InteractionID.String(),
		TraceID:       rc.TraceID,
	})
}
