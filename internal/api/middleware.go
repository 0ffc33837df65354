package api

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/inquiry-relay/internal/config"
	"github.com/illegalcall/inquiry-relay/internal/metrics"
)

// originGuard rejects cross-origin requests from origins outside the
// allow-list. Requests without an Origin header pass through; an empty
// allow-list rejects every request that carries one.
func originGuard(allowedOrigins []string) fiber.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[normalizeOrigin(origin)] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" {
			return c.Next()
		}
		if _, ok := allowed[normalizeOrigin(origin)]; ok {
			return c.Next()
		}
		return fiber.NewError(fiber.StatusForbidden, "Origin not allowed")
	}
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

// enforceUploadLimits checks the file parts of a multipart submission before
// the handler runs: only the configured field may carry files, at most
// MaxFiles of them, each no larger than MaxFileSize.
func enforceUploadLimits(limits config.UploadConfig, mt *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !isMultipart(c) {
			return c.Next()
		}

		form, err := c.MultipartForm()
		if err != nil {
			mt.Submissions.WithLabelValues(metrics.OutcomeRejected).Inc()
			return fiber.NewError(fiber.StatusBadRequest, "Malformed multipart form")
		}

		for field, headers := range form.File {
			if field != limits.FieldName {
				mt.Submissions.WithLabelValues(metrics.OutcomeRejected).Inc()
				return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Unexpected file field %q", field))
			}
			if len(headers) > limits.MaxFiles {
				mt.Submissions.WithLabelValues(metrics.OutcomeRejected).Inc()
				return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Too many files: at most %d allowed", limits.MaxFiles))
			}
			for _, header := range headers {
				if header.Size > limits.MaxFileSize {
					mt.Submissions.WithLabelValues(metrics.OutcomeRejected).Inc()
					return fiber.NewError(fiber.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the limit of %d bytes", limits.MaxFileSize))
				}
			}
		}

		return c.Next()
	}
}

func isMultipart(c *fiber.Ctx) bool {
	contentType := strings.ToLower(string(c.Request().Header.ContentType()))
	return strings.HasPrefix(contentType, fiber.MIMEMultipartForm)
}
