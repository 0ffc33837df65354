package api

import (
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/illegalcall/inquiry-relay/internal/metrics"
	"github.com/illegalcall/inquiry-relay/internal/models"
)

// handleSubmit relays one inquiry form to the configured recipient. The
// client only ever sees the fixed success or failure text.
func (s *Server) handleSubmit(c *fiber.Ctx) error {
	var submission models.SubmissionRequest
	if err := c.BodyParser(&submission); err != nil {
		s.logger.Warn("Invalid submission body", "error", err)
		s.metrics.Submissions.WithLabelValues(metrics.OutcomeRejected).Inc()
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	submission.ID = uuid.NewString()
	logger := s.logger.With("submission_id", submission.ID)

	files, err := readFiles(c, s.cfg.Upload.FieldName)
	if err != nil {
		logger.Error("Failed to read uploaded files", "error", err)
		s.metrics.Submissions.WithLabelValues(metrics.OutcomeFailed).Inc()
		return c.Status(fiber.StatusInternalServerError).SendString(models.FailureMessage)
	}
	submission.Files = files

	logger.Info("Submission received",
		"name", submission.Name,
		"contact", submission.Contact,
		"contact_method", submission.ContactMethod,
		"files", len(submission.Files),
		"bytes", submission.TotalFileSize(),
	)

	email := models.NewOutboundEmail(submission, s.cfg.Mail.User, s.cfg.Mail.Recipient)

	started := time.Now()
	err = s.mailer.Send(c.UserContext(), email)
	s.metrics.SendDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		logger.Error("Failed to send submission email", "error", err)
		s.metrics.Submissions.WithLabelValues(metrics.OutcomeFailed).Inc()
		return c.Status(fiber.StatusInternalServerError).SendString(models.FailureMessage)
	}

	s.metrics.Submissions.WithLabelValues(metrics.OutcomeSent).Inc()
	s.metrics.Attachments.Add(float64(len(email.Attachments)))
	s.metrics.UploadBytes.Add(float64(submission.TotalFileSize()))

	logger.Info("Submission relayed", "attachments", len(email.Attachments))
	return c.Status(fiber.StatusOK).SendString(models.SuccessMessage)
}

// readFiles returns the uploaded files under field in upload order. Requests
// that are not multipart, or carry no files, yield an empty list.
func readFiles(c *fiber.Ctx, field string) ([]models.FilePart, error) {
	if !isMultipart(c) {
		return nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	headers := form.File[field]
	parts := make([]models.FilePart, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open upload %q: %w", header.Filename, err)
		}
		content, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read upload %q: %w", header.Filename, err)
		}
		parts = append(parts, models.FilePart{
			OriginalName: header.Filename,
			Content:      content,
		})
	}

	return parts, nil
}
