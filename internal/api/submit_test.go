package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/inquiry-relay/internal/mailer"
	"github.com/illegalcall/inquiry-relay/internal/metrics"
	"github.com/illegalcall/inquiry-relay/internal/models"
)

type testFile struct {
	field   string
	name    string
	content []byte
}

func newSubmitRequest(t *testing.T, fields map[string]string, files []testFile) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for _, f := range files {
		field := f.field
		if field == "" {
			field = "files"
		}
		part, err := writer.CreateFormFile(field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(fiber.MethodPost, "/api/submit", body)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	return req
}

func sentEmail(t *testing.T, m *MockMailer) models.OutboundEmail {
	t.Helper()
	require.Len(t, m.Calls, 1)
	email, ok := m.Calls[0].Arguments.Get(1).(models.OutboundEmail)
	require.True(t, ok)
	return email
}

func TestSubmit_RelaysForm(t *testing.T) {
	mockMailer := &MockMailer{}
	mockMailer.On("Send", mock.Anything, mock.AnythingOfType("models.OutboundEmail")).Return(nil)
	server, mt := setupTestServer(t, mockMailer)

	resp, err := server.app.Test(newSubmitRequest(t, map[string]string{
		"name":          "alice",
		"contact":       "portrait",
		"person":        "2",
		"character":     "knight",
		"location":      "Seoul",
		"date":          "2024-05-01",
		"contactMethod": "kakao",
		"snsid":         "@alice",
		"message":       "hi",
	}, nil), -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, models.SuccessMessage, readBody(t, resp))
	mockMailer.AssertNumberOfCalls(t, "Send", 1)

	email := sentEmail(t, mockMailer)
	assert.Equal(t, "relay@studio.example", email.From)
	assert.Equal(t, "owner@studio.example", email.To)
	assert.Equal(t, "촬영 문의 - alice", email.Subject)
	assert.Contains(t, email.Body, "SNS 계정: alice\n")
	assert.Contains(t, email.Body, "희망 촬영 장소: Seoul\n")
	assert.Contains(t, email.Body, "SNS ID: @alice\n")
	assert.True(t, strings.HasSuffix(email.Body, "\n문의사항:\nhi\n"))
	assert.Empty(t, email.Attachments)

	assert.Equal(t, 1.0, testutil.ToFloat64(mt.Submissions.WithLabelValues(metrics.OutcomeSent)))
}

func TestSubmit_MissingFieldsRenderEmpty(t *testing.T) {
	mockMailer := &MockMailer{}
	mockMailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	server, _ := setupTestServer(t, mockMailer)

	resp, err := server.app.Test(newSubmitRequest(t, map[string]string{}, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	email := sentEmail(t, mockMailer)
	assert.Equal(t, "촬영 문의 - ", email.Subject)
	assert.Contains(t, email.Body, "SNS 계정: \n")
}

func TestSubmit_AttachmentsPreserved(t *testing.T) {
	mockMailer := &MockMailer{}
	mockMailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	server, mt := setupTestServer(t, mockMailer)

	files := []testFile{
		{name: "first.jpg", content: []byte{0xff, 0xd8, 0xff, 0x00, 0x01}},
		{name: "견적서.pdf", content: []byte("%PDF-1.4 body")},
		{name: "notes", content: []byte("plain text\r\nwith CRLF")},
	}
	resp, err := server.app.Test(newSubmitRequest(t, map[string]string{"name": "bob"}, files), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	email := sentEmail(t, mockMailer)
	require.Len(t, email.Attachments, len(files))
	for i, f := range files {
		assert.Equal(t, f.name, email.Attachments[i].Filename)
		assert.Equal(t, f.content, email.Attachments[i].Content)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(mt.Attachments))
}

func TestSubmit_MaxFilesAccepted(t *testing.T) {
	mockMailer := &MockMailer{}
	mockMailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	server, _ := setupTestServer(t, mockMailer)

	files := make([]testFile, 10)
	for i := range files {
		files[i] = testFile{name: fmt.Sprintf("photo-%d.png", i), content: bytes.Repeat([]byte{byte(i)}, 1024)}
	}
	resp, err := server.app.Test(newSubmitRequest(t, map[string]string{"name": "carol"}, files), -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, sentEmail(t, mockMailer).Attachments, 10)
}

func TestSubmit_UploadLimits(t *testing.T) {
	tooMany := make([]testFile, 11)
	for i := range tooMany {
		tooMany[i] = testFile{name: fmt.Sprintf("photo-%d.png", i), content: []byte("x")}
	}

	tests := []struct {
		name           string
		files          []testFile
		expectedStatus int
	}{
		{
			name:           "more files than allowed",
			files:          tooMany,
			expectedStatus: fiber.StatusBadRequest,
		},
		{
			name:           "file larger than allowed",
			files:          []testFile{{name: "big.bin", content: bytes.Repeat([]byte("a"), 1025)}},
			expectedStatus: fiber.StatusRequestEntityTooLarge,
		},
		{
			name:           "file under another field",
			files:          []testFile{{field: "avatar", name: "me.png", content: []byte("x")}},
			expectedStatus: fiber.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockMailer := &MockMailer{}
			server, mt := setupTestServer(t, mockMailer)

			resp, err := server.app.Test(newSubmitRequest(t, map[string]string{"name": "dave"}, tt.files), -1)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			mockMailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
			assert.Equal(t, 1.0, testutil.ToFloat64(mt.Submissions.WithLabelValues(metrics.OutcomeRejected)))
		})
	}
}

func TestSubmit_MailerFailureIsOpaque(t *testing.T) {
	mockMailer := &MockMailer{}
	mockMailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("535 authentication failed for relay@studio.example"))
	server, mt := setupTestServer(t, mockMailer)

	resp, err := server.app.Test(newSubmitRequest(t, map[string]string{"name": "erin"}, nil), -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	body := readBody(t, resp)
	assert.Equal(t, models.FailureMessage, body)
	assert.NotContains(t, body, "535")
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.Submissions.WithLabelValues(metrics.OutcomeFailed)))
}

func TestSubmit_MissingCredentialsFailsUniformly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mail.User = ""
	cfg.Mail.Password = ""
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewServer(cfg, mailer.NewSMTPMailer(cfg.Mail, logger), metrics.New(), logger)

	resp, err := server.app.Test(newSubmitRequest(t, map[string]string{"name": "frank"}, nil), -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, models.FailureMessage, readBody(t, resp))
}

func TestSubmit_URLEncodedBody(t *testing.T) {
	mockMailer := &MockMailer{}
	mockMailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	server, _ := setupTestServer(t, mockMailer)

	form := url.Values{"name": {"gina"}, "message": {"no files"}}
	req := httptest.NewRequest(fiber.MethodPost, "/api/submit", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)

	resp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	email := sentEmail(t, mockMailer)
	assert.Equal(t, "촬영 문의 - gina", email.Subject)
	assert.Empty(t, email.Attachments)
}

func TestSubmit_JSONBody(t *testing.T) {
	mockMailer := &MockMailer{}
	mockMailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	server, _ := setupTestServer(t, mockMailer)

	req := httptest.NewRequest(fiber.MethodPost, "/api/submit", strings.NewReader(`{"name":"hana","contactMethod":"email","message":"json"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	email := sentEmail(t, mockMailer)
	assert.Equal(t, "촬영 문의 - hana", email.Subject)
	assert.Contains(t, email.Body, "연락 수단: email\n")
}

func TestSubmit_UnparsableBody(t *testing.T) {
	mockMailer := &MockMailer{}
	server, _ := setupTestServer(t, mockMailer)

	req := httptest.NewRequest(fiber.MethodPost, "/api/submit", strings.NewReader("just text"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMETextPlain)

	resp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	mockMailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSubmit_DisallowedOriginNeverReachesMailer(t *testing.T) {
	mockMailer := &MockMailer{}
	server, _ := setupTestServer(t, mockMailer)

	req := newSubmitRequest(t, map[string]string{"name": "ivan"}, nil)
	req.Header.Set(fiber.HeaderOrigin, "https://evil.example")

	resp, err := server.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	mockMailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
