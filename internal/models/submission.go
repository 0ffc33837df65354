package models

import (
	"fmt"
	"strings"
)

const (
	// SubjectPrefix precedes the submitter's name in every relayed email.
	SubjectPrefix = "촬영 문의"

	SuccessMessage = "문의가 성공적으로 전송되었습니다!"
	FailureMessage = "문의 전송에 실패했습니다."
)

// SubmissionRequest is one inquiry form post. Every text field is optional;
// missing values render as empty strings.
type SubmissionRequest struct {
	ID            string     `json:"-" form:"-"`
	Name          string     `json:"name" form:"name"`
	Contact       string     `json:"contact" form:"contact"`
	Person        string     `json:"person" form:"person"`
	Character     string     `json:"character" form:"character"`
	Location      string     `json:"location" form:"location"`
	Date          string     `json:"date" form:"date"`
	ContactMethod string     `json:"contactMethod" form:"contactMethod"`
	SNSID         string     `json:"snsid" form:"snsid"`
	Message       string     `json:"message" form:"message"`
	Files         []FilePart `json:"-" form:"-"`
}

// FilePart is an uploaded file held fully in memory.
type FilePart struct {
	OriginalName string
	Content      []byte
}

// OutboundEmail is the message handed to the mailer for a single submission.
type OutboundEmail struct {
	From        string
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

type Attachment struct {
	Filename string
	Content  []byte
}

// bodyLines fixes the order and labels of the fields in the email body.
var bodyLines = []struct {
	label string
	value func(SubmissionRequest) string
}{
	{"SNS 계정", func(s SubmissionRequest) string { return s.Name }},
	{"촬영 종류", func(s SubmissionRequest) string { return s.Contact }},
	{"촬영 인원", func(s SubmissionRequest) string { return s.Person }},
	{"촬영 캐릭터/컨셉", func(s SubmissionRequest) string { return s.Character }},
	{"희망 촬영 장소", func(s SubmissionRequest) string { return s.Location }},
	{"희망 촬영일", func(s SubmissionRequest) string { return s.Date }},
	{"연락 수단", func(s SubmissionRequest) string { return s.ContactMethod }},
	{"SNS ID", func(s SubmissionRequest) string { return s.SNSID }},
}

// Subject builds the email subject line for the submission.
func (s SubmissionRequest) Subject() string {
	return fmt.Sprintf("%s - %s", SubjectPrefix, s.Name)
}

// Body renders the fixed plain-text template.
func (s SubmissionRequest) Body() string {
	var sb strings.Builder
	for _, line := range bodyLines {
		fmt.Fprintf(&sb, "%s: %s\n", line.label, line.value(s))
	}
	sb.WriteString("\n문의사항:\n")
	sb.WriteString(s.Message)
	sb.WriteString("\n")
	return sb.String()
}

// TotalFileSize sums the size of every uploaded file.
func (s SubmissionRequest) TotalFileSize() int {
	total := 0
	for _, f := range s.Files {
		total += len(f.Content)
	}
	return total
}

// NewOutboundEmail builds the email for a submission. Attachments keep the
// upload order, original filenames and raw bytes.
func NewOutboundEmail(s SubmissionRequest, from, to string) OutboundEmail {
	attachments := make([]Attachment, 0, len(s.Files))
	for _, f := range s.Files {
		attachments = append(attachments, Attachment{
			Filename: f.OriginalName,
			Content:  f.Content,
		})
	}

	return OutboundEmail{
		From:        from,
		To:          to,
		Subject:     s.Subject(),
		Body:        s.Body(),
		Attachments: attachments,
	}
}
