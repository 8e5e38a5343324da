package testutil

import (
	"bytes"
	"mime/multipart"
	"testing"
	"time"

	"github.com/Baaaki/songshare/internal/models"
	"github.com/Baaaki/songshare/internal/utils"
)

// BearerToken signs a token for user and returns the Authorization value
func BearerToken(t *testing.T, user *models.User, secret string) string {
	t.Helper()
	token, err := utils.GenerateToken(user, secret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return "Bearer " + token
}

// FilePart is one file field of a multipart form
type FilePart struct {
	Field    string
	Filename string
	Content  []byte
}

// MultipartBody encodes fields and files and returns the body with its
// Content-Type header value.
func MultipartBody(t *testing.T, fields map[string]string, files ...FilePart) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			t.Fatalf("Failed to write field %s: %v", name, err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			t.Fatalf("Failed to create file part %s: %v", f.Field, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			t.Fatalf("Failed to write file part %s: %v", f.Field, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	return body, mw.FormDataContentType()
}
