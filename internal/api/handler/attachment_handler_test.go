package handler

import (
	"Courier/internal/api/dto"
	"Courier/internal/model"
	"Courier/internal/pkg/consts"
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeAttachmentStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeAttachmentStore() *fakeAttachmentStore {
	return &fakeAttachmentStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeAttachmentStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	f.objects[objectName] = data
	f.types[objectName] = contentType
	return objectName, nil
}

func (f *fakeAttachmentStore) PublicURL(objectName string) string {
	return "https://files.example.com/" + objectName
}

func uploadRequest(t *testing.T, h *AttachmentHandler, filename string, content []byte) dto.Response {
	t.Helper()
	gin.SetMode(gin.TestMode)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(content)
	_ = mw.Close()

	r := gin.New()
	r.POST("/attachments", func(c *gin.Context) {
		c.Set(consts.UserIDKey, "alice")
		c.Next()
	}, h.Upload)

	req := httptest.NewRequest(http.MethodPost, "/attachments", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp dto.Response
	if err = json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestAttachmentUploadImage(t *testing.T) {
	store := newFakeAttachmentStore()
	h := NewAttachmentHandler(store, 1<<20)

	resp := uploadRequest(t, h, "photo.png", append(pngHeader, make([]byte, 64)...))
	if resp.Code != 200 {
		t.Fatalf("code = %d (%s)", resp.Code, resp.Message)
	}
	data, _ := resp.Data.(map[string]any)
	if data["message_type"] != model.MessageTypeImage || data["mime_type"] != "image/png" {
		t.Fatalf("data = %v", data)
	}
	url, _ := data["file_url"].(string)
	if !strings.HasPrefix(url, "https://files.example.com/alice/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("file_url = %s", url)
	}
	if len(store.objects) != 1 {
		t.Fatalf("stored %d objects", len(store.objects))
	}
	for _, obj := range store.objects {
		if !bytes.HasPrefix(obj, pngHeader) {
			t.Fatal("stored object should keep the sniffed header bytes")
		}
	}
}

func TestAttachmentUploadPlainTextIsFile(t *testing.T) {
	h := NewAttachmentHandler(newFakeAttachmentStore(), 1<<20)
	resp := uploadRequest(t, h, "notes.txt", []byte("meeting notes for friday"))
	data, _ := resp.Data.(map[string]any)
	if resp.Code != 200 || data["message_type"] != model.MessageTypeFile {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestAttachmentUploadRejections(t *testing.T) {
	cases := []struct {
		name     string
		store    *fakeAttachmentStore
		maxSize  int64
		filename string
		content  []byte
		wantCode int
	}{
		{"too large", newFakeAttachmentStore(), 8, "big.png", append(pngHeader, make([]byte, 64)...), 400},
		{"unsupported type", newFakeAttachmentStore(), 1 << 20, "tool.bin", []byte{0x00, 0x01, 0x02, 0xff, 0xfe}, 400},
		{"store down", &fakeAttachmentStore{err: errors.New("connection refused")}, 1 << 20, "photo.png", append(pngHeader, make([]byte, 8)...), 503},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := uploadRequest(t, NewAttachmentHandler(tc.store, tc.maxSize), tc.filename, tc.content)
			if resp.Code != tc.wantCode {
				t.Fatalf("code = %d (%s), want %d", resp.Code, resp.Message, tc.wantCode)
			}
		})
	}
}
