package handler

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/toolnest/toolnest/internal/provider"
	"github.com/toolnest/toolnest/internal/service"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func multipartBody(t *testing.T, fields map[string]string, fileName string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if file != nil {
		fw, err := mw.CreateFormFile("image_file", fileName)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(file)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf, mw.FormDataContentType()
}

func TestSummarize(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.seedUser(t, "alice")
	created := env.seedKey(t, alice.ID, "k1")

	rr := env.do(t, "POST", "/api/v1/ai-tools/summarize", toJSON(t, map[string]interface{}{
		"text":             strings.Repeat("a", 120),
		"mode":             "bullet_points",
		"extract_keywords": true,
	}), apiKey(created.Secret)...)
	assertStatus(t, rr, http.StatusOK)

	var res provider.SummarizeResult
	decodeJSON(t, rr, &res)
	if res.Summary != "short" {
		t.Errorf("summary = %q", res.Summary)
	}
	if env.tools.summarizeReq.Mode != provider.SummaryBulletPoints || !env.tools.summarizeReq.ExtractKeywords {
		t.Errorf("request not forwarded: %+v", env.tools.summarizeReq)
	}
}

func TestAITools_RequireCredentials(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"summarize", "paraphrase", "image-to-text"} {
		rr := env.do(t, "POST", "/api/v1/ai-tools/"+path, strings.NewReader(`{}`))
		assertStatus(t, rr, http.StatusUnauthorized)
	}

	rr := env.do(t, "POST", "/api/v1/ai-tools/summarize", strings.NewReader(`{}`), apiKey("tn_doesnotexist")...)
	assertStatus(t, rr, http.StatusUnauthorized)
	if msg := errorMessage(t, rr); !strings.HasPrefix(msg, "Invalid API key") {
		t.Errorf("message = %q", msg)
	}
}

func TestAITools_RevokedKey(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.seedUser(t, "alice")
	created := env.seedKey(t, alice.ID, "k1")

	body := `{"text":"hello there world"}`
	rr := env.do(t, "POST", "/api/v1/ai-tools/paraphrase", strings.NewReader(body), apiKey(created.Secret)...)
	assertStatus(t, rr, http.StatusOK)

	if _, err := env.keys.Revoke(context.Background(), created.Key.ID, alice.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	rr = env.do(t, "POST", "/api/v1/ai-tools/paraphrase", strings.NewReader(body), apiKey(created.Secret)...)
	assertStatus(t, rr, http.StatusUnauthorized)
	if msg := errorMessage(t, rr); !strings.Contains(msg, "revoked") {
		t.Errorf("message = %q, want it to mention revocation", msg)
	}
}

func TestAITools_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "alice")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", service.ValidationError("text must be at least 100 characters"), http.StatusBadRequest},
		{"upstream", &provider.Error{Op: provider.OpSummarize, StatusCode: 500, Err: fmt.Errorf("bad gateway")}, http.StatusBadGateway},
		{"timeout", &provider.Error{Op: provider.OpSummarize, Timeout: true, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.tools.err = tt.err
			rr := env.do(t, "POST", "/api/v1/ai-tools/summarize", strings.NewReader(`{"text":"x"}`), bearer(token)...)
			assertStatus(t, rr, tt.want)
		})
	}
}

func TestImageToText_JSON(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "alice")

	rr := env.do(t, "POST", "/api/v1/ai-tools/image-to-text",
		strings.NewReader(`{"image_url":"https://example.com/cat.png","mode":"ocr"}`), bearer(token)...)
	assertStatus(t, rr, http.StatusOK)
	if env.tools.imageReq.ImageURL != "https://example.com/cat.png" || env.tools.imageReq.Mode != "ocr" {
		t.Errorf("request not forwarded: %+v", env.tools.imageReq)
	}

	rr = env.do(t, "POST", "/api/v1/ai-tools/image-to-text", strings.NewReader(`{}`), bearer(token)...)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestImageToText_Upload(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "alice")

	body, contentType := multipartBody(t, map[string]string{"mode": "description", "detail_level": "brief"}, "cat.png", pngHeader)
	rr := env.do(t, "POST", "/api/v1/ai-tools/image-to-text", body,
		append(bearer(token), "Content-Type", contentType)...)
	assertStatus(t, rr, http.StatusOK)
	if !bytes.Equal(env.tools.imageReq.ImageData, pngHeader) || env.tools.imageReq.DetailLevel != "brief" {
		t.Errorf("upload not forwarded: mode=%q detail=%q len=%d",
			env.tools.imageReq.Mode, env.tools.imageReq.DetailLevel, len(env.tools.imageReq.ImageData))
	}
}

func TestImageToText_UploadErrors(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "alice")

	tooLarge := make([]byte, provider.MaxImageSize+1)
	copy(tooLarge, pngHeader)

	tests := []struct {
		name string
		file []byte
		want int
	}{
		{"too large", tooLarge, http.StatusRequestEntityTooLarge},
		{"not an image", []byte("%PDF-1.4 this is a document"), http.StatusUnsupportedMediaType},
		{"empty file", []byte{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, nil, "upload.bin", tt.file)
			rr := env.do(t, "POST", "/api/v1/ai-tools/image-to-text", body,
				append(bearer(token), "Content-Type", contentType)...)
			assertStatus(t, rr, tt.want)
		})
	}

	t.Run("both sources", func(t *testing.T) {
		body, contentType := multipartBody(t, map[string]string{"image_url": "https://example.com/a.png"}, "a.png", pngHeader)
		rr := env.do(t, "POST", "/api/v1/ai-tools/image-to-text", body,
			append(bearer(token), "Content-Type", contentType)...)
		assertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("unsupported content type", func(t *testing.T) {
		rr := env.do(t, "POST", "/api/v1/ai-tools/image-to-text", strings.NewReader("hello"),
			append(bearer(token), "Content-Type", "text/plain")...)
		assertStatus(t, rr, http.StatusUnsupportedMediaType)
	})
}
