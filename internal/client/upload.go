package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const DefaultUploadField = "file"

// File is a single file to upload
type File struct {
	Name        string // file name sent in the Content-Disposition header
	ContentType string // optional, defaults to application/octet-stream
	Reader      io.Reader
}

// OpenFile opens path for upload. The caller must close the returned file once the upload has completed.
func OpenFile(path string) (File, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, nil, fmt.Errorf("opening upload file: %w", err)
	}
	return File{
		Name:   filepath.Base(path),
		Reader: f,
	}, f, nil
}

// UploadFile sends one file as multipart/form-data under fieldName ("file" when empty),
// with each entry of extra added as an ordinary form field.
// The multipart content type replaces the JSON default for this call only.
func UploadFile[T any](ctx context.Context, c *Client, endpoint string, file File, fieldName string, extra map[string]string, opts ...CallOption) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = unexpected[T](c, http.MethodPost, endpoint, fmt.Errorf("panic: %v", r))
		}
	}()

	body, contentType, err := multipartBody(file, fieldName, extra)
	if err != nil {
		return unexpected[T](c, http.MethodPost, endpoint, err)
	}

	cc := newCallConfig(opts)
	cc.header.Set("Content-Type", contentType)

	return send[T](ctx, c, http.MethodPost, endpoint, body, cc)
}

func multipartBody(file File, fieldName string, extra map[string]string) (*bytes.Buffer, string, error) {
	if file.Reader == nil {
		return nil, "", fmt.Errorf("upload file %q has no content", file.Name)
	}
	if fieldName == "" {
		fieldName = DefaultUploadField
	}
	name := file.Name
	if name == "" {
		name = fieldName
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	var part io.Writer
	var err error
	if file.ContentType == "" {
		part, err = w.CreateFormFile(fieldName, name)
	} else {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(fieldName), escapeQuotes(name)))
		h.Set("Content-Type", file.ContentType)
		part, err = w.CreatePart(h)
	}
	if err != nil {
		return nil, "", fmt.Errorf("creating multipart file part: %w", err)
	}
	if _, err := io.Copy(part, file.Reader); err != nil {
		return nil, "", fmt.Errorf("reading upload file %q: %w", name, err)
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, extra[k]); err != nil {
			return nil, "", fmt.Errorf("writing multipart field %q: %w", k, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
