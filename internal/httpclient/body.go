package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"mime"
	"mime/multipart"
	"net/url"
	"slices"
	"strings"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// Multipart is a binary form body. Its Content-Type, including the boundary,
// is always computed by the encoder; callers must not set one.
type Multipart struct {
	Fields map[string]string
	Files  []FormFile
}

type FormFile struct {
	Field    string
	Filename string
	Content  []byte
}

func (m *Multipart) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, k := range slices.Sorted(maps.Keys(m.Fields)) {
		if err := w.WriteField(k, m.Fields[k]); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %q: %w", k, err)
		}
	}
	for _, f := range m.Files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file %q: %w", f.Field, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("failed to write form file %q: %w", f.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// encodeBody picks the wire encoding for body. declared is the Content-Type
// the caller set, if any. The returned content type is empty when the
// caller's header should be left alone.
func encodeBody(body any, declared string) ([]byte, string, error) {
	mediaType := mediaTypeOf(declared)

	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *Multipart:
		if declared != "" {
			return nil, "", fmt.Errorf("%w: multipart body with explicit Content-Type %q", ErrInvalidBody, declared)
		}
		return b.encode()
	case string:
		if declared != "" {
			return []byte(b), "", nil
		}
		return []byte(b), ContentTypeForm, nil
	case []byte:
		return b, "", nil
	case url.Values:
		if mediaType != "" && mediaType != ContentTypeForm {
			return nil, "", fmt.Errorf("%w: form values with Content-Type %q", ErrInvalidBody, declared)
		}
		return []byte(b.Encode()), ContentTypeForm, nil
	case io.Reader:
		return nil, "", fmt.Errorf("%w: streaming bodies cannot be replayed", ErrInvalidBody)
	}

	if mediaType == ContentTypeForm {
		vals, err := formValues(body)
		if err != nil {
			return nil, "", err
		}
		return []byte(vals.Encode()), ContentTypeForm, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return data, ContentTypeJSON, nil
}

func mediaTypeOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// formValues re-encodes a structured map with URL form rules. Nested maps
// use bracket keys (a[b]=c); slices repeat the key.
func formValues(body any) (url.Values, error) {
	vals := url.Values{}
	switch v := body.(type) {
	case map[string]string:
		for k, s := range v {
			vals.Set(k, s)
		}
	case map[string][]string:
		for k, ss := range v {
			for _, s := range ss {
				vals.Add(k, s)
			}
		}
	case map[string]any:
		for k, x := range v {
			addFormValue(vals, k, x)
		}
	default:
		return nil, fmt.Errorf("%w: %T cannot be form encoded", ErrInvalidBody, body)
	}
	return vals, nil
}

func addFormValue(vals url.Values, key string, v any) {
	switch x := v.(type) {
	case nil:
		vals.Add(key, "")
	case string:
		vals.Add(key, x)
	case []string:
		for _, s := range x {
			vals.Add(key, s)
		}
	case []any:
		for _, e := range x {
			addFormValue(vals, key, e)
		}
	case map[string]any:
		for k, e := range x {
			addFormValue(vals, key+"["+k+"]", e)
		}
	default:
		vals.Add(key, fmt.Sprint(x))
	}
}
