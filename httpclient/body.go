package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/textproto"
	"strings"

	"github.com/goccy/go-json"
)

const contentTypeJSON = "application/json"

// Form is a multipart/form-data body. The client sets the boundary content
// type itself; a JSON content type is never sent with a Form.
type Form struct {
	fields []formField
	files  []formFile
}

type formField struct {
	name  string
	value string
}

type formFile struct {
	field       string
	fileName    string
	contentType string
	content     io.Reader
}

// NewForm creates an empty multipart body.
func NewForm() *Form {
	return &Form{}
}

// AddField appends a text field.
func (f *Form) AddField(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// AddFile appends a file part. contentType defaults to application/octet-stream.
func (f *Form) AddFile(field, fileName, contentType string, content io.Reader) *Form {
	f.files = append(f.files, formFile{field: field, fileName: fileName, contentType: contentType, content: content})
	return f
}

// encode renders the form once; file readers are consumed.
func (f *Form) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, field := range f.fields {
		if err := w.WriteField(field.name, field.value); err != nil {
			return nil, "", err
		}
	}

	for _, file := range f.files {
		if file.content == nil {
			return nil, "", fmt.Errorf("file %q has no content", file.fileName)
		}
		ct := file.contentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(file.field), escapeQuotes(file.fileName)))
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file.content); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// payload is an encoded request body reused across attempts.
type payload struct {
	body        []byte
	contentType string
	multipart   bool
}

func encodeBody(method string, body any) (*payload, error) {
	if body == nil || method == nethttp.MethodGet || method == nethttp.MethodHead {
		return &payload{}, nil
	}

	switch v := body.(type) {
	case *Form:
		raw, ct, err := v.encode()
		if err != nil {
			return nil, err
		}
		return &payload{body: raw, contentType: ct, multipart: true}, nil
	case string:
		return &payload{body: []byte(v)}, nil
	case []byte:
		return &payload{body: v}, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return &payload{body: raw}, nil
	}
}

func (p *payload) reader() io.Reader {
	if len(p.body) == 0 {
		return nil
	}
	return bytes.NewReader(p.body)
}

// isJSONContentType matches application/json and any +json media type.
func isJSONContentType(ct string) bool {
	mt, _, _ := strings.Cut(ct, ";")
	mt = strings.ToLower(strings.TrimSpace(mt))
	return mt == contentTypeJSON || strings.HasSuffix(mt, "+json")
}
