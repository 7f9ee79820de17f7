package models

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"
)

type ContentKind int

const (
	ContentNone ContentKind = iota
	ContentJSON
	ContentOpaque
)

func (k ContentKind) String() string {
	switch k {
	case ContentJSON:
		return "json"
	case ContentOpaque:
		return "opaque"
	}
	return "none"
}

var ErrContentMissing = errors.New("content is missing")

// Content is the payload of a report. JSON content is kept as the raw
// document, anything else is kept as bytes and written out base64 encoded.
type Content struct {
	Kind   ContentKind
	JSON   json.RawMessage
	Opaque []byte
}

func JSONContent(raw json.RawMessage) Content {
	return Content{Kind: ContentJSON, JSON: raw}
}

func OpaqueContent(b []byte) Content {
	return Content{Kind: ContentOpaque, Opaque: b}
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ContentJSON:
		if len(c.JSON) == 0 {
			return []byte("null"), nil
		}
		return c.JSON, nil
	case ContentOpaque:
		return json.Marshal(base64.StdEncoding.EncodeToString(c.Opaque))
	}
	return []byte("null"), nil
}

// UnmarshalJSON reads a stored document back. Strings are opaque content,
// every other JSON value is JSON content.
func (c *Content) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*c = Content{}
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			decoded = []byte(s)
		}
		*c = OpaqueContent(decoded)
	default:
		*c = JSONContent(append(json.RawMessage(nil), trimmed...))
	}
	return nil
}

// Equal reports whether both contents carry the same payload. JSON content is
// compared after compaction.
func (c Content) Equal(o Content) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ContentJSON:
		var a, b bytes.Buffer
		if json.Compact(&a, c.JSON) != nil || json.Compact(&b, o.JSON) != nil {
			return bytes.Equal(c.JSON, o.JSON)
		}
		return bytes.Equal(a.Bytes(), b.Bytes())
	case ContentOpaque:
		return bytes.Equal(c.Opaque, o.Opaque)
	}
	return true
}

// IsJSONContentType accepts the short form "json" as well as json mime types
// such as application/json or application/vnd.api+json.
func IsJSONContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "json" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	primary, sub, ok := strings.Cut(mediaType, "/")
	if !ok {
		return false
	}
	return (primary == "application" && sub == "json") || strings.HasSuffix(sub, "+json")
}

func IsBase64ContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "base64")
}

// ResolveContent picks the content variant once, based on the declared
// content type.
func ResolveContent(contentType string, raw json.RawMessage) (Content, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Content{}, ErrContentMissing
	}

	if IsJSONContentType(contentType) {
		if trimmed[0] != '"' {
			if !json.Valid(trimmed) {
				return Content{}, errors.New("content is not valid JSON")
			}
			return JSONContent(append(json.RawMessage(nil), trimmed...)), nil
		}
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Content{}, err
		}
		inner := bytes.TrimSpace([]byte(s))
		if len(inner) == 0 || !json.Valid(inner) {
			return Content{}, fmt.Errorf("content type %s declared but content string is not a JSON document", contentType)
		}
		return JSONContent(inner), nil
	}

	if trimmed[0] != '"' {
		return OpaqueContent(append([]byte(nil), trimmed...)), nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return Content{}, err
	}
	if IsBase64ContentType(contentType) {
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Content{}, fmt.Errorf("content type %s declared but content is not base64: %w", contentType, err)
		}
		return OpaqueContent(decoded), nil
	}
	return OpaqueContent([]byte(s)), nil
}
