package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidDocument is returned when a value is not a well-formed JSON document.
var ErrInvalidDocument = errors.New("document is not valid JSON")

// Document is an opaque structured value (a tree of positioned blocks) stored as
// compact JSON. Both backends persist the bytes as-is, so a saved document reads
// back byte-identical.
type Document []byte

// NewDocument validates raw JSON and returns its compact form.
func NewDocument(raw []byte) (Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 || !json.Valid(raw) {
		return nil, ErrInvalidDocument
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return Document(buf.Bytes()), nil
}

// MustDocument is NewDocument for literals known to be valid.
func MustDocument(raw string) Document {
	doc, err := NewDocument([]byte(raw))
	if err != nil {
		panic(err)
	}
	return doc
}

// EmptyPageContent is the content of a freshly created blank page.
func EmptyPageContent() Document {
	return Document(`{"blocks":[]}`)
}

// MarshalJSON embeds the document verbatim.
func (d Document) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// UnmarshalJSON keeps a copy of the raw value.
func (d *Document) UnmarshalJSON(data []byte) error {
	if d == nil {
		return errors.New("models.Document: UnmarshalJSON on nil pointer")
	}
	if bytes.Equal(data, []byte("null")) {
		*d = nil
		return nil
	}
	*d = append((*d)[0:0], data...)
	return nil
}

// Value stores the document as text.
func (d Document) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	return string(d), nil
}

// Scan reads text or blob columns.
func (d *Document) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = nil
	case []byte:
		*d = append(Document(nil), v...)
	case string:
		*d = Document(v)
	default:
		return fmt.Errorf("models.Document: cannot scan %T", value)
	}
	return nil
}

// GormDataType makes gorm create a text column on every dialect.
func (Document) GormDataType() string {
	return "text"
}
