// Package library defines article records and their on-disk collection.
package library

import (
	"encoding/json"
	"fmt"
	"time"
)

// ImportStatus tracks how a record's content acquisition ended.
type ImportStatus string

// Import status values persisted on each record.
const (
	StatusUnset   ImportStatus = ""
	StatusSuccess ImportStatus = "success"
	StatusFailed  ImportStatus = "failed"
)

// TruncationMarker is appended to stored text that exceeded the cap.
const TruncationMarker = "\n[truncated]"

// DefaultTitle is used when a record is created without a title.
const DefaultTitle = "Untitled"

// Record is one persisted library entry: article metadata plus whatever
// full text could be extracted for it.
type Record struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Authors      []string     `json:"authors,omitempty"`
	Abstract     string       `json:"abstract,omitempty"`
	URL          string       `json:"url,omitempty"`
	Text         string       `json:"text"`
	CreatedAt    time.Time    `json:"created_at"`
	ImportStatus ImportStatus `json:"import_status,omitempty"`
	ImportReason string       `json:"import_reason,omitempty"`

	// extra holds unknown fields found on disk so a load/save round trip
	// does not destroy them.
	extra map[string]json.RawMessage
}

// knownRecordFields lists the JSON keys owned by Record itself.
var knownRecordFields = map[string]struct{}{
	"id": {}, "title": {}, "authors": {}, "abstract": {}, "url": {},
	"text": {}, "created_at": {}, "import_status": {}, "import_reason": {},
}

// recordAlias avoids recursion in the JSON hooks below.
type recordAlias Record

// UnmarshalJSON decodes the known fields and stashes everything else.
func (r *Record) UnmarshalJSON(data []byte) error {
	var alias recordAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode record fields: %w", err)
	}
	for key := range raw {
		if _, known := knownRecordFields[key]; known {
			delete(raw, key)
		}
	}
	*r = Record(alias)
	if len(raw) > 0 {
		r.extra = raw
	}
	return nil
}

// MarshalJSON re-emits the known fields merged with any preserved ones.
func (r Record) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(recordAlias(r))
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if len(r.extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, fmt.Errorf("merge record fields: %w", err)
	}
	for key, value := range r.extra {
		if _, known := merged[key]; !known {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

// NewImported builds a success record from an extraction result.
// Text is truncated to maxTextRunes with the truncation marker.
func NewImported(id, title, url, text string, authors []string, abstract string, createdAt time.Time, maxTextRunes int) Record {
	return Record{
		ID:           id,
		Title:        normalizeTitle(title),
		Authors:      authors,
		Abstract:     abstract,
		URL:          url,
		Text:         Truncate(text, maxTextRunes),
		CreatedAt:    createdAt,
		ImportStatus: StatusSuccess,
	}
}

// NewFailed builds a failed record. Failed imports stay in the library so
// they can be inspected and retried later.
func NewFailed(id, title, url, reason string, createdAt time.Time) Record {
	if reason == "" {
		reason = "unknown failure"
	}
	return Record{
		ID:           id,
		Title:        normalizeTitle(title),
		URL:          url,
		CreatedAt:    createdAt,
		ImportStatus: StatusFailed,
		ImportReason: reason,
	}
}

// NewManual builds a manually entered record with no import status.
func NewManual(id, title string, authors []string, abstract, url, text string, createdAt time.Time, maxTextRunes int) Record {
	return Record{
		ID:        id,
		Title:     normalizeTitle(title),
		Authors:   authors,
		Abstract:  abstract,
		URL:       url,
		Text:      Truncate(text, maxTextRunes),
		CreatedAt: createdAt,
	}
}

// Validate enforces the record invariants for each import status.
func (r Record) Validate(minContentRunes int) error {
	if r.ID == "" {
		return fmt.Errorf("record missing id")
	}
	if r.Title == "" {
		return fmt.Errorf("record %s missing title", r.ID)
	}
	switch r.ImportStatus {
	case StatusSuccess:
		if len([]rune(r.Text)) <= minContentRunes {
			return fmt.Errorf("record %s marked success with %d runes of text", r.ID, len([]rune(r.Text)))
		}
		if r.ImportReason != "" {
			return fmt.Errorf("record %s marked success but carries reason %q", r.ID, r.ImportReason)
		}
	case StatusFailed:
		if r.Text != "" {
			return fmt.Errorf("record %s marked failed but has text", r.ID)
		}
		if r.ImportReason == "" {
			return fmt.Errorf("record %s marked failed without a reason", r.ID)
		}
	case StatusUnset:
	default:
		return fmt.Errorf("record %s has unknown import status %q", r.ID, r.ImportStatus)
	}
	return nil
}

// SearchText returns the field the index should represent: extracted text
// when present, abstract otherwise.
func (r Record) SearchText() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Abstract
}

// Truncate caps text at maxRunes, appending the truncation marker when
// anything was cut.
func Truncate(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + TruncationMarker
}

func normalizeTitle(title string) string {
	if title == "" {
		return DefaultTitle
	}
	return title
}
