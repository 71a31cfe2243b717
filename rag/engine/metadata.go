package engine

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/campusrag/campusrag/rag/types"
	"github.com/google/uuid"
)

// Payload keys written next to the document metadata.
const (
	ContentKey    = "content"
	OriginalIDKey = "original_id"
	SourceKey     = "source"

	// SequenceKey holds the insertion sequence used to order tied results.
	// It is stripped from search results.
	SequenceKey = "inserted_seq"
)

// documentNamespace scopes derived ids so they never collide with UUIDs
// generated elsewhere.
var documentNamespace = uuid.MustParse("5b0f6f1e-3c2a-4d8e-9a51-2f7c1e0b6a43")

// DerivedID maps a natural document id to the id used by the backends.
// The same natural id always yields the same derived id.
func DerivedID(naturalID string) string {
	return uuid.NewSHA1(documentNamespace, []byte(naturalID)).String()
}

// SanitizeMetadata converts metadata to scalar values: nil becomes an empty
// string, scalars pass through and anything else is rendered as a string.
func SanitizeMetadata(metadata map[string]any) map[string]any {
	cleaned := make(map[string]any, len(metadata))
	for k, v := range metadata {
		cleaned[k] = sanitizeValue(v)
	}
	return cleaned
}

func sanitizeValue(v any) any {
	if v == nil {
		return ""
	}
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	}
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) && rv.IsNil() {
		return ""
	}
	return renderValue(rv)
}

// renderValue writes composites the way Python's str() does, e.g.
// ['a', 'b'], {'k': 1}, [True, None].
func renderValue(rv reflect.Value) string {
	switch rv.Kind() {
	case reflect.Invalid:
		return "None"
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "None"
		}
		return renderValue(rv.Elem())
	case reflect.String:
		return quoteString(rv.String())
	case reflect.Bool:
		if rv.Bool() {
			return "True"
		}
		return "False"
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "[]"
		}
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = renderValue(rv.Index(i))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.Map:
		keys := rv.MapKeys()
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, renderValue(k)+": "+renderValue(rv.MapIndex(k)))
		}
		sort.Strings(parts)
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(rv.Interface())
}

// quoteString uses single quotes unless the string contains one and no
// double quote.
func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

func derivedIDs(naturalIDs []string) []string {
	out := make([]string, len(naturalIDs))
	for i, id := range naturalIDs {
		out[i] = DerivedID(id)
	}
	return out
}

// payloadFor builds the persisted payload of a document: sanitized metadata
// plus content, original id, insertion sequence and source.
func payloadFor(doc types.Document, seq int64) map[string]any {
	payload := SanitizeMetadata(doc.Metadata)
	payload[ContentKey] = doc.Content
	payload[OriginalIDKey] = doc.ID
	payload[SequenceKey] = formatSequence(seq)
	if doc.Source != "" {
		payload[SourceKey] = doc.Source
	} else if _, ok := payload[SourceKey]; !ok {
		payload[SourceKey] = ""
	}
	return payload
}

// splitPayload separates the content from the rest of a stored payload.
func splitPayload(payload map[string]any) (string, map[string]any) {
	metadata := make(map[string]any, len(payload))
	content := ""
	for k, v := range payload {
		if k == ContentKey {
			if s, ok := v.(string); ok {
				content = s
			}
			continue
		}
		metadata[k] = v
	}
	return content, metadata
}

// formatSequence zero-pads seq so that string and numeric order agree.
func formatSequence(seq int64) string {
	return fmt.Sprintf("%019d", seq)
}

// takeSequence removes the insertion sequence from metadata and returns it.
// Documents stored without one sort after every sequenced document.
func takeSequence(metadata map[string]any) int64 {
	v, ok := metadata[SequenceKey]
	if !ok {
		return math.MaxInt64
	}
	delete(metadata, SequenceKey)

	switch val := v.(type) {
	case string:
		if seq, err := strconv.ParseInt(val, 10, 64); err == nil {
			return seq
		}
	case int64:
		return val
	}
	return math.MaxInt64
}
