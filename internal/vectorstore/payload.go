package vectorstore

import (
	"github.com/qdrant/go-client/qdrant"
	"github.com/tmc/langchaingo/schema"
)

// Payload layout: the full document is stored alongside each vector so
// search results need no secondary lookup.
const (
	contentKey  = "page_content"
	metadataKey = "metadata"
)

func payloadFromDocument(doc schema.Document) map[string]*qdrant.Value {
	meta := doc.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return qdrant.NewValueMap(map[string]any{
		contentKey:  doc.PageContent,
		metadataKey: meta,
	})
}

func documentFromPayload(payload map[string]*qdrant.Value) schema.Document {
	doc := schema.Document{Metadata: map[string]any{}}
	if v, ok := payload[contentKey]; ok {
		doc.PageContent = v.GetStringValue()
	}
	if v, ok := payload[metadataKey]; ok {
		for key, field := range v.GetStructValue().GetFields() {
			doc.Metadata[key] = valueToAny(field)
		}
	}
	return doc
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = valueToAny(item)
		}
		return out
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(kind.StructValue.GetFields()))
		for key, field := range kind.StructValue.GetFields() {
			out[key] = valueToAny(field)
		}
		return out
	default:
		return nil
	}
}
