package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for pipeline observability spans and metrics.
var (
	AttrModel    = attribute.Key("model.name")
	AttrProvider = attribute.Key("model.provider")

	AttrDocumentID    = attribute.Key("document.id")
	AttrDocumentTitle = attribute.Key("document.title")
	AttrChunkCount    = attribute.Key("document.chunk_count")

	AttrEmbedTextCount  = attribute.Key("embed.text_count")
	AttrEmbedDimensions = attribute.Key("embed.dimensions")

	AttrQueryTopK       = attribute.Key("query.top_k")
	AttrQueryConfidence = attribute.Key("query.confidence")
)
