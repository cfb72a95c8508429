// Package papyr is a retrieval-augmented question answering pipeline for
// document collections.
//
// It provides modular, interface-driven building blocks: text extraction and
// chunking, embedding providers, vector storage with per-document scoping,
// and an answer extraction pipeline that assembles ranked, deduplicated
// context from search results.
//
// # Quick Start
//
// Wire a store, the two ML capabilities, and the pipelines:
//
//	store := sqlite.New("papyr.db")
//	embedding := hf.NewEmbedding(apiKey, "sentence-transformers/all-MiniLM-L6-v2", 384)
//	qa := hf.NewQA(apiKey, "deepset/roberta-base-squad2")
//
//	ingestor := ingest.NewIngestor(store, embedding,
//		ingest.WithExtractor(ingest.TypePDF, pdf.NewExtractor()),
//	)
//	answerer := papyr.NewAnswerer(store, embedding, qa)
//
//	res, err := ingestor.IngestFile(ctx, content, "report.pdf", nil)
//	out, err := answerer.Answer(ctx, "What is the refund policy?", "", 5)
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Store] — document + chunk persistence with vector search
//   - [EmbeddingProvider] — text-to-vector embedding (order-preserving batch)
//   - [AnswerProvider] — extractive question answering over a context string
//   - [Tracer] — optional span creation for ingest and query operations
//
// # Included Implementations
//
// Storage: store/postgres (pgvector), store/sqlite (local, pure Go).
// Providers: provider/hf (Hugging Face Inference API).
// Ingestion: ingest (chunker, extractors), ingest/pdf.
//
// See cmd/papyr for the complete HTTP service.
package papyr
