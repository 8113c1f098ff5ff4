// Package rag implements the retrieval core: a flat vector index over
// chunk embeddings, a BM25 keyword index over the same corpus, score
// fusion, cross-encoder reranking, query expansion, and the orchestrator
// that composes them into a single Retrieve call.
package rag
