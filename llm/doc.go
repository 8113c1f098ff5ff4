// Package llm defines the provider contracts the core depends on
// (generation, embedding, tool schemas) and the normalization adapters
// that collapse vendor-specific tool-call response shapes into one tagged
// Outcome. Provider internals stay opaque to the rest of the system.
package llm
