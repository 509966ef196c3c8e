// Package ollama is a typed HTTP client for the Ollama backend API.
//
// It covers exactly the surface the processor needs: listing local models,
// showing model info, non-streaming text generation, embeddings generation,
// and pulling models. Credentials embedded in the endpoint URL are turned
// into an Authorization header at construction time; they never appear in
// request URLs.
//
// Every failed call surfaces as an [*Error] carrying the operation name,
// the HTTP status when one was received, and the underlying cause.
package ollama
