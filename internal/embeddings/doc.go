// Package embeddings turns document texts into fixed-length vectors.
//
// Three providers are available behind the Provider interface: FastEmbed
// (local ONNX models, requires cgo), TEI (a Text Embeddings Inference server
// over HTTP) and any OpenAI-compatible embeddings API through langchaingo.
// NewProvider picks one from configuration and wraps it with OpenTelemetry
// metrics.
package embeddings
