// Package tracing wires optional Langfuse observability into the eino
// callback chain so retrieval and generation calls can be traced end to end.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost targets a local Langfuse instance when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Enabled reports whether both Langfuse credentials are present in the
// environment. Tracing is opt-in; a missing key pair means no-op.
func Enabled() bool {
	return os.Getenv("LANGFUSE_PUBLIC_KEY") != "" && os.Getenv("LANGFUSE_SECRET_KEY") != ""
}

// Setup builds the Langfuse callback handler from the environment. The
// returned flush function must run before process exit so buffered traces
// are delivered. When tracing is not configured the boolean is false and
// both other values are nil.
func Setup() (callbacks.Handler, func(), bool) {
	if !Enabled() {
		return nil, nil, false
	}

	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}

	handler, flush := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	})
	return handler, flush, true
}
