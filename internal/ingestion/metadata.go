package ingestion

import (
	"net/url"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// hostProductAliases maps documentation hostnames to our canonical product
// label. CLI flags take precedence over inferred values; this is the
// best-effort fallback when the user doesn't specify explicit metadata.
var hostProductAliases = map[string]string{
	"www.mongodb.com":         "mongodb",
	"mongodb.com":             "mongodb",
	"kubernetes.io":           "kubernetes",
	"docs.docker.com":         "docker",
	"developer.hashicorp.com": "hashicorp",
	"registry.terraform.io":   "terraform",
	"docs.aws.amazon.com":     "aws",
	"learn.microsoft.com":     "azure",
	"cloud.google.com":        "gcp",
	"redis.io":                "redis",
	"www.postgresql.org":      "postgresql",
	"postgresql.org":          "postgresql",
	"grafana.com":             "grafana",
	"prometheus.io":           "prometheus",
	"qdrant.tech":             "qdrant",
	"docs.voyageai.com":       "voyage",
	"platform.openai.com":     "openai",
	"ollama.com":              "ollama",
}

// InferMetadata inspects a documentation URL and returns best-effort metadata.
// If the URL doesn't match any known pattern the returned fields contain
// sensible defaults (product "generic", content type "reference").
func InferMetadata(rawURL string) rag.Metadata {
	m := rag.Metadata{
		ProductName: "generic",
		ContentType: "reference",
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return m
	}

	host := strings.ToLower(parsed.Hostname())
	segments := trimSegments(strings.ToLower(parsed.Path))

	if product, ok := hostProductAliases[host]; ok {
		m.ProductName = product
	} else if product := productFromHost(host); product != "" {
		m.ProductName = product
	}

	m.ContentType = inferContentType(segments)
	return m
}

// productFromHost falls back to the second-level domain as the product label
// for docs.<product>.<tld> and <product>.<tld> shapes.
func productFromHost(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return ""
	}
	// docs.example.com → example; example.com → example
	candidate := parts[len(parts)-2]
	if candidate == "" || candidate == "www" {
		return ""
	}
	return candidate
}

// inferContentType classifies the documentation kind from path segments.
func inferContentType(segments []string) string {
	for _, seg := range segments {
		switch seg {
		case "tutorial", "tutorials", "getting-started", "quick-start", "quickstart", "learn":
			return "tutorial"
		case "guide", "guides", "how-to", "howto", "best-practices":
			return "guide"
		case "api", "api-reference", "apis", "rest":
			return "api"
		case "changelog", "release-notes", "releases", "whats-new":
			return "changelog"
		case "faq", "troubleshooting":
			return "troubleshooting"
		}
	}
	return "reference"
}

// trimSegments splits a URL path into non-empty segments.
func trimSegments(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
