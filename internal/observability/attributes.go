// Package observability provides metrics and logging utilities for the SDK.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod   = "method"
	attrEndpoint = "endpoint"
	attrStatus   = "status"
	attrAction   = "action"
	attrSuccess  = "success"
	attrOutcome  = "outcome"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func endpointAttr(endpoint string) attribute.KeyValue {
	return attribute.String(attrEndpoint, normalizeEndpoint(endpoint))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality; 0 means no HTTP response.
	if code == 0 {
		return attribute.String(attrStatus, "none")
	}
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func actionAttr(action string) attribute.KeyValue {
	return attribute.String(attrAction, action)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

// normalizeEndpoint keeps only the leading path segment so per-job URLs
// do not explode metric cardinality: Job/1001/action/kill -> Job.
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	if i := strings.IndexAny(endpoint, "/?"); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
