// Package otlp provides the OTLP-JSON metrics envelope shapes consumed by
// the ingestion endpoint and the pure extraction of usage events from them.
package otlp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Resource attribute keys the ingestion endpoint requires.
const (
	AttrHandle = "twitter_handle"
	AttrAPIKey = "cr_api_key"
)

// Envelope is the top-level OTLP-JSON metrics payload.
type Envelope struct {
	ResourceMetrics []ResourceMetrics `json:"resourceMetrics"`
}

// ResourceMetrics is one resource-scoped metric batch.
type ResourceMetrics struct {
	Resource     Resource       `json:"resource"`
	ScopeMetrics []ScopeMetrics `json:"scopeMetrics"`
}

// Resource carries resource-level attributes.
type Resource struct {
	Attributes []KeyValue `json:"attributes"`
}

// ScopeMetrics is one instrumentation-scope group of metrics.
type ScopeMetrics struct {
	Metrics []Metric `json:"metrics"`
}

// Metric is a named metric with optional sum data.
type Metric struct {
	Name string `json:"name"`
	Sum  *Sum   `json:"sum"`
}

// Sum holds the data points of a cumulative sum metric.
type Sum struct {
	DataPoints []DataPoint `json:"dataPoints"`
}

// DataPoint is a single sum observation.
type DataPoint struct {
	AsInt      Int64Value `json:"asInt"`
	Attributes []KeyValue `json:"attributes"`
}

// KeyValue is an OTLP attribute.
type KeyValue struct {
	Key   string   `json:"key"`
	Value AnyValue `json:"value"`
}

// AnyValue carries the attribute value variants we consume.
type AnyValue struct {
	StringValue string `json:"stringValue"`
}

// Int64Value decodes an OTLP-JSON integer, which exporters encode either as
// a JSON number or as a decimal string.
type Int64Value int64

// UnmarshalJSON implements json.Unmarshaler.
func (v *Int64Value) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse asInt %q: %w", data, err)
	}
	*v = Int64Value(n)
	return nil
}

// Decode parses an OTLP-JSON metrics payload.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Credentials returns the principal handle and presented secret from
// resource attributes. All resources are scanned; the first non-empty value
// of each attribute wins. Either may be empty if the exporter omitted it.
func (e Envelope) Credentials() (handle, secret string) {
	for _, rm := range e.ResourceMetrics {
		for _, attr := range rm.Resource.Attributes {
			switch attr.Key {
			case AttrHandle:
				if handle == "" {
					handle = attr.Value.StringValue
				}
			case AttrAPIKey:
				if secret == "" {
					secret = attr.Value.StringValue
				}
			}
		}
	}
	return handle, secret
}
