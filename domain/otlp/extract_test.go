package otlp_test

import (
	"testing"

	"github.com/artpar/tokenrank/domain/otlp"
)

func envelope(metricName string, points ...otlp.DataPoint) otlp.Envelope {
	return otlp.Envelope{
		ResourceMetrics: []otlp.ResourceMetrics{{
			ScopeMetrics: []otlp.ScopeMetrics{{
				Metrics: []otlp.Metric{{
					Name: metricName,
					Sum:  &otlp.Sum{DataPoints: points},
				}},
			}},
		}},
	}
}

func point(val int64, tokenType string) otlp.DataPoint {
	dp := otlp.DataPoint{AsInt: otlp.Int64Value(val)}
	if tokenType != "" {
		dp.Attributes = []otlp.KeyValue{{
			Key:   "token_type",
			Value: otlp.AnyValue{StringValue: tokenType},
		}}
	}
	return dp
}

func TestExtract(t *testing.T) {
	env := envelope(otlp.MetricTokenUsage,
		point(100, "input"),
		point(40, "output"),
		point(25, "cache_read"),
		point(5, "cache_write"),
	)

	x := otlp.Extract(env)

	if x.Deltas.Input != 100 || x.Deltas.Output != 40 {
		t.Errorf("input/output = %d/%d, want 100/40", x.Deltas.Input, x.Deltas.Output)
	}
	if x.Deltas.CacheRead != 25 || x.Deltas.CacheWrite != 5 {
		t.Errorf("cache read/write = %d/%d, want 25/5", x.Deltas.CacheRead, x.Deltas.CacheWrite)
	}
	if x.Total() != 170 {
		t.Errorf("Total = %d, want 170", x.Total())
	}
	if x.Anomalies != 0 {
		t.Errorf("Anomalies = %d, want 0", x.Anomalies)
	}
}

func TestExtract_IgnoresOtherMetrics(t *testing.T) {
	env := envelope("api.request.duration", point(9999, "input"))

	if x := otlp.Extract(env); x.Total() != 0 {
		t.Errorf("Total = %d, want 0 for non-token metric", x.Total())
	}
}

func TestExtract_UnknownTokenType(t *testing.T) {
	env := envelope(otlp.MetricTokenUsage,
		point(100, "input"),
		point(50, "speculative"), // unrecognized category
		point(30, ""),            // missing token_type
	)

	x := otlp.Extract(env)

	if x.Deltas.Input != 100 {
		t.Errorf("Input = %d, want 100", x.Deltas.Input)
	}
	if x.Unattributed != 80 {
		t.Errorf("Unattributed = %d, want 80", x.Unattributed)
	}
	if x.Total() != 180 {
		t.Errorf("Total = %d, want 180", x.Total())
	}
	if x.Anomalies != 2 {
		t.Errorf("Anomalies = %d, want 2", x.Anomalies)
	}
}

func TestExtract_MultipleResources(t *testing.T) {
	env := envelope(otlp.MetricTokenUsage, point(10, "input"))
	env.ResourceMetrics = append(env.ResourceMetrics,
		envelope(otlp.MetricTokenUsage, point(20, "output")).ResourceMetrics...)

	x := otlp.Extract(env)
	if x.Total() != 30 {
		t.Errorf("Total = %d, want 30 across resources", x.Total())
	}
}

func TestExtract_Empty(t *testing.T) {
	if x := otlp.Extract(otlp.Envelope{}); x.Total() != 0 {
		t.Errorf("Total = %d, want 0 for empty envelope", x.Total())
	}
}

func TestDecode(t *testing.T) {
	body := `{
		"resourceMetrics": [{
			"resource": {"attributes": [
				{"key": "twitter_handle", "value": {"stringValue": "@dev"}},
				{"key": "cr_api_key", "value": {"stringValue": "sk_rank_abc"}}
			]},
			"scopeMetrics": [{
				"metrics": [{
					"name": "token.usage",
					"sum": {"dataPoints": [
						{"asInt": "120", "attributes": [{"key": "token_type", "value": {"stringValue": "input"}}]},
						{"asInt": 80, "attributes": [{"key": "token_type", "value": {"stringValue": "output"}}]}
					]}
				}]
			}]
		}]
	}`

	env, err := otlp.Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	handle, secret := env.Credentials()
	if handle != "@dev" {
		t.Errorf("handle = %q, want @dev", handle)
	}
	if secret != "sk_rank_abc" {
		t.Errorf("secret = %q, want sk_rank_abc", secret)
	}

	// asInt must parse from both string and number encodings.
	x := otlp.Extract(env)
	if x.Deltas.Input != 120 || x.Deltas.Output != 80 {
		t.Errorf("deltas = %+v, want input 120 output 80", x.Deltas)
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := otlp.Decode([]byte(`{"resourceMetrics": "nope"`)); err == nil {
		t.Error("Decode accepted truncated payload")
	}
	if _, err := otlp.Decode([]byte(`[]`)); err == nil {
		t.Error("Decode accepted wrong top-level shape")
	}
}

func TestCredentials_Missing(t *testing.T) {
	env := envelope(otlp.MetricTokenUsage, point(10, "input"))
	handle, secret := env.Credentials()
	if handle != "" || secret != "" {
		t.Errorf("credentials = %q/%q, want empty", handle, secret)
	}
}
