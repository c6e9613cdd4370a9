package otlp

import "github.com/artpar/tokenrank/domain/usage"

// MetricTokenUsage is the only metric name the extractor considers. All
// other metrics in the envelope are ignored for forward compatibility.
const MetricTokenUsage = "token.usage"

const attrTokenType = "token_type"

// Extraction is the normalized outcome of scanning an envelope.
type Extraction struct {
	Deltas       usage.Deltas
	Unattributed int64
	// Anomalies counts data points whose token_type attribute was missing
	// or not one of the enumerated categories. Their values are included
	// in the total but not attributed to any category.
	Anomalies int
}

// Total returns the full extracted token count.
func (x Extraction) Total() int64 {
	return x.Deltas.Categorized() + x.Unattributed
}

// Extract sums all token.usage sum data points across the envelope.
// This is a PURE function. A malformed data point never fails extraction;
// it is tallied as an anomaly so ingestion keeps working on partially
// broken telemetry.
func Extract(env Envelope) Extraction {
	var x Extraction

	for _, rm := range env.ResourceMetrics {
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if m.Name != MetricTokenUsage || m.Sum == nil {
					continue
				}
				for _, dp := range m.Sum.DataPoints {
					val := int64(dp.AsInt)
					if val <= 0 {
						continue
					}
					switch tokenType(dp) {
					case usage.CategoryInput:
						x.Deltas.Input += val
					case usage.CategoryOutput:
						x.Deltas.Output += val
					case usage.CategoryCacheRead:
						x.Deltas.CacheRead += val
					case usage.CategoryCacheWrite:
						x.Deltas.CacheWrite += val
					default:
						x.Unattributed += val
						x.Anomalies++
					}
				}
			}
		}
	}

	return x
}

func tokenType(dp DataPoint) usage.Category {
	for _, attr := range dp.Attributes {
		if attr.Key == attrTokenType {
			return usage.Category(attr.Value.StringValue)
		}
	}
	return ""
}
