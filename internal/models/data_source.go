package models

import "time"

// Sample is a single (timestamp, value) point returned by a data-source query.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// QueryResult is one series a data-source query returned: a label set
// plus either a single instant-query sample or a range-query series.
type QueryResult struct {
	Metric map[string]string `json:"metric"`
	Value  Sample            `json:"value,omitempty"`
	Values []Sample          `json:"values,omitempty"`
}
