package model

import "time"

// ReliabilityMetric is one immutable measurement snapshot for a source.
type ReliabilityMetric struct {
	ID                 int64     `json:"id" db:"id"`
	SourceID           string    `json:"source_id" db:"source_id"`
	OverallScore       float64   `json:"overall_score" db:"overall_quality_score"`
	DataAccuracy       float64   `json:"data_accuracy" db:"data_accuracy"`
	TextQuality        float64   `json:"text_quality" db:"text_quality_score"`
	DomainRelevance    float64   `json:"domain_relevance" db:"domain_relevance_score"`
	BusinessLegitimacy float64   `json:"business_legitimacy" db:"business_legitimacy_score"`
	MeasuredAt         time.Time `json:"measured_at" db:"metric_date"`
}
