// Package model defines the domain types used across the application.
package model

import "time"

// NewsItem is a single raw message pulled from a monitored source channel.
// Immutable after ingestion; discarded once a publish decision is made.
type NewsItem struct {
	SourceID        string
	RawText         string
	SourceTimestamp time.Time
	MatchedKeywords []string
}

// PublicationKind distinguishes what a publication record was created for.
type PublicationKind string

// Supported publication kinds.
const (
	KindNews          PublicationKind = "news"
	KindDigestMorning PublicationKind = "digest_morning"
	KindDigestEvening PublicationKind = "digest_evening"
)

// PublicationStatus tracks the lifecycle of a publication attempt.
type PublicationStatus string

// Supported publication statuses.
const (
	StatusPending   PublicationStatus = "pending"
	StatusPublished PublicationStatus = "published"
	StatusFailed    PublicationStatus = "failed"
)

// PublicationRecord is created when the scheduler decides to act on an item
// or a digest slot. DedupKey is the source ID for news, or date+slot for
// digests; exactly one record per key may reach StatusPublished.
type PublicationRecord struct {
	Kind        PublicationKind
	DedupKey    string
	PublishedAt time.Time
	Status      PublicationStatus
}

// DigestSlot names one of the two daily price digest windows.
type DigestSlot string

// Supported digest slots.
const (
	SlotMorning DigestSlot = "morning"
	SlotEvening DigestSlot = "evening"
)

// Kind maps a digest slot to its publication kind.
func (s DigestSlot) Kind() PublicationKind {
	if s == SlotEvening {
		return KindDigestEvening
	}
	return KindDigestMorning
}

// DedupKey builds the digest dedup key for a calendar date.
func (s DigestSlot) DedupKey(day time.Time) string {
	return day.Format("2006-01-02") + ":" + string(s)
}

// PriceSnapshot holds one fetch of the tracked asset's market data.
type PriceSnapshot struct {
	Symbol    string
	Current   float64
	Reference float64
	Change24h float64
	Volume24h float64
	AsOf      time.Time
}
