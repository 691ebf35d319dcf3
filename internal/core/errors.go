package core

import "fmt"

// RejectReason enumerates why the cleaner or crawler dropped an article.
type RejectReason string

const (
	RejectTooShort         RejectReason = "too_short"
	RejectTooLong          RejectReason = "too_long"
	RejectVideo            RejectReason = "video"
	RejectTranscript       RejectReason = "transcript"
	RejectFiller           RejectReason = "filler"
	RejectBannedWord       RejectReason = "banned_word"
	RejectDuplicateURL     RejectReason = "duplicate_url"
	RejectCapacityExceeded RejectReason = "capacity_exceeded"
)

// ArticleRejected reports a policy-level skip. It is not a failure of the
// pipeline; the article is logged and the crawler moves on.
type ArticleRejected struct {
	Reason RejectReason
	Detail string
}

func (e *ArticleRejected) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("article rejected: %s", e.Reason)
	}
	return fmt.Sprintf("article rejected: %s (%s)", e.Reason, e.Detail)
}

// FeedError isolates a failure to the one feed that produced it.
// Reason is one of: network, parse, timeout.
type FeedError struct {
	Reason string
	URL    string
	Err    error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed %s: %s: %v", e.URL, e.Reason, e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

// ImageError reports a failed image acquisition or transcode.
// Reason is one of: no_candidate, http, content_type, below_min_bytes,
// decode, encode, budget_exceeded.
type ImageError struct {
	Reason string
	URL    string
	Err    error
}

func (e *ImageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("image %s: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("image %s: %s: %v", e.URL, e.Reason, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// LLMError reports a transport-level failure talking to the provider.
// Reason is one of: network, timeout, http_status, auth.
type LLMError struct {
	Reason string
	Err    error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm: %s: %v", e.Reason, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// StructureError reports a response that arrived but does not satisfy the
// contract. Reason is one of: not_json, missing_field, attitude_invariant,
// word_count_out_of_band.
type StructureError struct {
	Reason string
	Field  string
}

func (e *StructureError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("response structure: %s", e.Reason)
	}
	return fmt.Sprintf("response structure: %s (%s)", e.Reason, e.Field)
}

// StoreError reports a database-level failure. Reason is one of:
// uniqueness, foreign_key, transaction. It is fatal for the current
// operation only; the containing stage rolls back and continues.
type StoreError struct {
	Reason string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Reason, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
