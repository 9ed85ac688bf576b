// Package activitymap converts login activity records into a
// transport-agnostic activity shape for downstream systems, audit sinks,
// SIEM pipelines, or activity feeds.
package activitymap

import (
	"strings"
	"time"

	auth "github.com/authxlabs/go-authx"
)

const (
	// MetadataKeyIP stores the peer address of the attempt.
	MetadataKeyIP = "ip"
	// MetadataKeyUserAgent stores the peer user agent string.
	MetadataKeyUserAgent = "user_agent"
	// MetadataKeyReason stores the failure reason for rejected attempts.
	MetadataKeyReason = "reason"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "user"
	defaultActorID    = "anonymous"

	// VerbLogin is emitted for successful attempts.
	VerbLogin = "login"
	// VerbLoginFailed is emitted for rejected attempts.
	VerbLoginFailed = "login_failed"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
}

// Normalize converts a login activity record into a generic normalized
// shape. Attempts against unknown emails carry no user id; those fall back
// to the configured anonymous actor.
func Normalize(record *auth.LoginActivity, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := options.actorFallback
	objectID := ""
	if record.UserID != nil {
		actorID = record.UserID.String()
		objectID = actorID
	}

	occurredAt := time.Now().UTC()
	if record.CreatedAt != nil {
		occurredAt = record.CreatedAt.UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       verbFor(record),
		ObjectType: options.objectType,
		ObjectID:   objectID,
		Channel:    options.channel,
		Metadata:   normalizeMetadata(record),
		OccurredAt: occurredAt,
	}
}

// NormalizeAll maps a batch, preserving order.
func NormalizeAll(records []*auth.LoginActivity, opts ...Option) []Normalized {
	out := make([]Normalized, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		out = append(out, Normalize(record, opts...))
	}
	return out
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when the record has no user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func verbFor(record *auth.LoginActivity) string {
	if record.Outcome == auth.LoginOutcomeSuccess {
		return VerbLogin
	}
	return VerbLoginFailed
}

func normalizeMetadata(record *auth.LoginActivity) map[string]any {
	metadata := map[string]any{}

	if ip := strings.TrimSpace(record.IP); ip != "" {
		metadata[MetadataKeyIP] = ip
	}
	if ua := strings.TrimSpace(record.UserAgent); ua != "" {
		metadata[MetadataKeyUserAgent] = ua
	}
	if record.Outcome != auth.LoginOutcomeSuccess && record.Reason != "" {
		metadata[MetadataKeyReason] = string(record.Reason)
	}

	if len(metadata) == 0 {
		return nil
	}
	return metadata
}
