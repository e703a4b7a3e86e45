package activity

import (
	"strings"
	"time"
)

const (
	VerbRecordUpdated = "stored.record.updated"
	VerbTreeLoaded    = "stored.tree.loaded"

	ObjectRecord = "stored.record"
	ObjectTree   = "stored.tree"
)

// RecordEventInput describes one flushed record or loaded tree.
type RecordEventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	Key        string
	Profile    string
	SnapshotID string
	Snapshot   map[string]any
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildRecordUpdatedEvent describes a record snapshot written by a flush.
// The record key is the object id.
func BuildRecordUpdatedEvent(input RecordEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.Snapshot != nil {
		metadata = ensureMetadata(metadata)
		metadata["snapshot"] = cloneMap(input.Snapshot)
	}
	return buildEvent(VerbRecordUpdated, ObjectRecord, strings.TrimSpace(input.Key), metadata, input)
}

// BuildTreeLoadedEvent describes a tree resolved from storage.
func BuildTreeLoadedEvent(input RecordEventInput) Event {
	objectID := strings.TrimSpace(input.Profile)
	if objectID == "" {
		objectID = ObjectTree
	}
	return buildEvent(VerbTreeLoaded, ObjectTree, objectID, cloneMap(input.Metadata), input)
}

func buildEvent(verb, objectType, objectID string, metadata map[string]any, input RecordEventInput) Event {
	if input.Key != "" {
		metadata = ensureMetadata(metadata)
		metadata["key"] = input.Key
	}
	if input.Profile != "" {
		metadata = ensureMetadata(metadata)
		metadata["profile"] = input.Profile
	}
	if input.SnapshotID != "" {
		metadata = ensureMetadata(metadata)
		metadata["snapshot_id"] = input.SnapshotID
	}
	if objectID == "" {
		objectID = strings.TrimSpace(input.SnapshotID)
	}
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
