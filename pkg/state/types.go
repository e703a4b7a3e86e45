package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/goliatone/go-stored/tree"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

// DefaultProfile is the profile used when a Ref leaves it empty.
const DefaultProfile = "default"

var profilePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Ref identifies one persisted tree.
type Ref struct {
	Profile string
}

// Identifier returns the canonical storage key for the ref.
func (r Ref) Identifier() (string, error) {
	profile := r.Profile
	if profile == "" {
		profile = DefaultProfile
	}
	if !profilePattern.MatchString(profile) {
		return "", fmt.Errorf("state: invalid profile %q", r.Profile)
	}
	return "profile/" + profile, nil
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty" yaml:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty" yaml:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Store loads/saves one tree for a single reference.
type Store interface {
	Load(ctx context.Context, ref Ref) (data map[string]any, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, data map[string]any, meta Meta) (Meta, error)
}

// Resolver loads stored trees and layers them over templates.
type Resolver struct {
	Store Store
}

// Mutator edits a tree in place.
type Mutator func(data map[string]any) error

// Resolve returns the stored tree for ref layered over template. A missing
// tree resolves to a copy of the template.
func (r Resolver) Resolve(ctx context.Context, ref Ref, template map[string]any) (map[string]any, Meta, error) {
	if r.Store == nil {
		return nil, Meta{}, fmt.Errorf("state: store is required")
	}
	data, meta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("state: load %q: %w", ref.Profile, err)
	}
	if !ok {
		return tree.MergeLayers(template), Meta{}, nil
	}
	return tree.MergeLayers(data, template), meta, nil
}

// Mutate loads one tree, applies fn and saves the result. A non-empty
// meta.ETag must match the loaded tag.
func (r Resolver) Mutate(ctx context.Context, ref Ref, meta Meta, fn Mutator) (map[string]any, Meta, error) {
	if r.Store == nil {
		return nil, Meta{}, fmt.Errorf("state: store is required")
	}
	if fn == nil {
		return nil, Meta{}, fmt.Errorf("state: mutator is required")
	}

	data, loadedMeta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("state: load %q: %w", ref.Profile, err)
	}
	if !ok {
		data = map[string]any{}
		loadedMeta = Meta{}
	}

	if meta.ETag != "" && loadedMeta.ETag != "" && meta.ETag != loadedMeta.ETag {
		return nil, loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loadedMeta.ETag)
	}

	if err := fn(data); err != nil {
		return nil, loadedMeta, err
	}

	saveMeta := mergeMeta(loadedMeta, meta)
	savedMeta, err := r.Store.Save(ctx, ref, data, saveMeta)
	if err != nil {
		return nil, loadedMeta, fmt.Errorf("state: save %q: %w", ref.Profile, err)
	}
	return data, savedMeta, nil
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}

// CheckETag compares the expected tag carried by meta with the current one.
func CheckETag(expected, current string) error {
	if expected == "" || current == "" || expected == current {
		return nil
	}
	return fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, expected, current)
}

// ComputeETag hashes the canonical JSON encoding of data.
func ComputeETag(data map[string]any) (string, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("state: etag: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return `"` + hex.EncodeToString(sum[:16]) + `"`, nil
}

// stamp fills the storage-owned fields of meta after a successful save.
func stamp(meta Meta, data map[string]any) (Meta, error) {
	etag, err := ComputeETag(data)
	if err != nil {
		return Meta{}, err
	}
	out := cloneMeta(meta)
	out.ETag = etag
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = time.Now().UTC()
	}
	return out, nil
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
