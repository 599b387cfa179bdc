// Package artifact maintains the documents a conversation collaborates
// on, each with an append-only list of content versions, and defines
// the merge applied when a new version arrives concurrently with
// existing ones.
package artifact

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TypeDocument is the only artifact type currently produced.
const TypeDocument = "document"

// MergeMode optionally disambiguates the merge branch. When empty, the
// structural convention applies: one incoming version appends, more
// than one replaces the whole history.
type MergeMode string

const (
	ModeAppend  MergeMode = "append"
	ModeReplace MergeMode = "replace"
)

// Version is one content snapshot. Versions are 1-based; index in the
// artifact's list is version number minus one.
type Version struct {
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"` // unix milliseconds
}

// Artifact is a document the user and assistant co-edit.
//
// Invariant: Versions never shrinks, and no element is removed or
// reordered. The current version is always the last element.
type Artifact struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	CreatedAt int64     `json:"createdAt"` // unix milliseconds
	UpdatedAt int64     `json:"updatedAt"` // unix milliseconds
	Versions  []Version `json:"versions"`
	// Mode, when set on an incoming artifact, overrides the structural
	// append/replace inference. Never persisted.
	Mode MergeMode `json:"mode,omitempty"`
}

// NewDocument creates an artifact with a single initial version.
func NewDocument(title, content string, now time.Time) *Artifact {
	ms := now.UnixMilli()
	return &Artifact{
		ID:        uuid.NewString(),
		Title:     title,
		Type:      TypeDocument,
		CreatedAt: ms,
		UpdatedAt: ms,
		Versions:  []Version{{Content: content, CreatedAt: ms}},
	}
}

// Current returns the latest version, or nil for an empty history.
func (a *Artifact) Current() *Version {
	if a == nil || len(a.Versions) == 0 {
		return nil
	}
	return &a.Versions[len(a.Versions)-1]
}

// VersionNumber is the 1-based number of the current version.
func (a *Artifact) VersionNumber() int {
	if a == nil {
		return 0
	}
	return len(a.Versions)
}

// Merge applies incoming to current and returns the resulting artifact
// plus the resulting 1-based version number. Neither input is mutated.
//
// Rules, in order:
//  1. A single incoming version with empty content is a no-op when an
//     artifact already exists: an empty tool result must never wipe
//     prior content.
//  2. No current artifact: incoming is accepted as the initial history.
//  3. A single incoming version appends to the existing history (the
//     common one-new-version case). Title updates only when incoming
//     provides one.
//  4. Multiple incoming versions replace the history wholesale; only
//     callers intentionally supplying the complete history use this.
//
// An explicit incoming.Mode overrides the structural choice between
// rules 3 and 4. The erasure guard always runs first.
func Merge(current, incoming *Artifact, now time.Time) (*Artifact, int) {
	ms := now.UnixMilli()

	if current != nil && len(incoming.Versions) == 1 &&
		strings.TrimSpace(incoming.Versions[0].Content) == "" {
		out := current.clone()
		return out, out.VersionNumber()
	}

	if current == nil {
		out := incoming.clone()
		out.Mode = ""
		if out.ID == "" {
			out.ID = uuid.NewString()
		}
		if out.Type == "" {
			out.Type = TypeDocument
		}
		if out.CreatedAt == 0 {
			out.CreatedAt = ms
		}
		out.UpdatedAt = ms
		for i := range out.Versions {
			if out.Versions[i].CreatedAt == 0 {
				out.Versions[i].CreatedAt = ms
			}
		}
		return out, out.VersionNumber()
	}

	replace := len(incoming.Versions) > 1
	switch incoming.Mode {
	case ModeAppend:
		replace = false
	case ModeReplace:
		replace = true
	}

	out := current.clone()
	if incoming.Title != "" {
		out.Title = incoming.Title
	}
	out.UpdatedAt = ms

	if replace {
		out.Versions = make([]Version, len(incoming.Versions))
		copy(out.Versions, incoming.Versions)
		for i := range out.Versions {
			if out.Versions[i].CreatedAt == 0 {
				out.Versions[i].CreatedAt = ms
			}
		}
		return out, out.VersionNumber()
	}

	for _, v := range incoming.Versions {
		if v.CreatedAt == 0 {
			v.CreatedAt = ms
		}
		out.Versions = append(out.Versions, v)
	}
	return out, out.VersionNumber()
}

// clone deep-copies the artifact so merge results never alias caller
// state.
func (a *Artifact) clone() *Artifact {
	out := *a
	out.Versions = make([]Version, len(a.Versions))
	copy(out.Versions, a.Versions)
	return &out
}
