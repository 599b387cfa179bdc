package artifact_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/internal/artifact"
)

var mergeTime = time.UnixMilli(1_700_000_000_000)

func existing(contents ...string) *artifact.Artifact {
	a := &artifact.Artifact{
		ID:        "doc-1",
		Title:     "Quarterly Report",
		Type:      artifact.TypeDocument,
		CreatedAt: 1_600_000_000_000,
		UpdatedAt: 1_600_000_000_000,
	}
	for i, c := range contents {
		a.Versions = append(a.Versions, artifact.Version{
			Content:   c,
			CreatedAt: 1_600_000_000_000 + int64(i),
		})
	}
	return a
}

func incoming(contents ...string) *artifact.Artifact {
	a := &artifact.Artifact{ID: "doc-1"}
	for _, c := range contents {
		a.Versions = append(a.Versions, artifact.Version{Content: c})
	}
	return a
}

func TestMerge_InitialVersion(t *testing.T) {
	t.Parallel()

	merged, vn := artifact.Merge(nil, incoming("draft one"), mergeTime)
	require.NotNil(t, merged)
	assert.Equal(t, 1, vn)
	require.Len(t, merged.Versions, 1)
	assert.Equal(t, "draft one", merged.Versions[0].Content)
	assert.Equal(t, artifact.TypeDocument, merged.Type)
	assert.NotZero(t, merged.CreatedAt)
}

func TestMerge_SingleVersionAppends(t *testing.T) {
	t.Parallel()

	cur := existing("v1")
	merged, vn := artifact.Merge(cur, incoming("v2"), mergeTime)

	assert.Equal(t, 2, vn)
	require.Len(t, merged.Versions, 2)
	assert.Equal(t, "v1", merged.Versions[0].Content)
	assert.Equal(t, "v2", merged.Versions[1].Content)
	assert.Equal(t, "Quarterly Report", merged.Title, "absent title preserves existing")
	assert.Equal(t, cur.CreatedAt, merged.CreatedAt)
	assert.Equal(t, mergeTime.UnixMilli(), merged.UpdatedAt)

	// Append, never replace: the source artifact is untouched.
	assert.Len(t, cur.Versions, 1)
}

func TestMerge_TitleUpdatedOnlyWhenProvided(t *testing.T) {
	t.Parallel()

	inc := incoming("v2")
	inc.Title = "Renamed Report"
	merged, _ := artifact.Merge(existing("v1"), inc, mergeTime)
	assert.Equal(t, "Renamed Report", merged.Title)
}

func TestMerge_EmptyIncomingIsNoOp(t *testing.T) {
	t.Parallel()

	cur := existing("v1")
	merged, vn := artifact.Merge(cur, incoming("   \n\t"), mergeTime)

	assert.Equal(t, 1, vn, "erasure guard: version number unchanged")
	require.Len(t, merged.Versions, 1)
	assert.Equal(t, "v1", merged.Versions[0].Content)
}

func TestMerge_MultipleVersionsReplaceWholesale(t *testing.T) {
	t.Parallel()

	merged, vn := artifact.Merge(existing("old"), incoming("v1", "v2", "v3"), mergeTime)

	assert.Equal(t, 3, vn)
	require.Len(t, merged.Versions, 3)
	assert.Equal(t, "v1", merged.Versions[0].Content)
	assert.Equal(t, "v3", merged.Versions[2].Content)
}

func TestMerge_ExplicitModeOverridesStructure(t *testing.T) {
	t.Parallel()

	// A single version with explicit replace mode replaces.
	inc := incoming("only")
	inc.Mode = artifact.ModeReplace
	merged, vn := artifact.Merge(existing("a", "b"), inc, mergeTime)
	assert.Equal(t, 1, vn)
	require.Len(t, merged.Versions, 1)
	assert.Equal(t, "only", merged.Versions[0].Content)

	// Multiple versions with explicit append mode append.
	inc = incoming("c", "d")
	inc.Mode = artifact.ModeAppend
	merged, vn = artifact.Merge(existing("a", "b"), inc, mergeTime)
	assert.Equal(t, 4, vn)
	require.Len(t, merged.Versions, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, contents(merged))
}

func TestMerge_ErasureGuardBeatsExplicitMode(t *testing.T) {
	t.Parallel()

	inc := incoming("")
	inc.Mode = artifact.ModeReplace
	merged, vn := artifact.Merge(existing("keep"), inc, mergeTime)
	assert.Equal(t, 1, vn)
	assert.Equal(t, "keep", merged.Versions[0].Content)
}

func TestArtifact_CurrentAndVersionNumber(t *testing.T) {
	t.Parallel()

	var nilArt *artifact.Artifact
	assert.Nil(t, nilArt.Current())
	assert.Zero(t, nilArt.VersionNumber())

	a := existing("v1", "v2")
	require.NotNil(t, a.Current())
	assert.Equal(t, "v2", a.Current().Content)
	assert.Equal(t, 2, a.VersionNumber())
}

func contents(a *artifact.Artifact) []string {
	out := make([]string, 0, len(a.Versions))
	for _, v := range a.Versions {
		out = append(out, v.Content)
	}
	return out
}
