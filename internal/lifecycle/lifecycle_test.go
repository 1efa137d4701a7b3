package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/filevault/internal/model"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	statuses := []model.FileStatus{model.StatusPending, model.StatusReady, model.StatusFailed}
	allowed := map[[2]model.FileStatus]bool{
		{model.StatusPending, model.StatusReady}:  true,
		{model.StatusPending, model.StatusFailed}: true,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			assert.Equal(t, allowed[[2]model.FileStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTerminal(model.StatusPending))
	assert.True(t, IsTerminal(model.StatusReady))
	assert.True(t, IsTerminal(model.StatusFailed))
	assert.False(t, IsTerminal("BOGUS"))
	assert.Equal(t, model.StatusPending, Initial())
}

func TestApply_Success(t *testing.T) {
	t.Parallel()

	rec := &model.FileRecord{Status: model.StatusPending, Metadata: model.Metadata{}}
	meta := model.Metadata{"pages": 3}
	require.NoError(t, Apply(rec, Succeeded(meta)))
	assert.Equal(t, model.StatusReady, rec.Status)
	assert.Equal(t, 3, rec.Metadata["pages"])

	// The record holds its own copy.
	meta["pages"] = 99
	assert.Equal(t, 3, rec.Metadata["pages"])
}

func TestApply_FailureKeepsMetadata(t *testing.T) {
	t.Parallel()

	rec := &model.FileRecord{Status: model.StatusPending, Metadata: model.Metadata{"seed": "x"}}
	require.NoError(t, Apply(rec, Failed()))
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, model.Metadata{"seed": "x"}, rec.Metadata)
}

func TestApply_TerminalIsFinal(t *testing.T) {
	t.Parallel()

	rec := &model.FileRecord{Status: model.StatusReady, Metadata: model.Metadata{"a": 1}}
	err := Apply(rec, Failed())
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, model.StatusReady, rec.Status)

	rec.Status = model.StatusFailed
	require.ErrorIs(t, Apply(rec, Succeeded(nil)), ErrInvalidTransition)
	assert.Equal(t, model.Metadata{"a": 1}, rec.Metadata)
}
