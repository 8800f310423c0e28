package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedTests(t *testing.T) {
	p := &Problem{Tests: []Test{{ID: 1, Index: 5}, {ID: 2, Index: 1}, {ID: 3, Index: 3}}}
	var idx []int
	for _, tt := range p.OrderedTests() {
		idx = append(idx, tt.Index)
	}
	assert.Equal(t, []int{1, 3, 5}, idx)
	assert.Equal(t, 5, p.Tests[0].Index, "source slice must stay untouched")
}

func TestScoringMode(t *testing.T) {
	m, err := (&Problem{}).ScoringMode()
	require.NoError(t, err)
	assert.Equal(t, Strict, m)

	m, err = (&Problem{IsSubTask: true}).ScoringMode()
	require.NoError(t, err)
	assert.Equal(t, SubTask, m)

	m, err = (&Problem{IsGraded: true}).ScoringMode()
	require.NoError(t, err)
	assert.Equal(t, Graded, m)

	_, err = (&Problem{IsGraded: true, IsSubTask: true}).ScoringMode()
	require.ErrorIs(t, err, ErrConflictingModes)
}

func TestSetState(t *testing.T) {
	var s Submission
	s.SetState(Queued)
	assert.True(t, s.InQueue)
	assert.False(t, s.Testing)

	s.SetState(Testing)
	assert.False(t, s.InQueue)
	assert.True(t, s.Testing)
	assert.False(t, s.Tested)

	s.SetState(Failed)
	assert.False(t, s.Testing)
	assert.True(t, s.Tested)
}
