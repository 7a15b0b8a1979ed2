package view

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaleResponseIsDiscarded(t *testing.T) {
	var st Store[string]
	first := st.Begin()
	second := st.Begin()

	now := time.Now()
	st.Dispatch(LoadSucceeded[string]{Token: second, Data: "newest", At: now})
	snap := st.Dispatch(LoadSucceeded[string]{Token: first, Data: "stale", At: now})

	assert.Equal(t, Ready, snap.Status)
	assert.Equal(t, "newest", snap.Data)
	assert.Equal(t, second, snap.Token)
}

func TestFailureKeepsPreviousData(t *testing.T) {
	var st Store[int]
	tok := st.Begin()
	st.Dispatch(LoadSucceeded[int]{Token: tok, Data: 42, At: time.Now()})

	tok = st.Begin()
	snap := st.Dispatch(LoadFailed{Token: tok, Err: errors.New("boom")})

	assert.Equal(t, Failed, snap.Status)
	assert.Equal(t, 42, snap.Data)
	require.EqualError(t, snap.Err, "boom")
}

func TestStaleFailureIgnored(t *testing.T) {
	var st Store[int]
	old := st.Begin()
	cur := st.Begin()
	st.Dispatch(LoadSucceeded[int]{Token: cur, Data: 7, At: time.Now()})
	snap := st.Dispatch(LoadFailed{Token: old, Err: errors.New("late")})
	assert.Equal(t, Ready, snap.Status)
	assert.NoError(t, snap.Err)
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s := Snapshot[int]{Fields: map[string]string{"amount": "5"}}
	next := Reduce(s, FieldChanged{Name: "amount", Value: "10"})
	assert.Equal(t, "5", s.Fields["amount"])
	assert.Equal(t, "10", next.Fields["amount"])

	next = Reduce(next, SubmitRequested{})
	assert.True(t, next.Submitting)
	assert.False(t, s.Submitting)
}

func TestFreshness(t *testing.T) {
	var st Store[string]
	now := time.Now()
	_, ok := st.Fresh(now, time.Minute)
	assert.False(t, ok)

	tok := st.Begin()
	st.Dispatch(LoadSucceeded[string]{Token: tok, Data: "x", At: now})
	got, ok := st.Fresh(now.Add(30*time.Second), time.Minute)
	assert.True(t, ok)
	assert.Equal(t, "x", got)

	_, ok = st.Fresh(now.Add(2*time.Minute), time.Minute)
	assert.False(t, ok)

	st.Dispatch(Invalidated{})
	_, ok = st.Fresh(now, time.Minute)
	assert.False(t, ok)
	assert.Equal(t, "x", st.Current().Data)
}
