package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChanFeedDropsOldestWhenFull(t *testing.T) {
	f := NewChanFeed(1, nil)

	assert.True(t, f.Send(ChangeBatch{Docs: []RawDocument{{ID: "a"}}}))
	assert.True(t, f.Send(ChangeBatch{Docs: []RawDocument{{ID: "b"}}}))

	b := <-f.Batches()
	assert.Equal(t, "b", b.Docs[0].ID)
}

func TestChanFeedFailEndsOnce(t *testing.T) {
	closed := 0
	f := NewChanFeed(1, func() { closed++ })
	boom := errors.New("boom")

	f.Fail(boom)
	f.Close()
	f.Fail(errors.New("later"))

	_, open := <-f.Batches()
	assert.False(t, open)
	assert.Equal(t, boom, f.Err())
	assert.Equal(t, 1, closed)
	assert.False(t, f.Send(ChangeBatch{}))
}
