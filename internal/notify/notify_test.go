package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drossen/confer/internal/domain"
)

type fakeConn struct {
	sent   [][]byte
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(b []byte) error {
	if c.full {
		return ErrBackpressure
	}
	c.sent = append(c.sent, b)
	return nil
}

func (c *fakeConn) Close() { c.closed = true }

func TestNotifyDeliversInOrder(t *testing.T) {
	r := NewRouter()
	conn := &fakeConn{}
	r.Bind("alice", conn)

	r.Notify("alice", EventNewProducer, NewProducerEvent{ProducerID: "p1"})
	r.Notify("alice", EventProducerClosed, ProducerClosedEvent{RemoteProducerIDs: []domain.ProducerID{"p1"}})

	require.Len(t, conn.sent, 2)

	var first struct {
		Event string           `json:"event"`
		Data  NewProducerEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(conn.sent[0], &first))
	assert.Equal(t, EventNewProducer, first.Event)
	assert.Equal(t, domain.ProducerID("p1"), first.Data.ProducerID)

	var second struct {
		Event string              `json:"event"`
		Data  ProducerClosedEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(conn.sent[1], &second))
	assert.Equal(t, EventProducerClosed, second.Event)
	assert.Equal(t, []domain.ProducerID{"p1"}, second.Data.RemoteProducerIDs)
}

func TestNotifyDropsWithoutChannel(t *testing.T) {
	r := NewRouter()
	// No binding for bob; must not panic or block.
	r.Notify("bob", EventNewProducer, NewProducerEvent{ProducerID: "p1"})
}

func TestNotifyDropsOnBackpressure(t *testing.T) {
	r := NewRouter()
	conn := &fakeConn{full: true}
	r.Bind("alice", conn)

	r.Notify("alice", EventNewProducer, NewProducerEvent{ProducerID: "p1"})
	assert.Empty(t, conn.sent)
}

func TestRebindClosesOldChannel(t *testing.T) {
	r := NewRouter()
	old := &fakeConn{}
	r.Bind("alice", old)

	fresh := &fakeConn{}
	r.Bind("alice", fresh)
	assert.True(t, old.closed)

	r.Notify("alice", EventNewProducer, NewProducerEvent{ProducerID: "p1"})
	assert.Empty(t, old.sent)
	assert.Len(t, fresh.sent, 1)
}

func TestUnbindIgnoresStaleConn(t *testing.T) {
	r := NewRouter()
	old := &fakeConn{}
	fresh := &fakeConn{}
	r.Bind("alice", old)
	r.Bind("alice", fresh)

	// The old connection's teardown must not evict the newer binding,
	// and must report itself stale so the caller does not run the
	// disconnect cascade against a live session.
	assert.False(t, r.Unbind("alice", old))
	r.Notify("alice", EventNewProducer, NewProducerEvent{ProducerID: "p1"})
	assert.Len(t, fresh.sent, 1)

	assert.True(t, r.Unbind("alice", fresh))
	r.Notify("alice", EventNewProducer, NewProducerEvent{ProducerID: "p2"})
	assert.Len(t, fresh.sent, 1)
	assert.False(t, r.Unbind("alice", fresh), "second unbind of the same conn is stale")
}

func TestNotifyAllFansOut(t *testing.T) {
	r := NewRouter()
	a := &fakeConn{}
	b := &fakeConn{}
	r.Bind("alice", a)
	r.Bind("bob", b)

	r.NotifyAll([]domain.UserID{"alice", "bob", "carol"}, EventProducerClosed,
		ProducerClosedEvent{RemoteProducerIDs: []domain.ProducerID{"p1"}})

	assert.Len(t, a.sent, 1)
	assert.Len(t, b.sent, 1)
}
