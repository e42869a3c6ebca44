package core

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drossen/confer/internal/domain"
	"github.com/drossen/confer/internal/media"
	"github.com/drossen/confer/internal/media/mediatest"
)

var audioParams = media.RtpParameters{
	Codecs:    []media.RtpCodec{{MimeType: "audio/opus", ClockRate: 48000, Channels: 2}},
	Encodings: []media.RtpEncoding{{SSRC: 1234}},
}

// testRoom builds a room with a live fake router installed.
func testRoom(t *testing.T, s *Store, id domain.RoomID) (*Room, media.Router) {
	t.Helper()
	engine := mediatest.NewEngine()
	router, err := engine.CreateRouter(context.Background(), media.DefaultCodecs)
	require.NoError(t, err)
	room := s.GetOrCreateRoom(id)
	require.NotNil(t, room.AdoptRouter(router))
	return room, router
}

func newTransport(t *testing.T, router media.Router) media.Transport {
	t.Helper()
	tr, err := router.CreateTransport(context.Background())
	require.NoError(t, err)
	return tr
}

func TestGetOrCreateRoomIsIdempotent(t *testing.T) {
	s := NewStore()
	a := s.GetOrCreateRoom("r1")
	b := s.GetOrCreateRoom("r1")
	assert.Same(t, a, b)
}

func TestAddPeerDedupesDuplicateJoin(t *testing.T) {
	s := NewStore()
	room, _ := testRoom(t, s, "r1")

	require.True(t, room.AddPeer("alice"))
	require.True(t, room.AddPeer("alice"))
	assert.Equal(t, 1, room.PeerCount())
}

func TestRemovePeerCascade(t *testing.T) {
	s := NewStore()
	room, router := testRoom(t, s, "r1")
	require.True(t, room.AddPeer("alice"))
	require.True(t, room.AddPeer("bob"))

	sendA := newTransport(t, router)
	require.NoError(t, room.AddTransport("alice", domain.DirectionSend, sendA))
	prodA, err := sendA.Produce(context.Background(), domain.MediaAudio, audioParams)
	require.NoError(t, err)
	_, err = room.AddProducer("alice", sendA.ID(), prodA)
	require.NoError(t, err)

	recvB := newTransport(t, router)
	require.NoError(t, room.AddTransport("bob", domain.DirectionRecv, recvB))
	consB, err := recvB.Consume(context.Background(), prodA.ID(), media.RtpCapabilities{Codecs: media.DefaultCodecs})
	require.NoError(t, err)
	require.NoError(t, room.AddConsumer("bob", recvB.ID(), consB))

	res, err := s.RemovePeer("r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.ProducerID{prodA.ID()}, res.ClosedProducerIDs)
	assert.Equal(t, []domain.UserID{"bob"}, res.Remaining)
	assert.False(t, res.Empty)

	// Alice's entities are gone and their engine handles closed.
	assert.True(t, prodA.(*mediatest.Producer).Closed())
	assert.True(t, sendA.(*mediatest.Transport).Closed())
	assert.False(t, room.HasProducer(prodA.ID()))
	assert.False(t, room.HasPeer("alice"))

	// Bob stays, but his consumer of alice's stream went with it.
	assert.True(t, room.HasPeer("bob"))
	assert.True(t, consB.(*mediatest.Consumer).Closed())
	_, err = room.FindConsumer("bob", consB.ID())
	assert.ErrorIs(t, err, domain.ErrConsumerNotFound)
	_, err = room.FindTransport("bob", recvB.ID(), domain.DirectionRecv)
	assert.NoError(t, err)
}

func TestRemoveLastPeerTearsRoomDown(t *testing.T) {
	s := NewStore()
	room, router := testRoom(t, s, "r1")
	require.True(t, room.AddPeer("alice"))

	res, err := s.RemovePeer("r1", "alice")
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Empty(t, res.Remaining)

	_, err = s.Room("r1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.True(t, router.(*mediatest.Router).Closed())

	// The dead room instance refuses late joiners.
	assert.False(t, room.AddPeer("bob"))
}

func TestAddConsumerRejectsClosedProducer(t *testing.T) {
	s := NewStore()
	room, router := testRoom(t, s, "r1")
	require.True(t, room.AddPeer("alice"))
	require.True(t, room.AddPeer("bob"))

	sendA := newTransport(t, router)
	require.NoError(t, room.AddTransport("alice", domain.DirectionSend, sendA))
	prodA, err := sendA.Produce(context.Background(), domain.MediaAudio, audioParams)
	require.NoError(t, err)
	_, err = room.AddProducer("alice", sendA.ID(), prodA)
	require.NoError(t, err)

	recvB := newTransport(t, router)
	require.NoError(t, room.AddTransport("bob", domain.DirectionRecv, recvB))
	consB, err := recvB.Consume(context.Background(), prodA.ID(), media.RtpCapabilities{Codecs: media.DefaultCodecs})
	require.NoError(t, err)

	// Alice leaves between the engine-side consume and the store commit.
	// The late commit must be rejected, or the consumer would outlive
	// its source's cascade with nothing left to close it.
	_, err = s.RemovePeer("r1", "alice")
	require.NoError(t, err)

	err = room.AddConsumer("bob", recvB.ID(), consB)
	assert.ErrorIs(t, err, domain.ErrNotCapable)
	_, err = room.FindConsumer("bob", consB.ID())
	assert.ErrorIs(t, err, domain.ErrConsumerNotFound)
}

func TestRemovePeerUnknown(t *testing.T) {
	s := NewStore()
	room, _ := testRoom(t, s, "r1")
	require.True(t, room.AddPeer("alice"))

	_, err := s.RemovePeer("r1", "ghost")
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)
	_, err = s.RemovePeer("nope", "alice")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestCloseTransportCascade(t *testing.T) {
	s := NewStore()
	room, router := testRoom(t, s, "r1")
	require.True(t, room.AddPeer("alice"))
	require.True(t, room.AddPeer("bob"))

	sendA := newTransport(t, router)
	require.NoError(t, room.AddTransport("alice", domain.DirectionSend, sendA))
	prodA, err := sendA.Produce(context.Background(), domain.MediaAudio, audioParams)
	require.NoError(t, err)
	_, err = room.AddProducer("alice", sendA.ID(), prodA)
	require.NoError(t, err)

	recvB := newTransport(t, router)
	require.NoError(t, room.AddTransport("bob", domain.DirectionRecv, recvB))
	consB, err := recvB.Consume(context.Background(), prodA.ID(), media.RtpCapabilities{Codecs: media.DefaultCodecs})
	require.NoError(t, err)
	require.NoError(t, room.AddConsumer("bob", recvB.ID(), consB))

	res, err := room.CloseTransport("alice", sendA.ID())
	require.NoError(t, err)
	assert.Equal(t, []domain.ProducerID{prodA.ID()}, res.ClosedProducerIDs)
	assert.ElementsMatch(t, []domain.UserID{"bob"}, res.Remaining)

	// The transport, its producer and the dependent remote consumer are
	// gone; alice herself remains a peer.
	assert.True(t, room.HasPeer("alice"))
	assert.False(t, room.HasProducer(prodA.ID()))
	assert.True(t, consB.(*mediatest.Consumer).Closed())
	_, err = room.FindTransport("alice", sendA.ID(), domain.DirectionSend)
	assert.ErrorIs(t, err, domain.ErrTransportNotFound)

	_, err = room.CloseTransport("alice", sendA.ID())
	assert.ErrorIs(t, err, domain.ErrTransportNotFound)
}

func TestFindTransportChecksOwnerAndDirection(t *testing.T) {
	s := NewStore()
	room, router := testRoom(t, s, "r1")
	require.True(t, room.AddPeer("alice"))

	tr := newTransport(t, router)
	require.NoError(t, room.AddTransport("alice", domain.DirectionSend, tr))

	_, err := room.FindTransport("alice", tr.ID(), domain.DirectionSend)
	assert.NoError(t, err)
	_, err = room.FindTransport("bob", tr.ID(), domain.DirectionSend)
	assert.ErrorIs(t, err, domain.ErrTransportNotFound)
	_, err = room.FindTransport("alice", tr.ID(), domain.DirectionRecv)
	assert.ErrorIs(t, err, domain.ErrTransportNotFound)
}

func TestConcurrentProduceSeesNoLostUpdate(t *testing.T) {
	s := NewStore()
	room, router := testRoom(t, s, "r1")
	require.True(t, room.AddPeer("alice"))
	require.True(t, room.AddPeer("bob"))

	users := []domain.UserID{"alice", "bob"}
	existing := make([][]PeerProducer, len(users))

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u domain.UserID) {
			defer wg.Done()
			tr := newTransport(t, router)
			assert.NoError(t, room.AddTransport(u, domain.DirectionSend, tr))
			p, err := tr.Produce(context.Background(), domain.MediaAudio, audioParams)
			assert.NoError(t, err)
			existing[i], err = room.AddProducer(u, tr.ID(), p)
			assert.NoError(t, err)
		}(i, u)
	}
	wg.Wait()

	// Both registrations landed; no lost update.
	for i := range users {
		require.NotNil(t, existing[i])
	}
	total := 0
	for _, ex := range existing {
		total += len(ex)
		for _, pp := range ex {
			assert.True(t, room.HasProducer(pp.ProducerID))
		}
	}
	// The snapshot is atomic with registration, so exactly one of the
	// two produce calls observed the other.
	assert.Equal(t, 1, total)
}

func TestStoreRoomsListing(t *testing.T) {
	s := NewStore()
	r1, _ := testRoom(t, s, "r1")
	require.True(t, r1.AddPeer("alice"))
	require.True(t, r1.AddPeer("bob"))
	testRoom(t, s, "r2")

	infos := s.Rooms()
	require.Len(t, infos, 2)
	byID := map[domain.RoomID]int{}
	for _, info := range infos {
		byID[info.ID] = info.PeerCount
	}
	assert.Equal(t, 2, byID["r1"])
	assert.Equal(t, 0, byID["r2"])
}
