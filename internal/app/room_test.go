package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
	"github.com/dkeye/vcall/internal/protocol"
)

var (
	vp8RTP  = domain.RTPParameters{MimeType: "video/VP8", ClockRate: 90000, PayloadType: 96, SSRC: 1111}
	opusRTP = domain.RTPParameters{MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PayloadType: 111, SSRC: 2222}
)

type roomFixture struct {
	room  *Room
	alice *Peer
	bob   *Peer
	aN    *fakeNotifier
	bN    *fakeNotifier
}

func newRoomFixture(t *testing.T) *roomFixture {
	t.Helper()
	room := NewRoom("call")
	room.bindRouter(newFakeRouter(testCodecs), nil)

	aN, bN := &fakeNotifier{}, &fakeNotifier{}
	alice := NewPeer(domain.NewPeerID(), "alice@x.io", "Alice", aN)
	bob := NewPeer(domain.NewPeerID(), "bob@x.io", "Bob", bN)
	room.AddPeer(alice)
	room.AddPeer(bob)
	return &roomFixture{room: room, alice: alice, bob: bob, aN: aN, bN: bN}
}

func (f *roomFixture) sendTransport(t *testing.T, peer *Peer) domain.TransportInfo {
	t.Helper()
	info, err := f.room.CreateTransport(context.Background(), peer.ID(), domain.DirectionSend)
	require.NoError(t, err)
	return info
}

func (f *roomFixture) recvTransport(t *testing.T, peer *Peer) domain.TransportInfo {
	t.Helper()
	info, err := f.room.CreateTransport(context.Background(), peer.ID(), domain.DirectionRecv)
	require.NoError(t, err)
	return info
}

func TestRoomProduceBroadcastsToOthersOnly(t *testing.T) {
	f := newRoomFixture(t)
	send := f.sendTransport(t, f.alice)

	producerID, err := f.room.Produce(f.alice.ID(), send.ID, domain.LabelVideo, domain.MediaVideo, vp8RTP)
	require.NoError(t, err)
	require.NotEmpty(t, producerID)

	// The producer never hears about its own track.
	assert.Empty(t, f.aN.eventsOf(protocol.EvtNewProducers))

	events := f.bN.eventsOf(protocol.EvtNewProducers)
	require.Len(t, events, 1)
	list, ok := events[0].payload.([]domain.ProducerInfo)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, producerID, list[0].ProducerID)
	assert.Equal(t, f.alice.ID(), list[0].PeerID)
}

func TestRoomDuplicateLabelRejected(t *testing.T) {
	f := newRoomFixture(t)
	send := f.sendTransport(t, f.alice)

	_, err := f.room.Produce(f.alice.ID(), send.ID, domain.LabelVideo, domain.MediaVideo, vp8RTP)
	require.NoError(t, err)

	_, err = f.room.Produce(f.alice.ID(), send.ID, domain.LabelVideo, domain.MediaVideo, vp8RTP)
	require.ErrorIs(t, err, core.ErrDuplicateLabel)

	// Screen share is a distinct label carrying the same track kind.
	_, err = f.room.Produce(f.alice.ID(), send.ID, domain.LabelScreen, domain.MediaVideo, vp8RTP)
	require.NoError(t, err)

	// Empty label defaults to the kind.
	_, err = f.room.Produce(f.alice.ID(), send.ID, "", domain.MediaAudio, opusRTP)
	require.NoError(t, err)
	_, err = f.room.Produce(f.alice.ID(), send.ID, domain.LabelAudio, domain.MediaAudio, opusRTP)
	require.ErrorIs(t, err, core.ErrDuplicateLabel)
}

func TestRoomProduceLabelKindMismatch(t *testing.T) {
	f := newRoomFixture(t)
	send := f.sendTransport(t, f.alice)

	_, err := f.room.Produce(f.alice.ID(), send.ID, domain.LabelAudio, domain.MediaVideo, vp8RTP)
	require.Error(t, err)
	assert.Empty(t, f.bN.eventsOf(protocol.EvtNewProducers))
}

func TestRoomProduceUnknownTransport(t *testing.T) {
	f := newRoomFixture(t)
	_, err := f.room.Produce(f.alice.ID(), "stale-id", domain.LabelVideo, domain.MediaVideo, vp8RTP)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRoomConsumeCapabilityGate(t *testing.T) {
	f := newRoomFixture(t)
	send := f.sendTransport(t, f.alice)
	recv := f.recvTransport(t, f.bob)

	producerID, err := f.room.Produce(f.alice.ID(), send.ID, domain.LabelVideo, domain.MediaVideo, vp8RTP)
	require.NoError(t, err)

	// A subscriber without VP8 is rejected before the engine is touched.
	audioOnly := domain.RouterCapabilities{Codecs: testCodecs[:1]}
	_, err = f.room.Consume(f.bob.ID(), recv.ID, producerID, audioOnly)
	require.ErrorIs(t, err, core.ErrEngine)

	full := domain.RouterCapabilities{Codecs: testCodecs}
	info, err := f.room.Consume(f.bob.ID(), recv.ID, producerID, full)
	require.NoError(t, err)
	assert.Equal(t, producerID, info.ProducerID)
	assert.Equal(t, domain.MediaVideo, info.Kind)
}

func TestRoomConsumeUnknownProducer(t *testing.T) {
	f := newRoomFixture(t)
	recv := f.recvTransport(t, f.bob)

	_, err := f.room.Consume(f.bob.ID(), recv.ID, "ghost", domain.RouterCapabilities{Codecs: testCodecs})
	require.ErrorIs(t, err, core.ErrEngine)
}

func TestRoomProducerCloseNotifiesConsumerPeer(t *testing.T) {
	f := newRoomFixture(t)
	send := f.sendTransport(t, f.alice)
	recv := f.recvTransport(t, f.bob)

	producerID, err := f.room.Produce(f.alice.ID(), send.ID, domain.LabelVideo, domain.MediaVideo, vp8RTP)
	require.NoError(t, err)
	info, err := f.room.Consume(f.bob.ID(), recv.ID, producerID, domain.RouterCapabilities{Codecs: testCodecs})
	require.NoError(t, err)

	require.NoError(t, f.room.CloseProducer(f.alice.ID(), producerID))

	// Point-to-point: only the consuming peer hears consumerClosed.
	events := f.bN.eventsOf(protocol.EvtConsumerClosed)
	require.Len(t, events, 1)
	evt, ok := events[0].payload.(protocol.ConsumerClosedEvent)
	require.True(t, ok)
	assert.Equal(t, info.ID, evt.ConsumerID)
	assert.Empty(t, f.aN.eventsOf(protocol.EvtConsumerClosed))

	// The consumer is gone from bob's ownership map.
	_, err = f.bob.Consumer(info.ID)
	require.ErrorIs(t, err, core.ErrNotFound)

	// Alice's label slot is free again.
	_, err = f.room.Produce(f.alice.ID(), send.ID, domain.LabelVideo, domain.MediaVideo, vp8RTP)
	require.NoError(t, err)
}

func TestRoomCloseProducerNotOwned(t *testing.T) {
	f := newRoomFixture(t)
	send := f.sendTransport(t, f.alice)

	producerID, err := f.room.Produce(f.alice.ID(), send.ID, domain.LabelVideo, domain.MediaVideo, vp8RTP)
	require.NoError(t, err)

	// Bob cannot close alice's producer.
	err = f.room.CloseProducer(f.bob.ID(), producerID)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRoomRemovePeerReleasesEverything(t *testing.T) {
	f := newRoomFixture(t)
	send := f.sendTransport(t, f.alice)
	recv := f.recvTransport(t, f.alice)

	_, err := f.room.Produce(f.alice.ID(), send.ID, domain.LabelVideo, domain.MediaVideo, vp8RTP)
	require.NoError(t, err)
	require.NotZero(t, f.alice.ResourceCount())

	empty, err := f.room.RemovePeer(f.alice.ID())
	require.NoError(t, err)
	assert.False(t, empty)
	assert.Zero(t, f.alice.ResourceCount())

	// Stale references after removal fail with not-found.
	require.ErrorIs(t, f.room.ConnectTransport(f.alice.ID(), recv.ID, "answer"), core.ErrNotFound)

	empty, err = f.room.RemovePeer(f.bob.ID())
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestRoomRemoveUnknownPeer(t *testing.T) {
	f := newRoomFixture(t)
	_, err := f.room.RemovePeer("ghost")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRoomTransportFailureTeardown(t *testing.T) {
	f := newRoomFixture(t)
	send := f.sendTransport(t, f.alice)
	recv := f.recvTransport(t, f.bob)

	producerID, err := f.room.Produce(f.alice.ID(), send.ID, domain.LabelVideo, domain.MediaVideo, vp8RTP)
	require.NoError(t, err)
	info, err := f.room.Consume(f.bob.ID(), recv.ID, producerID, domain.RouterCapabilities{Codecs: testCodecs})
	require.NoError(t, err)

	transport, err := f.alice.Transport(send.ID)
	require.NoError(t, err)
	transport.(*fakeTransport).fireState(domain.TransportFailed)

	// The failure cascades through the transport close: alice's producer
	// is gone together with the transport.
	_, err = f.alice.Producer(producerID)
	require.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.alice.Transport(send.ID)
	require.ErrorIs(t, err, core.ErrNotFound)

	// Bob hears exactly one consumerClosed and his consumer is dropped.
	events := f.bN.eventsOf(protocol.EvtConsumerClosed)
	require.Len(t, events, 1)
	evt, ok := events[0].payload.(protocol.ConsumerClosedEvent)
	require.True(t, ok)
	assert.Equal(t, info.ID, evt.ConsumerID)
	_, err = f.bob.Consumer(info.ID)
	require.ErrorIs(t, err, core.ErrNotFound)

	// The label slot is free again on a fresh transport.
	send2 := f.sendTransport(t, f.alice)
	_, err = f.room.Produce(f.alice.ID(), send2.ID, domain.LabelVideo, domain.MediaVideo, vp8RTP)
	require.NoError(t, err)
}

func TestRoomFailedTransportIsClosedAndDropped(t *testing.T) {
	f := newRoomFixture(t)
	info := f.sendTransport(t, f.alice)

	transport, err := f.alice.Transport(info.ID)
	require.NoError(t, err)
	ft := transport.(*fakeTransport)

	ft.fireState(domain.TransportFailed)

	_, err = f.alice.Transport(info.ID)
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.True(t, ft.closed)
}

func TestRoomProducerListBackfill(t *testing.T) {
	f := newRoomFixture(t)
	send := f.sendTransport(t, f.alice)

	p1, err := f.room.Produce(f.alice.ID(), send.ID, domain.LabelVideo, domain.MediaVideo, vp8RTP)
	require.NoError(t, err)
	p2, err := f.room.Produce(f.alice.ID(), send.ID, domain.LabelAudio, domain.MediaAudio, opusRTP)
	require.NoError(t, err)

	list := f.room.ProducerList()
	ids := make([]string, 0, len(list))
	for _, info := range list {
		ids = append(ids, info.ProducerID)
		assert.Equal(t, f.alice.ID(), info.PeerID)
	}
	assert.ElementsMatch(t, []string{p1, p2}, ids)
}
