package signal

import (
	"sync"

	"github.com/dkeye/vcall/internal/app"
	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
)

// session is one connection's state machine: connected (no room) until a
// successful join, joined(room) after. All mutating access goes through mu.
type session struct {
	sid      string
	conn     *wsConn
	notifier core.Notifier

	mu     sync.Mutex
	room   *app.Room
	peerID domain.PeerID
}

func newSession(sid string, conn *wsConn) *session {
	return &session{sid: sid, conn: conn, notifier: conn}
}

// joinedRoom returns the room and peer id when the session is in the
// joined state.
func (s *session) joinedRoom() (*app.Room, domain.PeerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil, "", false
	}
	return s.room, s.peerID, true
}

func (s *session) setJoined(room *app.Room, peerID domain.PeerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room != nil {
		return false
	}
	s.room = room
	s.peerID = peerID
	return true
}

// takeRoom leaves the joined state and hands ownership of the membership
// back to the caller for teardown.
func (s *session) takeRoom() (*app.Room, domain.PeerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil, "", false
	}
	room, peerID := s.room, s.peerID
	s.room = nil
	s.peerID = ""
	return room, peerID, true
}
