/*
Package bus delivers wallet notifications to listeners, usually the UI layer.
A Station is owned by one wallet session. Notifications broadcast while nobody
listens are buffered and delivered to the first listener which is added.
*/
package bus

import (
	"container/list"
	"sync"
	"time"

	"github.com/findy-network/findy-wallet/agent/utils"
	"github.com/golang/glog"
	"github.com/lainio/err2/assert"
)

// NotifyType tells what changed.
type NotifyType string

const (
	// IdentitiesChanged is sent when the managed sequence changes.
	IdentitiesChanged NotifyType = "IdentitiesChanged"

	// ActiveChanged is sent when the active pointer moves.
	ActiveChanged NotifyType = "ActiveChanged"

	// SessionChanged is sent when the connected identity changes.
	SessionChanged NotifyType = "SessionChanged"
)

// Notify is one notification. Address is the active managed address for
// ActiveChanged and the connected address for SessionChanged; empty means
// none.
type Notify struct {
	ID        string
	Type      NotifyType
	Address   string
	Kind      string
	Live      bool
	Timestamp int64
}

// NotifyChan is what listeners read.
type NotifyChan chan Notify

// bufferSize bounds how many notifications wait for the first listener.
const bufferSize = 32

type buffer struct {
	buf *list.List
	sync.Mutex
}

// Station is the notification hub of one wallet session.
type Station struct {
	listeners map[string]NotifyChan
	sync.Mutex

	// buffer stores notifications if no one listens
	buffer
}

// New creates an empty station.
func New() *Station {
	return &Station{
		listeners: make(map[string]NotifyChan),
		buffer:    buffer{buf: list.New()},
	}
}

// NewNotify builds a notification with a fresh ID and timestamp.
func NewNotify(t NotifyType, address string) Notify {
	return Notify{
		ID:        utils.UUID(),
		Type:      t,
		Address:   address,
		Timestamp: time.Now().UnixNano(),
	}
}

// AddListener adds a listener by its ID. The ID must be unique.
func (s *Station) AddListener(id string) NotifyChan {
	c := make(NotifyChan, bufferSize)

	s.Lock()
	_, alreadyExists := s.listeners[id]
	assert.That(!alreadyExists, "listener: %s, already exists", id)
	s.listeners[id] = c
	s.Unlock()

	glog.V(4).Infoln("notify ADD for:", id)

	s.flushBuffered()
	return c
}

// RmListener removes the listener and closes its channel.
func (s *Station) RmListener(id string) {
	s.Lock()
	defer s.Unlock()

	glog.V(4).Infoln("notify RM for:", id)
	if ch, ok := s.listeners[id]; ok {
		close(ch)
		delete(s.listeners, id)
	}
}

// Broadcast sends the notification to every listener. It never blocks: a
// listener whose channel is full misses the notification. If no one listens
// the notification is buffered.
func (s *Station) Broadcast(n Notify) {
	if s == nil {
		return
	}
	s.Lock()
	sent := s.broadcast(n)
	s.Unlock()

	if !sent {
		glog.V(3).Infoln("there are no one to listen us!", n.Type)
		s.pushBuffered(n)
	}
}

func (s *Station) pushBuffered(n Notify) {
	s.buffer.Lock()
	defer s.buffer.Unlock()

	if s.buf.Len() >= bufferSize {
		s.buf.Remove(s.buf.Front())
	}
	s.buf.PushBack(n)
}

// flushBuffered sends all buffered notifications to listeners and resets the
// buffer.
func (s *Station) flushBuffered() {
	s.buffer.Lock()
	defer s.buffer.Unlock()

	l := s.buf
	for e := l.Front(); e != nil; {
		old := e
		e = e.Next()

		s.Lock()
		sent := s.broadcast(old.Value.(Notify))
		s.Unlock()

		if sent {
			l.Remove(old)
		}
	}
}

// broadcast doesn't lock the map, the caller does.
func (s *Station) broadcast(n Notify) (found bool) {
	for id, ch := range s.listeners {
		found = true
		select {
		case ch <- n:
		default:
			glog.Warningln("listener", id, "is too slow, dropping", n.Type)
		}
	}
	return found
}
