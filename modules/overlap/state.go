package overlap

import (
	"sync"
)

// State keeps track of the participants of a region that subscribed to
// overlap events.
type State struct {
	mutex       sync.RWMutex
	subscribers map[uint32]struct{}
}

func (s *State) Subscribe(participantID uint32) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.subscribers == nil {
		s.subscribers = make(map[uint32]struct{})
	}
	s.subscribers[participantID] = struct{}{}
}

func (s *State) Unsubscribe(participantID uint32) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.subscribers, participantID)
}

func (s *State) IsSubscribed(participantID uint32) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.subscribers[participantID]
	return ok
}

func (s *State) SubscriberCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.subscribers)
}
