package conversation

import "sync"

// Gate admits at most one in-flight utterance per conversation.
type Gate struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewGate() *Gate {
	return &Gate{inFlight: map[string]struct{}{}}
}

// Acquire claims the conversation. The returned release function must be
// called once the turn has been recorded.
func (g *Gate) Acquire(conversationID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[conversationID]; busy {
		return nil, ErrBusy
	}
	g.inFlight[conversationID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, conversationID)
			g.mu.Unlock()
		})
	}, nil
}
