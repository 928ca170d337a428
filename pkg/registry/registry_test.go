package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id     int64
	userID string
}

func (s *fakeSession) ID() int64         { return s.id }
func (s *fakeSession) UserID() string    { return s.userID }
func (s *fakeSession) Send([]byte) error { return nil }

func TestRegistry_AddAndLookup(t *testing.T) {
	r := New()
	s1 := &fakeSession{id: 1, userID: "alice"}
	s2 := &fakeSession{id: 2, userID: "alice"}
	s3 := &fakeSession{id: 3, userID: "bob"}

	r.Add(s1)
	r.Add(s2)
	r.Add(s3)

	assert.Len(t, r.SessionsFor("alice"), 2)
	assert.Len(t, r.SessionsFor("bob"), 1)
	assert.Nil(t, r.SessionsFor("carol"))
	assert.ElementsMatch(t, []string{"alice", "bob"}, r.ConnectedUsers())
}

func TestRegistry_RemovePrunesEmptyUser(t *testing.T) {
	r := New()
	s1 := &fakeSession{id: 1, userID: "alice"}
	s2 := &fakeSession{id: 2, userID: "alice"}

	r.Add(s1)
	r.Add(s2)

	r.Remove(s1)
	require.Len(t, r.SessionsFor("alice"), 1)
	assert.Contains(t, r.ConnectedUsers(), "alice")

	r.Remove(s2)
	assert.Nil(t, r.SessionsFor("alice"))
	assert.Empty(t, r.ConnectedUsers(), "user entry pruned once its last session is gone")
}

func TestRegistry_RemoveUnknownSessionIsNoop(t *testing.T) {
	r := New()
	r.Remove(&fakeSession{id: 99, userID: "ghost"})
	assert.Empty(t, r.ConnectedUsers())
}

func TestRegistry_ConcurrentChurn(t *testing.T) {
	r := New()
	const users = 8
	const perUser = 20

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		userID := fmt.Sprintf("user%d", u)
		wg.Add(1)
		go func(userID string, base int64) {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				s := &fakeSession{id: base + int64(i), userID: userID}
				r.Add(s)
				_ = r.SessionsFor(userID)
				if i%2 == 0 {
					r.Remove(s)
				}
			}
		}(userID, int64(u*1000))
	}
	// Concurrent reads while writers churn.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < users*perUser; i++ {
			_ = r.ConnectedUsers()
		}
	}()
	wg.Wait()

	for u := 0; u < users; u++ {
		assert.Len(t, r.SessionsFor(fmt.Sprintf("user%d", u)), perUser/2)
	}
}
