package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig() *Config {
	return &Config{
		gracePeriod: 5 * time.Minute,
	}
}

func newTestClient() *Client {
	return &Client{
		send:   make(chan any, 64),
		connID: uuid.NewString(),
	}
}

// newTestRoom creates a room with the given display names. Player IDs
// are p0, p1, ... in join order; p0 is the creator and host.
func newTestRoom(t *testing.T, cfg *Config, names ...string) (*RoomRegistry, *Session, []*Client) {
	t.Helper()

	reg := newRoomRegistry(cfg)
	clients := []*Client{newTestClient()}
	s := reg.createRoom(clients[0], "p0", names[0])

	for i, name := range names[1:] {
		c := newTestClient()
		require.NoError(t, s.join(c, fmt.Sprintf("p%d", i+1), name))
		clients = append(clients, c)
	}

	return reg, s, clients
}

func drain(c *Client) []any {
	var msgs []any
	for {
		select {
		case m := <-c.send:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func lastState(t *testing.T, c *Client) GameStateMessage {
	t.Helper()

	var last *GameStateMessage
	for _, m := range drain(c) {
		if gs, ok := m.(GameStateMessage); ok {
			last = &gs
		}
	}
	require.NotNil(t, last, "expected a game_state message")
	return *last
}

func lastCards(t *testing.T, c *Client) []int {
	t.Helper()

	var last *CardsMessage
	for _, m := range drain(c) {
		if cm, ok := m.(CardsMessage); ok {
			last = &cm
		}
	}
	require.NotNil(t, last, "expected a cards message")
	return last.Cards
}

func entryFor(t *testing.T, gs GameStateMessage, playerID string) GameStatePlayer {
	t.Helper()

	for _, p := range gs.Players {
		if p.PlayerID == playerID {
			return p
		}
	}
	t.Fatalf("player %s not in snapshot %+v", playerID, gs.Players)
	return GameStatePlayer{}
}

func inPlayers(s *Session, playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findPlayerLocked(playerID) != nil
}

func inDisconnected(s *Session, playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.disconnected[playerID]
	return ok
}

func hostID(s *Session) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostID
}

func TestCreateRoom(t *testing.T) {
	reg, s, clients := newTestRoom(t, newTestConfig(), "Alice")

	assert.Same(t, s, reg.lookup(s.code))
	assert.Equal(t, "p0", hostID(s))

	msgs := drain(clients[0])
	require.NotEmpty(t, msgs)

	created, ok := msgs[0].(RoomCreatedMessage)
	require.True(t, ok, "first message should be room_created, got %T", msgs[0])
	assert.Equal(t, s.code, created.RoomCode)
	assert.True(t, created.IsHost)

	gs, ok := msgs[len(msgs)-1].(GameStateMessage)
	require.True(t, ok)
	assert.Equal(t, 1, gs.TotalPlayers)
	assert.False(t, gs.GameStarted)
	assert.True(t, gs.IsHost)
	assert.True(t, gs.IsFirstGame)
}

func TestJoinRejections(t *testing.T) {
	t.Run("name taken by connected player", func(t *testing.T) {
		_, s, _ := newTestRoom(t, newTestConfig(), "Alice")

		err := s.join(newTestClient(), "p9", "Alice")
		assert.ErrorIs(t, err, errNameTaken)
	})

	t.Run("name of disconnected player is free", func(t *testing.T) {
		_, s, _ := newTestRoom(t, newTestConfig(), "Alice", "Bob")

		s.disconnect("p1", nil)

		err := s.join(newTestClient(), "p9", "Bob")
		assert.NoError(t, err)
	})

	t.Run("game in progress", func(t *testing.T) {
		_, s, _ := newTestRoom(t, newTestConfig(), "Alice", "Bob")

		require.NoError(t, s.start("p0"))

		err := s.join(newTestClient(), "p9", "Carol")
		assert.ErrorIs(t, err, errGameInProgress)
	})

	t.Run("room full", func(t *testing.T) {
		names := make([]string, roomCapacity)
		for i := range names {
			names[i] = fmt.Sprintf("Player%d", i)
		}
		_, s, _ := newTestRoom(t, newTestConfig(), names...)

		err := s.join(newTestClient(), "p99", "Eleventh")
		assert.ErrorIs(t, err, errRoomFull)
	})
}

func TestJoinBroadcastsToEveryone(t *testing.T) {
	_, s, clients := newTestRoom(t, newTestConfig(), "Alice", "Bob")

	for i, c := range clients {
		gs := lastState(t, c)
		assert.Equal(t, 2, gs.TotalPlayers, "client %d", i)
		assert.Equal(t, s.code, gs.RoomCode)
	}
}

func TestStartRequiresHostAndPlayers(t *testing.T) {
	cfg := newTestConfig()

	t.Run("not host", func(t *testing.T) {
		_, s, _ := newTestRoom(t, cfg, "Alice", "Bob")
		assert.ErrorIs(t, s.start("p1"), errNotHost)
	})

	t.Run("insufficient players", func(t *testing.T) {
		_, s, _ := newTestRoom(t, cfg, "Alice")
		assert.ErrorIs(t, s.start("p0"), errInsufficientPlayers)
	})

	t.Run("succeeds once a second player joins", func(t *testing.T) {
		_, s, _ := newTestRoom(t, cfg, "Alice")
		require.ErrorIs(t, s.start("p0"), errInsufficientPlayers)

		require.NoError(t, s.join(newTestClient(), "p1", "Bob"))
		assert.NoError(t, s.start("p0"))
	})

	t.Run("already started", func(t *testing.T) {
		_, s, _ := newTestRoom(t, cfg, "Alice", "Bob")
		require.NoError(t, s.start("p0"))
		assert.ErrorIs(t, s.start("p0"), errAlreadyStarted)
	})

	t.Run("starts at capacity", func(t *testing.T) {
		names := make([]string, roomCapacity)
		for i := range names {
			names[i] = fmt.Sprintf("Player%d", i)
		}
		_, s, _ := newTestRoom(t, cfg, names...)
		assert.NoError(t, s.start("p0"))
	})
}

func TestDealingIsExhaustiveWithoutReplacement(t *testing.T) {
	names := make([]string, roomCapacity)
	for i := range names {
		names[i] = fmt.Sprintf("Player%d", i)
	}
	_, s, clients := newTestRoom(t, newTestConfig(), names...)

	require.NoError(t, s.start("p0"))

	deck := make(map[int]bool, len(showdownDeck))
	for _, v := range showdownDeck {
		deck[v] = true
	}

	seen := make(map[int]bool)
	for i, c := range clients {
		hand := lastCards(t, c)
		require.Len(t, hand, handSize, "player %d", i)

		for _, v := range hand {
			assert.True(t, deck[v], "card %d not in deck", v)
			assert.False(t, seen[v], "card %d dealt twice", v)
			seen[v] = true
		}
	}

	// Ten players, two cards each, twenty-card deck: nothing left over.
	assert.Len(t, seen, len(showdownDeck))
}

func TestHandsStayPrivate(t *testing.T) {
	_, s, clients := newTestRoom(t, newTestConfig(), "Alice", "Bob")

	require.NoError(t, s.start("p0"))

	aliceHand := lastCards(t, clients[0])

	// Bob's snapshot shows Alice holds cards, never which ones.
	for _, m := range drain(clients[1]) {
		if gs, ok := m.(GameStateMessage); ok && gs.GameStarted {
			assert.True(t, entryFor(t, gs, "p0").HasCards)
			assert.NotEqual(t, aliceHand, gs.Cards)
		}
	}
}

func TestForfeit(t *testing.T) {
	t.Run("unknown player", func(t *testing.T) {
		_, s, _ := newTestRoom(t, newTestConfig(), "Alice")
		assert.ErrorIs(t, s.forfeit("p9"), errPlayerNotFound)
	})

	t.Run("clears hand and marks player", func(t *testing.T) {
		_, s, clients := newTestRoom(t, newTestConfig(), "Alice", "Bob")
		require.NoError(t, s.start("p0"))

		require.NoError(t, s.forfeit("p1"))

		gs := lastState(t, clients[0])
		entry := entryFor(t, gs, "p1")
		assert.True(t, entry.IsDied)
		assert.False(t, entry.HasCards)

		own := lastState(t, clients[1])
		assert.True(t, own.IsDied)
		assert.Empty(t, own.Cards)
	})

	t.Run("legal in the lobby", func(t *testing.T) {
		_, s, clients := newTestRoom(t, newTestConfig(), "Alice", "Bob")

		require.NoError(t, s.forfeit("p1"))

		gs := lastState(t, clients[0])
		assert.True(t, entryFor(t, gs, "p1").IsDied)
	})
}

func TestEnd(t *testing.T) {
	t.Run("not host", func(t *testing.T) {
		_, s, _ := newTestRoom(t, newTestConfig(), "Alice", "Bob")
		assert.ErrorIs(t, s.end("p1"), errNotHost)
	})

	t.Run("reveal keeps hands, died forced empty, marks cleared", func(t *testing.T) {
		_, s, clients := newTestRoom(t, newTestConfig(), "Alice", "Bob", "Carol")
		require.NoError(t, s.start("p0"))
		require.NoError(t, s.forfeit("p1"))

		require.NoError(t, s.end("p0"))

		gs := lastState(t, clients[0])
		assert.False(t, gs.GameStarted)
		assert.True(t, entryFor(t, gs, "p0").HasCards, "hands stay visible as the round-end reveal")
		assert.False(t, entryFor(t, gs, "p1").HasCards)
		assert.True(t, entryFor(t, gs, "p1").IsDied, "died marks survive into the final broadcast")
		assert.True(t, entryFor(t, gs, "p2").HasCards)

		// Everyone present has now seen a game.
		assert.False(t, gs.IsFirstGame)
		for _, p := range gs.Players {
			assert.False(t, p.IsFirstGame)
		}

		// The died set resets after that broadcast.
		s.mu.Lock()
		assert.Empty(t, s.diedThisRound)
		s.mu.Unlock()
	})
}

func TestLeave(t *testing.T) {
	t.Run("lobby player with no cards is dropped outright", func(t *testing.T) {
		_, s, _ := newTestRoom(t, newTestConfig(), "Alice", "Bob")

		s.leave("p1")

		assert.False(t, inPlayers(s, "p1"))
		assert.False(t, inDisconnected(s, "p1"))
	})

	t.Run("leaving mid-round preserves state", func(t *testing.T) {
		_, s, _ := newTestRoom(t, newTestConfig(), "Alice", "Bob")
		require.NoError(t, s.start("p0"))

		s.leave("p1")

		assert.False(t, inPlayers(s, "p1"))
		assert.True(t, inDisconnected(s, "p1"))
	})

	t.Run("leaving with reveal cards preserves state", func(t *testing.T) {
		_, s, _ := newTestRoom(t, newTestConfig(), "Alice", "Bob")
		require.NoError(t, s.start("p0"))
		require.NoError(t, s.end("p0"))

		s.leave("p1")

		assert.True(t, inDisconnected(s, "p1"))
	})

	t.Run("last player out destroys the room", func(t *testing.T) {
		reg, s, _ := newTestRoom(t, newTestConfig(), "Alice")

		s.leave("p0")

		assert.Nil(t, reg.lookup(s.code))
	})

	t.Run("room survives while a seat is preserved", func(t *testing.T) {
		reg, s, _ := newTestRoom(t, newTestConfig(), "Alice", "Bob")
		require.NoError(t, s.start("p0"))

		s.leave("p1")
		s.leave("p0")

		assert.NotNil(t, reg.lookup(s.code))
	})
}

func TestHostReassignment(t *testing.T) {
	t.Run("host disconnects", func(t *testing.T) {
		_, s, clients := newTestRoom(t, newTestConfig(), "Alice", "Bob", "Carol")

		s.disconnect("p0", nil)

		assert.Equal(t, "p1", hostID(s), "earliest remaining joiner becomes host")

		gs := lastState(t, clients[1])
		assert.True(t, gs.IsHost)
		gs = lastState(t, clients[2])
		assert.False(t, gs.IsHost)
	})

	t.Run("host leaves", func(t *testing.T) {
		_, s, _ := newTestRoom(t, newTestConfig(), "Alice", "Bob", "Carol")

		s.leave("p0")

		assert.Equal(t, "p1", hostID(s))
	})

	t.Run("sole reconnecting player regains host", func(t *testing.T) {
		_, s, _ := newTestRoom(t, newTestConfig(), "Alice", "Bob")
		require.NoError(t, s.start("p0"))

		s.disconnect("p0", nil)
		s.disconnect("p1", nil)
		assert.Equal(t, "", hostID(s))

		require.NoError(t, s.join(newTestClient(), "p1", "Bob"))
		assert.Equal(t, "p1", hostID(s))
	})
}

func TestDisconnectReconnect(t *testing.T) {
	t.Run("membership is exclusive", func(t *testing.T) {
		_, s, clients := newTestRoom(t, newTestConfig(), "Alice", "Bob")
		require.NoError(t, s.start("p0"))

		s.disconnect("p1", clients[1])
		assert.False(t, inPlayers(s, "p1"))
		assert.True(t, inDisconnected(s, "p1"))

		require.NoError(t, s.join(newTestClient(), "p1", "Bob"))
		assert.True(t, inPlayers(s, "p1"))
		assert.False(t, inDisconnected(s, "p1"))
	})

	t.Run("disconnected players vanish from snapshots", func(t *testing.T) {
		_, s, clients := newTestRoom(t, newTestConfig(), "Alice", "Bob")

		s.disconnect("p1", nil)

		gs := lastState(t, clients[0])
		assert.Equal(t, 1, gs.TotalPlayers)
		assert.Len(t, gs.Players, 1)
	})

	t.Run("hand restored and re-sent mid-round", func(t *testing.T) {
		_, s, clients := newTestRoom(t, newTestConfig(), "Alice", "Bob")
		require.NoError(t, s.start("p0"))
		dealt := lastCards(t, clients[1])

		s.disconnect("p1", clients[1])

		fresh := newTestClient()
		require.NoError(t, s.join(fresh, "p1", "Bob"))

		msgs := drain(fresh)
		var gotCards []int
		var joined *JoinResponseMessage
		for _, m := range msgs {
			switch v := m.(type) {
			case CardsMessage:
				gotCards = v.Cards
			case JoinResponseMessage:
				joined = &v
			}
		}
		require.NotNil(t, joined)
		assert.True(t, joined.Rejoined)
		assert.Equal(t, dealt, gotCards)
	})

	t.Run("forfeited player reconnects with an empty hand", func(t *testing.T) {
		_, s, clients := newTestRoom(t, newTestConfig(), "Alice", "Bob")
		require.NoError(t, s.start("p0"))
		require.NoError(t, s.forfeit("p1"))

		s.disconnect("p1", clients[1])

		// Plant a raw hand behind the forfeit mark to prove the
		// reconnect path clears it.
		s.mu.Lock()
		s.disconnected["p1"].state.hand = []int{100, 200}
		s.mu.Unlock()

		fresh := newTestClient()
		require.NoError(t, s.join(fresh, "p1", "Bob"))

		gs := lastState(t, fresh)
		assert.False(t, entryFor(t, gs, "p1").HasCards)
		assert.Empty(t, gs.Cards)
	})

	t.Run("same identity on a new socket adopts the connection", func(t *testing.T) {
		_, s, _ := newTestRoom(t, newTestConfig(), "Alice", "Bob")
		require.NoError(t, s.start("p0"))

		fresh := newTestClient()
		require.NoError(t, s.join(fresh, "p1", "Bob"))

		assert.True(t, inPlayers(s, "p1"))
		assert.False(t, inDisconnected(s, "p1"))
		assert.Len(t, lastCards(t, fresh), handSize)

		s.mu.Lock()
		assert.Len(t, s.players, 2)
		s.mu.Unlock()
	})

	t.Run("stale connection close cannot evict a reconnected player", func(t *testing.T) {
		_, s, clients := newTestRoom(t, newTestConfig(), "Alice", "Bob")

		old := clients[1]
		s.disconnect("p1", old)

		fresh := newTestClient()
		require.NoError(t, s.join(fresh, "p1", "Bob"))

		// The old socket's close callback arrives late.
		s.disconnect("p1", old)

		assert.True(t, inPlayers(s, "p1"))
	})
}

func TestGracePeriodExpiry(t *testing.T) {
	cfg := newTestConfig()
	cfg.gracePeriod = 20 * time.Millisecond

	t.Run("unreconnected player is permanently removed", func(t *testing.T) {
		_, s, clients := newTestRoom(t, cfg, "Alice", "Bob")
		require.NoError(t, s.start("p0"))

		s.disconnect("p1", clients[1])

		require.Eventually(t, func() bool {
			return !inDisconnected(s, "p1")
		}, time.Second, 5*time.Millisecond)

		assert.False(t, inPlayers(s, "p1"))

		gs := lastState(t, clients[0])
		assert.Equal(t, 1, gs.TotalPlayers)
	})

	t.Run("expiry of the last seat destroys the room", func(t *testing.T) {
		reg, s, clients := newTestRoom(t, cfg, "Alice", "Bob")
		require.NoError(t, s.start("p0"))

		s.disconnect("p0", clients[0])
		s.disconnect("p1", clients[1])

		require.Eventually(t, func() bool {
			return reg.lookup(s.code) == nil
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("reconnect beats the timer", func(t *testing.T) {
		_, s, clients := newTestRoom(t, cfg, "Alice", "Bob")

		s.disconnect("p1", clients[1])
		require.NoError(t, s.join(newTestClient(), "p1", "Bob"))

		time.Sleep(5 * cfg.gracePeriod)

		assert.True(t, inPlayers(s, "p1"))
		assert.False(t, inDisconnected(s, "p1"))
	})
}

// End-to-end flow: create, join, deal, die, end, drop, rejoin.
func TestFullRound(t *testing.T) {
	cfg := newTestConfig()
	reg := newRoomRegistry(cfg)

	alice := newTestClient()
	s := reg.createRoom(alice, "a", "Alice")
	require.Equal(t, "a", hostID(s))

	bob := newTestClient()
	require.NoError(t, s.join(bob, "b", "Bob"))

	for _, c := range []*Client{alice, bob} {
		gs := lastState(t, c)
		assert.Equal(t, 2, gs.TotalPlayers)
		assert.False(t, gs.GameStarted)
	}

	require.NoError(t, s.start("a"))

	aliceHand := lastCards(t, alice)
	bobHand := lastCards(t, bob)
	require.Len(t, aliceHand, 2)
	require.Len(t, bobHand, 2)
	for _, v := range aliceHand {
		assert.NotContains(t, bobHand, v)
	}

	require.NoError(t, s.forfeit("b"))
	gs := lastState(t, alice)
	assert.True(t, gs.GameStarted)
	assert.True(t, entryFor(t, gs, "b").IsDied)
	assert.False(t, entryFor(t, gs, "b").HasCards)

	require.NoError(t, s.end("a"))
	gs = lastState(t, alice)
	assert.False(t, gs.GameStarted)
	assert.False(t, gs.IsFirstGame)

	s.disconnect("b", bob)

	bob2 := newTestClient()
	require.NoError(t, s.join(bob2, "b", "Bob"))

	var joined *JoinResponseMessage
	for _, m := range drain(bob2) {
		if v, ok := m.(JoinResponseMessage); ok {
			joined = &v
		}
	}
	require.NotNil(t, joined)
	assert.True(t, joined.Rejoined)
	assert.False(t, joined.IsHost)
}
