/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"math/rand/v2"
	"sync"
	"time"
)

const (
	roomCapacity = 10
	handSize     = 2
)

// showdownDeck is the fixed deck a round is dealt from. Twenty values,
// enough for two cards each at full capacity.
var showdownDeck = []int{
	1, 2, 3, 4, 5, 6, 7, 8, 9, 10,
	100, 200, 300, 400, 500, 600, 700, 800, 900, 1000,
}

// PlayerState holds the data we store server-side for one player.
type PlayerState struct {
	ID     string
	Name   string
	client *Client // nil while disconnected
	hand   []int
}

// absentPlayer is a disconnected player's preserved state, waiting for
// either a reconnect or the grace-period timer.
type absentPlayer struct {
	state          *PlayerState
	disconnectedAt time.Time
	expiry         *time.Timer
}

// Session is one room's complete state. Every mutation and the snapshot
// broadcast it triggers happen under mu, so each player's view stays
// consistent. An identity lives in exactly one of players/disconnected.
type Session struct {
	code     string
	registry *RoomRegistry
	cfg      *Config

	mu            sync.Mutex
	players       []*PlayerState // join order; first entry inherits host
	disconnected  map[string]*absentPlayer
	hostID        string
	started       bool
	seenBefore    map[string]bool
	diedThisRound map[string]bool

	createdAt  time.Time
	lastActive time.Time
}

func newSession(code string, registry *RoomRegistry, cfg *Config) *Session {
	now := time.Now()
	return &Session{
		code:          code,
		registry:      registry,
		cfg:           cfg,
		disconnected:  make(map[string]*absentPlayer),
		seenBefore:    make(map[string]bool),
		diedThisRound: make(map[string]bool),
		createdAt:     now,
		lastActive:    now,
	}
}

func (s *Session) findPlayerLocked(playerID string) *PlayerState {
	for _, p := range s.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (s *Session) removePlayerLocked(playerID string) {
	dst := s.players[:0]
	for _, p := range s.players {
		if p.ID == playerID {
			continue
		}
		dst = append(dst, p)
	}
	s.players = dst
}

// promoteHostLocked keeps the host pointing at a present player: the
// earliest joiner still in the room.
func (s *Session) promoteHostLocked() {
	if s.hostID != "" && s.findPlayerLocked(s.hostID) != nil {
		return
	}
	if len(s.players) > 0 {
		s.hostID = s.players[0].ID
		return
	}
	s.hostID = ""
}

// preserveLocked moves a present player into disconnected and arms the
// one-shot grace timer. The timer is stopped on reconnect; if it fires
// after a reconnect anyway, expireDisconnect finds nothing and does
// nothing.
func (s *Session) preserveLocked(st *PlayerState) {
	s.removePlayerLocked(st.ID)
	st.client = nil

	playerID := st.ID
	s.disconnected[playerID] = &absentPlayer{
		state:          st,
		disconnectedAt: time.Now(),
		expiry: time.AfterFunc(s.cfg.gracePeriod, func() {
			s.expireDisconnect(playerID)
		}),
	}
}

func (s *Session) emptyLocked() bool {
	return len(s.players) == 0 && len(s.disconnected) == 0
}

// join handles both fresh joins and reconnects. On success the session
// owns replying to the joining client and broadcasting the new state.
func (s *Session) join(c *Client, playerID, playerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = time.Now()

	if ap, ok := s.disconnected[playerID]; ok {
		ap.expiry.Stop()
		delete(s.disconnected, playerID)

		st := ap.state
		st.client = c
		if s.diedThisRound[playerID] {
			// Forfeited players do not regain cards by reconnecting.
			st.hand = nil
		}
		s.players = append(s.players, st)
		s.promoteHostLocked()

		if s.started && len(st.hand) > 0 {
			c.trySend(CardsMessage{
				Type:  "cards",
				Cards: append([]int(nil), st.hand...),
			})
		}

		c.trySend(JoinResponseMessage{
			Type:     "join_response",
			RoomCode: s.code,
			PlayerID: playerID,
			IsHost:   playerID == s.hostID,
			Rejoined: true,
		})

		logf(s.cfg, "GAMES: Player %q rejoined %s", st.Name, s.code)

		s.broadcastStateLocked()

		return nil
	}

	if st := s.findPlayerLocked(playerID); st != nil {
		// Same identity on a new socket: adopt the connection
		// rather than seating the player twice.
		st.client = c

		if s.started && len(st.hand) > 0 {
			c.trySend(CardsMessage{
				Type:  "cards",
				Cards: append([]int(nil), st.hand...),
			})
		}

		c.trySend(JoinResponseMessage{
			Type:     "join_response",
			RoomCode: s.code,
			PlayerID: playerID,
			IsHost:   playerID == s.hostID,
			Rejoined: true,
		})

		s.broadcastStateLocked()

		return nil
	}

	for _, p := range s.players {
		if p.Name == playerName {
			return errNameTaken
		}
	}
	if s.started {
		return errGameInProgress
	}
	if len(s.players) >= roomCapacity {
		return errRoomFull
	}

	s.players = append(s.players, &PlayerState{
		ID:     playerID,
		Name:   playerName,
		client: c,
	})
	s.promoteHostLocked()

	c.trySend(JoinResponseMessage{
		Type:     "join_response",
		RoomCode: s.code,
		PlayerID: playerID,
		IsHost:   playerID == s.hostID,
		Rejoined: false,
	})

	logf(s.cfg, "GAMES: Player %q joined %s", playerName, s.code)

	s.broadcastStateLocked()

	return nil
}

// leave handles a voluntary departure. State is preserved for later
// reconnection whenever the player holds cards or a round is running;
// a lobby player with no cards is dropped outright.
func (s *Session) leave(playerID string) {
	s.mu.Lock()

	s.lastActive = time.Now()

	if st := s.findPlayerLocked(playerID); st != nil {
		if len(st.hand) > 0 || s.started {
			s.preserveLocked(st)
		} else {
			s.removePlayerLocked(playerID)
			delete(s.diedThisRound, playerID)
		}
		s.promoteHostLocked()

		logf(s.cfg, "GAMES: Player %q left %s", st.Name, s.code)
	} else if ap, ok := s.disconnected[playerID]; ok {
		ap.expiry.Stop()
		delete(s.disconnected, playerID)
		delete(s.diedThisRound, playerID)
	}

	if s.emptyLocked() {
		s.mu.Unlock()
		s.registry.remove(s.code)
		return
	}

	s.broadcastStateLocked()
	s.mu.Unlock()
}

// disconnect is invoked by the transport layer on connection loss. The
// stale-handle check keeps an old connection's close from evicting a
// player who already reconnected on a new one.
func (s *Session) disconnect(playerID string, c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.findPlayerLocked(playerID)
	if st == nil {
		return
	}
	if c != nil && st.client != c {
		return
	}

	s.lastActive = time.Now()

	s.preserveLocked(st)
	s.promoteHostLocked()

	logf(s.cfg, "GAMES: Player %q disconnected from %s", st.Name, s.code)

	s.broadcastStateLocked()
}

// expireDisconnect fires when a grace period ends. A player who
// reconnected first is no longer in disconnected, making this a no-op.
func (s *Session) expireDisconnect(playerID string) {
	s.mu.Lock()

	ap, ok := s.disconnected[playerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.disconnected, playerID)
	delete(s.diedThisRound, playerID)
	s.lastActive = time.Now()

	logf(s.cfg, "GAMES: Player %q timed out of %s", ap.state.Name, s.code)

	if s.emptyLocked() {
		s.mu.Unlock()
		s.registry.remove(s.code)
		return
	}

	s.broadcastStateLocked()
	s.mu.Unlock()
}

// start transitions Lobby to Active and deals two cards to every
// present player, in join order, from one uniform permutation of the
// deck. Each hand goes only to its owner's connection.
func (s *Session) start(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = time.Now()

	if playerID != s.hostID {
		return errNotHost
	}
	if len(s.players) < 2 {
		return errInsufficientPlayers
	}
	if s.started {
		return errAlreadyStarted
	}

	s.started = true

	perm := append([]int(nil), showdownDeck...)
	rand.Shuffle(len(perm), func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})

	next := 0
	for _, p := range s.players {
		p.hand = append([]int(nil), perm[next:next+handSize]...)
		next += handSize

		if p.client != nil {
			p.client.trySend(CardsMessage{
				Type:  "cards",
				Cards: append([]int(nil), p.hand...),
			})
		}
	}

	logf(s.cfg, "GAMES: Round started in %s with %d players", s.code, len(s.players))

	s.broadcastStateLocked()

	return nil
}

// end transitions back to Lobby. Hands stay visible as a round-end
// reveal until the next start redistributes; only forfeited players are
// forced empty. The forfeit marks are broadcast one last time, then
// cleared.
func (s *Session) end(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = time.Now()

	if playerID != s.hostID {
		return errNotHost
	}

	s.started = false

	for _, p := range s.players {
		s.seenBefore[p.ID] = true
		if s.diedThisRound[p.ID] {
			p.hand = nil
		}
	}

	logf(s.cfg, "GAMES: Round ended in %s", s.code)

	s.broadcastStateLocked()

	s.diedThisRound = make(map[string]bool)

	return nil
}

// forfeit marks a player as out for the round and clears their hand.
// Legal in the lobby too, where it amounts to a state marker on an
// already-empty hand until the next round ends.
func (s *Session) forfeit(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = time.Now()

	st := s.findPlayerLocked(playerID)
	if st == nil {
		return errPlayerNotFound
	}

	s.diedThisRound[playerID] = true
	st.hand = nil

	logf(s.cfg, "GAMES: Player %q forfeited in %s", st.Name, s.code)

	s.broadcastStateLocked()

	return nil
}

// broadcastStateLocked sends the personalized room snapshot to every
// connected player. Disconnected players hold no connection and appear
// neither as recipients nor in the player list.
func (s *Session) broadcastStateLocked() {
	players := make([]GameStatePlayer, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, GameStatePlayer{
			PlayerID:    p.ID,
			PlayerName:  p.Name,
			HasCards:    len(p.hand) > 0,
			IsDied:      s.diedThisRound[p.ID],
			IsFirstGame: !s.seenBefore[p.ID],
		})
	}

	for _, p := range s.players {
		if p.client == nil {
			continue
		}

		p.client.trySend(GameStateMessage{
			Type:         "game_state",
			RoomCode:     s.code,
			TotalPlayers: len(s.players),
			GameStarted:  s.started,
			Players:      players,
			IsHost:       p.ID == s.hostID,
			IsFirstGame:  !s.seenBefore[p.ID],
			IsDied:       s.diedThisRound[p.ID],
			Cards:        append([]int(nil), p.hand...),
		})
	}
}

// shutdown disconnects every client of this session (used by reaper).
func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.players {
		if p.client != nil && p.client.conn != nil {
			_ = p.client.conn.Close()
		}
	}
	for _, ap := range s.disconnected {
		ap.expiry.Stop()
	}
}
