/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"sync"
	"time"
)

const (
	roomCodeLength = 6

	// Unambiguous uppercase alphabet: no 0/O, no 1/I.
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// RoomRegistry maps room codes to live sessions. It is created by the
// process entry point and passed by reference into the gateway; there
// is no package-level instance.
type RoomRegistry struct {
	cfg *Config

	mu       sync.Mutex
	sessions map[string]*Session
}

func newRoomRegistry(cfg *Config) *RoomRegistry {
	reg := &RoomRegistry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
	if cfg.sessionTimeout > 0 {
		go reg.reaperLoop()
	}
	return reg
}

// createRoom allocates a session with the caller as sole player and
// host. Room creation has no error path.
func (reg *RoomRegistry) createRoom(c *Client, playerID, playerName string) *Session {
	reg.mu.Lock()
	code := reg.newRoomCodeLocked()
	s := newSession(code, reg, reg.cfg)
	reg.sessions[code] = s
	reg.mu.Unlock()

	s.mu.Lock()
	s.players = append(s.players, &PlayerState{
		ID:     playerID,
		Name:   playerName,
		client: c,
	})
	s.hostID = playerID

	c.trySend(RoomCreatedMessage{
		Type:     "room_created",
		RoomCode: code,
		PlayerID: playerID,
		IsHost:   true,
	})

	logf(reg.cfg, "GAMES: Player %q created room %s", playerName, code)

	s.broadcastStateLocked()
	s.mu.Unlock()

	return s
}

func (reg *RoomRegistry) lookup(code string) *Session {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return reg.sessions[code]
}

func (reg *RoomRegistry) remove(code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.sessions[code]; ok {
		delete(reg.sessions, code)
		logf(reg.cfg, "GAMES: Removed empty room %s", code)
	}
}

// newRoomCodeLocked generates a crypto-random room code, resampling on
// the rare collision with an existing session.
func (reg *RoomRegistry) newRoomCodeLocked() string {
	for {
		buf := make([]byte, roomCodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomCodeLength)
		for i := range out {
			out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
		}
		code := string(out)

		if _, exists := reg.sessions[code]; !exists {
			return code
		}
	}
}

// reaperLoop periodically closes sessions that have been idle longer
// than the configured timeout. The session list is snapshotted first so
// the registry and session locks are never held together.
func (reg *RoomRegistry) reaperLoop() {
	ticker := time.NewTicker(reg.cfg.sessionTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-reg.cfg.sessionTimeout)

		reg.mu.Lock()
		candidates := make([]*Session, 0, len(reg.sessions))
		for _, s := range reg.sessions {
			candidates = append(candidates, s)
		}
		reg.mu.Unlock()

		for _, s := range candidates {
			s.mu.Lock()
			last := s.lastActive
			s.mu.Unlock()

			if last.Before(cutoff) {
				reg.remove(s.code)
				go s.shutdown()
			}
		}
	}
}
