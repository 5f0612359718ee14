/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

// Messages coming from clients
type ClientMessage struct {
	Type       string `json:"type"`                  // "create_room", "join_room", "start", "end", "die", "leave_room"
	RoomCode   string `json:"room_code,omitempty"`   // all except create_room
	PlayerID   string `json:"player_id"`             // stable client-supplied identity
	PlayerName string `json:"player_name,omitempty"` // create_room / join_room
}

// RoomCreatedMessage is sent to the creator once their room exists.
type RoomCreatedMessage struct {
	Type     string `json:"type"` // "room_created"
	RoomCode string `json:"room_code"`
	PlayerID string `json:"player_id"`
	IsHost   bool   `json:"is_host"`
}

// JoinResponseMessage is sent to a joining client on success.
type JoinResponseMessage struct {
	Type     string `json:"type"` // "join_response"
	RoomCode string `json:"room_code"`
	PlayerID string `json:"player_id"`
	IsHost   bool   `json:"is_host"`
	Rejoined bool   `json:"rejoined"` // true when a disconnected player's state was restored
}

// CardsMessage carries a player's own hand and is never broadcast.
type CardsMessage struct {
	Type  string `json:"type"` // "cards"
	Cards []int  `json:"cards"`
}

// GameStatePlayer is one entry of the shared player list. Hands of other
// players never appear here, only whether a hand is held.
type GameStatePlayer struct {
	PlayerID    string `json:"player_id"`
	PlayerName  string `json:"player_name"`
	HasCards    bool   `json:"has_cards"`
	IsDied      bool   `json:"is_died"`
	IsFirstGame bool   `json:"is_first_game"`
}

// GameStateMessage is the full room snapshot broadcast after every
// mutation. IsHost, IsFirstGame, IsDied and Cards are personalized for
// the recipient; everything else is identical across recipients.
type GameStateMessage struct {
	Type         string            `json:"type"` // "game_state"
	RoomCode     string            `json:"room_code"`
	TotalPlayers int               `json:"total_players"`
	GameStarted  bool              `json:"game_started"`
	Players      []GameStatePlayer `json:"players"`
	IsHost       bool              `json:"is_host"`
	IsFirstGame  bool              `json:"is_first_game"`
	IsDied       bool              `json:"is_died"`
	Cards        []int             `json:"cards,omitempty"` // recipient's own hand
}

// ErrorMessage is sent only to the connection that caused the error.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

// LeftRoomMessage confirms a voluntary departure.
type LeftRoomMessage struct {
	Type string `json:"type"` // "left_room"
}
