package games

// Each player joins a room with a display name; the first player in becomes the host
// The host starts a round, and every player is privately dealt two cards from a shared twenty-card deck
// Nobody ever sees another player's cards; the shared view only shows who is still holding a hand
// A player can "die" at any point, giving up their hand for the rest of the round
// The host ends the round; hands stay on the table as a reveal until the next deal

// Display formats:
// A ring of seats, one per player, showing name, host badge, died marker, and card backs
// The local player's own two cards face up at the bottom

// Implementation details:
// - Use websockets for all game events, with the room code carried in each message
// - Identify players by a stable client-generated ID so reconnects restore their seat
// - Keep a disconnected player's seat and hand for a grace period before giving it up

// How to play
// - One player creates a room and shares the code (or the QR link)
// - Others join with the code; up to ten seats
// - Host deals; players peek at their own cards and bluff, fold ("die"), or hold
// - Host ends the round for the reveal, then deals again
