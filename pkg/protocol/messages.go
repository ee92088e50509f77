package protocol

// Every frame is a 4-byte big-endian length followed by a payload of tagged fields
// (protobuf wire format). Unknown fields are skipped so either side can add fields.
//
//   1 version      varint   (must be 1)
//   2 kind         varint
//   3 player_name  bytes    (<= 49)
//   4 card_id      zigzag
//   5 table_id     zigzag   (-1 = end of game)
//   6 symbol       bytes    (<= 49)
//   7 score        zigzag
//   8 lobby_id     zigzag
//   9 reason       bytes    (<= 128)
//
// Client -> Server
// Join (first frame only):
//   lobby_id, player_name
// Guess:
//   symbol
// Leave: {}
//
// Server -> Client
// Deal (initial deal and after every accepted guess, to every member):
//   card_id (your hand), table_id, score (your score)
// GameOver:
//   table_id = -1, player_name = winner, score = winner score
// Reject (join refused, connection closes afterwards):
//   lobby_id, reason

type Kind uint8

const (
	KindUnknown  Kind = 0
	KindJoin     Kind = 1
	KindGuess    Kind = 2
	KindLeave    Kind = 3
	KindDeal     Kind = 16
	KindGameOver Kind = 17
	KindReject   Kind = 18
)

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "Join"
	case KindGuess:
		return "Guess"
	case KindLeave:
		return "Leave"
	case KindDeal:
		return "Deal"
	case KindGameOver:
		return "GameOver"
	case KindReject:
		return "Reject"
	default:
		return "Unknown"
	}
}

const (
	Version = 1

	// EndOfGame is the table card id carried by GameOver.
	EndOfGame int32 = -1

	MaxTextLen   = 49
	MaxReasonLen = 128
	MaxFrameSize = 1024
)

// Message has one layout for every kind; which fields matter depends on Kind.
type Message struct {
	Kind        Kind
	PlayerName  string
	CardID      int32
	TableCardID int32
	Symbol      string
	Score       int32
	LobbyID     int32
	Reason      string
}

func Join(lobbyID int32, name string) Message {
	return Message{Kind: KindJoin, LobbyID: lobbyID, PlayerName: name}
}

func Guess(symbol string) Message {
	return Message{Kind: KindGuess, Symbol: symbol}
}

func Deal(handID, tableID int32, score int32) Message {
	return Message{Kind: KindDeal, CardID: handID, TableCardID: tableID, Score: score}
}

func GameOver(winner string, score int32) Message {
	return Message{Kind: KindGameOver, TableCardID: EndOfGame, PlayerName: winner, Score: score}
}

func Reject(lobbyID int32, reason string) Message {
	return Message{Kind: KindReject, LobbyID: lobbyID, Reason: reason}
}
