package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrFrameTooLarge = errors.New("frame too large")
var ErrFieldTooLong = errors.New("field too long")
var ErrBadVersion = errors.New("unsupported protocol version")
var ErrMalformed = errors.New("malformed message")

const (
	fieldVersion protowire.Number = iota + 1
	fieldKind
	fieldPlayerName
	fieldCardID
	fieldTableCardID
	fieldSymbol
	fieldScore
	fieldLobbyID
	fieldReason
)

// Marshal encodes m as a frame payload (without the length prefix).
func Marshal(m Message) ([]byte, error) {
	if len(m.PlayerName) > MaxTextLen {
		return nil, fmt.Errorf("%w: player name is %d bytes", ErrFieldTooLong, len(m.PlayerName))
	}
	if len(m.Symbol) > MaxTextLen {
		return nil, fmt.Errorf("%w: symbol is %d bytes", ErrFieldTooLong, len(m.Symbol))
	}
	if len(m.Reason) > MaxReasonLen {
		return nil, fmt.Errorf("%w: reason is %d bytes", ErrFieldTooLong, len(m.Reason))
	}

	b := make([]byte, 0, 64)
	b = appendVarint(b, fieldVersion, Version)
	b = appendVarint(b, fieldKind, uint64(m.Kind))
	b = appendString(b, fieldPlayerName, m.PlayerName)
	b = appendInt32(b, fieldCardID, m.CardID)
	b = appendInt32(b, fieldTableCardID, m.TableCardID)
	b = appendString(b, fieldSymbol, m.Symbol)
	b = appendInt32(b, fieldScore, m.Score)
	b = appendInt32(b, fieldLobbyID, m.LobbyID)
	b = appendString(b, fieldReason, m.Reason)
	return b, nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// Ids and scores are always written, even when zero, since 0 is a valid card id.
func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(int64(v)))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// Unmarshal decodes a frame payload.
func Unmarshal(b []byte) (Message, error) {
	var m Message
	version := uint64(0)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldVersion, fieldKind, fieldCardID, fieldTableCardID, fieldScore, fieldLobbyID:
			if typ != protowire.VarintType {
				return Message{}, fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, num, typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
			setVarint(&m, &version, num, v)

		case fieldPlayerName, fieldSymbol, fieldReason:
			if typ != protowire.BytesType {
				return Message{}, fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, num, typ)
			}
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := setString(&m, num, s); err != nil {
				return Message{}, err
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if version != Version {
		return Message{}, fmt.Errorf("%w: %d", ErrBadVersion, version)
	}
	return m, nil
}

func setVarint(m *Message, version *uint64, num protowire.Number, v uint64) {
	switch num {
	case fieldVersion:
		*version = v
	case fieldKind:
		m.Kind = Kind(v)
	case fieldCardID:
		m.CardID = int32(protowire.DecodeZigZag(v))
	case fieldTableCardID:
		m.TableCardID = int32(protowire.DecodeZigZag(v))
	case fieldScore:
		m.Score = int32(protowire.DecodeZigZag(v))
	case fieldLobbyID:
		m.LobbyID = int32(protowire.DecodeZigZag(v))
	}
}

func setString(m *Message, num protowire.Number, s string) error {
	limit := MaxTextLen
	if num == fieldReason {
		limit = MaxReasonLen
	}
	if len(s) > limit {
		return fmt.Errorf("%w: field %d is %d bytes", ErrFieldTooLong, num, len(s))
	}
	switch num {
	case fieldPlayerName:
		m.PlayerName = s
	case fieldSymbol:
		m.Symbol = s
	case fieldReason:
		m.Reason = s
	}
	return nil
}

// WriteMessage writes one length-prefixed frame with a single Write call,
// so message-oriented transports carry exactly one frame per message.
func WriteMessage(w io.Writer, m Message) error {
	payload, err := Marshal(m)
	if err != nil {
		return err
	}
	frame := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)

	_, err = w.Write(frame)
	return err
}

// ReadMessage reads one frame. A clean close before the first byte returns io.EOF;
// a frame cut short returns io.ErrUnexpectedEOF.
func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, err
	}

	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > MaxFrameSize {
		return Message{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrFrameTooLarge, size, MaxFrameSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.ErrUnexpectedEOF
		}
		return Message{}, err
	}
	return Unmarshal(payload)
}
