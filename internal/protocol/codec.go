package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/dkeye/CodeSync/internal/core"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrBadPayload   = errors.New("bad payload")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json field names in validation errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode parses one inbound frame into a validated Event. Nothing is
// returned for frames that fail validation.
func Decode(data []byte) (Event, error) {
	// payloads are forwarded as text frames, which must be valid UTF-8
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: invalid utf-8", ErrBadPayload)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	payload := env.Payload
	if len(bytes.TrimSpace(payload)) == 0 || bytes.Equal(payload, []byte("null")) {
		payload = json.RawMessage("{}")
	}

	switch env.Type {
	case JoinRequest:
		var p Join
		if err := decodeInto(env.Type, payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case UserOnline, UserOffline:
		// any connectionId in the payload is ignored: status follows the sender
		return StatusChange{Online: env.Type == UserOnline}, nil
	case TypingStart:
		var p Typing
		if err := decodeInto(env.Type, payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypingPause:
		return TypingStop{}, nil
	case SyncFileStructure:
		var p fileStructureSync
		if err := decodeInto(env.Type, payload, &p); err != nil {
			return nil, err
		}
		out, err := json.Marshal(fileStructurePayload{
			FileTree:     p.FileTree,
			OpenFiles:    orNull(p.OpenFiles),
			ActiveFileID: orNull(p.ActiveFileID),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Type, err)
		}
		return FileStructureSync{Target: p.Target, Payload: out}, nil
	case RequestDrawing:
		return DrawingRequest{}, nil
	case SyncDrawing:
		var p drawingSync
		if err := decodeInto(env.Type, payload, &p); err != nil {
			return nil, err
		}
		return DrawingSync{Target: p.Target, CanvasData: p.CanvasData}, nil
	case Ping, WhoAmI, Leave:
		return Control{Kind: env.Type}, nil
	}

	shape, ok := relayShapes[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	if err := decodeInto(env.Type, payload, shape()); err != nil {
		return nil, err
	}
	return Relayed{Kind: env.Type, Payload: payload}, nil
}

func decodeInto(t Type, payload json.RawMessage, dst any) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPayload, t, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPayload, t, err)
	}
	return nil
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// Encode wraps payload in an envelope. A json.RawMessage payload is sent
// byte for byte.
func Encode(t Type, payload any) (core.Frame, error) {
	env := Envelope{Type: t}
	if payload != nil {
		raw, ok := payload.(json.RawMessage)
		if !ok {
			b, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", t, err)
			}
			raw = b
		}
		env.Payload = raw
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return core.Frame(b), nil
}

// PeekType reads only the envelope type, for replying to frames that failed
// to decode.
func PeekType(data []byte) Type {
	var env struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return ""
	}
	return env.Type
}
