// Package protocol defines the JSON wire messages exchanged with the
// director service over the WebSocket connection. Both the client and
// its tests import these types — single source of truth.
package protocol

import (
	"encoding/json"
	"time"
)

// MessageType defines the type of protocol message
type MessageType string

const (
	// Client -> server message types
	TypeAuth           MessageType = "auth"            // bearer token handshake
	TypePing           MessageType = "ping"            // keepalive
	TypeRestoreSession MessageType = "restore_session" // resume a prior session after reconnect
	TypeUserInput      MessageType = "user_input"      // user text, attachments, UI actions

	// Server -> client message types
	TypeAuthResponse    MessageType = "auth_response"
	TypeAuthSuccess     MessageType = "auth_success"
	TypeAuthFailed      MessageType = "auth_failed"
	TypeDirectorMessage MessageType = "director_message" // slide deck and/or chat payload
	TypeError           MessageType = "error"
)

// ChatType tags the chat payload carried by a director message
type ChatType string

const (
	ChatTypeQuestion       ChatType = "question"
	ChatTypeSummary        ChatType = "summary"
	ChatTypeProgress       ChatType = "progress"
	ChatTypeActionRequired ChatType = "action_required"
)

// BaseMessage contains the envelope fields common to all protocol messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	MessageID string      `json:"message_id"`
	Timestamp time.Time   `json:"timestamp"`
	SessionID string      `json:"session_id,omitempty"`
}

// Envelope exposes the embedded base for stamping by the client
func (b *BaseMessage) Envelope() *BaseMessage { return b }

// Outgoing is implemented by every client-originated message through its
// embedded BaseMessage
type Outgoing interface {
	Envelope() *BaseMessage
}

// AuthMessage carries the bearer token after the transport opens
type AuthMessage struct {
	BaseMessage
	Token string `json:"token"`
}

// PingMessage is the periodic keepalive sent while authenticated
type PingMessage struct {
	BaseMessage
}

// RestoreSessionMessage asks the server to re-associate this transport
// with a previously established session. The session being restored is
// the envelope SessionID.
type RestoreSessionMessage struct {
	BaseMessage
}

// UserInputMessage carries user text plus any attachments and UI context
type UserInputMessage struct {
	BaseMessage
	Text            string           `json:"text"`
	ResponseTo      string           `json:"response_to,omitempty"` // question_id being answered
	Attachments     []Attachment     `json:"attachments,omitempty"`
	UIReferences    []UIReference    `json:"ui_references,omitempty"`
	FrontendActions []FrontendAction `json:"frontend_actions,omitempty"`
}

// Attachment is a file uploaded alongside user input
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

// UIReference points at a slide or element the user input refers to
type UIReference struct {
	SlideID   string `json:"slide_id"`
	ElementID string `json:"element_id,omitempty"`
}

// FrontendAction reports a UI action the user performed (button click,
// option selection) back to the director
type FrontendAction struct {
	ActionID string                 `json:"action_id"`
	Type     string                 `json:"type"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// AuthResponse is the server's answer to an AuthMessage. The server may
// use any of the auth_response/auth_success/auth_failed type tags.
type AuthResponse struct {
	BaseMessage
	Success   bool   `json:"success"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"` // message_id of the auth request
}

// DirectorMessage is the generic server push: a full slide deck, a chat
// payload, or both
type DirectorMessage struct {
	BaseMessage
	RequestID string       `json:"request_id,omitempty"` // message_id of the request this answers
	Data      DirectorData `json:"data"`
}

// DirectorData holds the optional payloads of a director message
type DirectorData struct {
	SlideData *SlideData `json:"slide_data,omitempty"`
	ChatData  *ChatData  `json:"chat_data,omitempty"`
}

// SlideData is always the full current deck, never a delta
type SlideData struct {
	Slides               []Slide              `json:"slides"`
	PresentationMetadata PresentationMetadata `json:"presentation_metadata"`
}

// Slide is one slide of the deck
type Slide struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Layout string       `json:"layout,omitempty"`
	Blocks []SlideBlock `json:"blocks,omitempty"`
}

// SlideBlock is one content region of a slide. Content may be plain
// text or an HTML fragment depending on the block type.
type SlideBlock struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // "text", "html", "image", "chart"
	Content string `json:"content"`
}

// PresentationMetadata describes the deck as a whole
type PresentationMetadata struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Theme      string    `json:"theme,omitempty"`
	SlideCount int       `json:"slide_count"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// ChatData is the conversational payload of a director message. Content
// arrives either as a bare JSON string or as a ChatContent object; it is
// kept raw here and normalized by the consumer.
type ChatData struct {
	Type     ChatType        `json:"type"`
	Content  json.RawMessage `json:"content"`
	Actions  []ChatAction    `json:"actions,omitempty"`
	Progress *Progress       `json:"progress,omitempty"`
}

// ChatContent is the structured form of a chat payload's content field
type ChatContent struct {
	Message    string   `json:"message"`
	Context    string   `json:"context,omitempty"`
	Options    []string `json:"options,omitempty"`
	QuestionID string   `json:"question_id,omitempty"`
	Required   bool     `json:"required,omitempty"`
}

// ChatAction is an action the user may take in response to a chat payload
type ChatAction struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

// Progress reports generation progress. Phase and Agents are optional
// structured signals; when present they take precedence over anything
// inferred from chat text.
type Progress struct {
	Percentage             float64       `json:"percentage"`
	CurrentStep            string        `json:"current_step"`
	StepsCompleted         []string      `json:"steps_completed,omitempty"`
	EstimatedTimeRemaining *int          `json:"estimated_time_remaining,omitempty"` // seconds
	Phase                  string        `json:"phase,omitempty"`
	Agents                 []AgentStatus `json:"agents,omitempty"`
}

// AgentStatus is a snapshot of one server-side agent's activity
type AgentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "idle", "working", "done", "error"
	Detail string `json:"detail,omitempty"`
}

// ErrorMessage is a server-reported error
type ErrorMessage struct {
	BaseMessage
	RequestID string      `json:"request_id,omitempty"` // message_id of the failed request, if any
	Err       ErrorDetail `json:"error"`
}

// ErrorDetail carries the error code, message and optional details
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error codes the client gives special treatment
const (
	ErrCodeRateLimited = "rate_limited"
	ErrCodeValidation  = "validation_error"
	ErrCodeServerError = "server_error"
)

// ParseMessage parses a raw JSON message into the appropriate typed struct
func ParseMessage(data []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, err
	}

	switch base.Type {
	case TypeAuthResponse, TypeAuthSuccess, TypeAuthFailed:
		var msg AuthResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		// Older servers only signal success via the type tag
		if base.Type == TypeAuthSuccess {
			msg.Success = true
		}
		return &msg, nil

	case TypeDirectorMessage:
		var msg DirectorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case TypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case TypeAuth:
		var msg AuthMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case TypePing:
		var msg PingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case TypeRestoreSession:
		var msg RestoreSessionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case TypeUserInput:
		var msg UserInputMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil

	default:
		return &base, nil
	}
}

// ResponseTypeFor maps a request type to the message type expected in
// reply, for request/response correlation.
func ResponseTypeFor(requestType MessageType) MessageType {
	switch requestType {
	case TypeAuth:
		return TypeAuthResponse
	default:
		return TypeDirectorMessage
	}
}
