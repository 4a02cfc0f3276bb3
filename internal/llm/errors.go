package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/text/language"
)

// Error types reported by the gateway.
const (
	ErrorTypeBestModel = "BEST_MODEL_GENERATION_ERROR"
	ErrorTypeJudgement = "JUDGEMENT_GENERATION_ERROR"
)

const maxErrorBody = 1 << 20

// BackendError is the structured error body returned by the gateway:
//
//	{"error":{"err_code":..,"message":..,"message_cn":..,"message_en":..,"message_ja":..,"type":..}}
type BackendError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"err_code"`
	Message    string `json:"message"`
	MessageCN  string `json:"message_cn"`
	MessageEN  string `json:"message_en"`
	MessageJA  string `json:"message_ja"`
	Type       string `json:"type"`
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.MessageEN
	}
	if e.Code != "" {
		return fmt.Sprintf("backend error %s (%s): %s", e.Code, e.Type, msg)
	}
	return fmt.Sprintf("backend error (%s): %s", e.Type, msg)
}

// Localized returns the message for locale, falling back to the English and
// then the generic message.
func (e *BackendError) Localized(locale string) string {
	tag, err := language.Parse(locale)
	if err == nil {
		base, _ := tag.Base()
		switch base.String() {
		case "zh":
			if e.MessageCN != "" {
				return e.MessageCN
			}
		case "ja":
			if e.MessageJA != "" {
				return e.MessageJA
			}
		}
	}
	if e.MessageEN != "" {
		return e.MessageEN
	}
	return e.Message
}

// ParseBackendError decodes a gateway error body. It reports false when body
// does not carry the gateway's structured fields.
func ParseBackendError(statusCode int, body []byte) (*BackendError, bool) {
	var envelope struct {
		Error struct {
			Code      json.RawMessage `json:"err_code"`
			Message   string          `json:"message"`
			MessageCN string          `json:"message_cn"`
			MessageEN string          `json:"message_en"`
			MessageJA string          `json:"message_ja"`
			Type      string          `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false
	}
	e := envelope.Error
	if len(e.Code) == 0 && e.MessageCN == "" && e.MessageEN == "" && e.MessageJA == "" {
		return nil, false
	}

	code := string(bytes.Trim(e.Code, `"`))
	if code == "null" {
		code = ""
	}
	return &BackendError{
		StatusCode: statusCode,
		Code:       code,
		Message:    e.Message,
		MessageCN:  e.MessageCN,
		MessageEN:  e.MessageEN,
		MessageJA:  e.MessageJA,
		Type:       e.Type,
	}, true
}

// backendErrorDoer turns structured gateway error bodies into *BackendError.
// Other error responses are passed through for the OpenAI client to decode.
type backendErrorDoer struct {
	next *http.Client
}

func (d *backendErrorDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.next.Do(req)
	if err != nil || resp.StatusCode < http.StatusBadRequest {
		return resp, err
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read error response: %w", readErr)
	}
	if backendErr, ok := ParseBackendError(resp.StatusCode, body); ok {
		return nil, backendErr
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
