package api

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Text is a JSON scalar kept in its textual form. The service reports ids both as
// strings and as numbers; both decode to the same decimal text.
type Text string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (t *Text) UnmarshalJSON(b []byte) error {
	*t = Text(rawText(b))
	return nil
}

// StatusKind enumerates the terminal and non-terminal outcomes of a status poll.
type StatusKind int

const (
	StatusPending   StatusKind = iota // job still running
	StatusSucceeded                   // error_id == "0"
	StatusFailed                      // non-zero error_id or an error_message
	StatusMalformed                   // response without an id
)

func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// JobStatus is a decoded /code/{id}.json response.
type JobStatus struct {
	Kind         StatusKind
	ID           string
	ErrorID      string
	ErrorMessage string
	Raw          []byte
}

// UploadResponse is the response of POST /code.json.
type UploadResponse struct {
	ID Text `json:"id"`
}

// SourceInfo describes one file of a project.
type SourceInfo struct {
	ID        Text   `json:"id"`
	Filename  string `json:"filename"`
	Extension string `json:"extension"`
}

// ProjectInfo is one entry of GET /code.json.
type ProjectInfo struct {
	ID           Text         `json:"id"`
	ErrorID      Text         `json:"error_id"`
	ErrorMessage string       `json:"error_message"`
	ReceivedAt   string       `json:"received_at"`
	FinishedAt   string       `json:"finished_at"`
	Sources      []SourceInfo `json:"sources"`
}

// envelope captures the fields the client inspects, keeping presence information.
type envelope struct {
	ID           json.RawMessage `json:"id"`
	ErrorID      json.RawMessage `json:"error_id"`
	ErrorMessage json.RawMessage `json:"error_message"`
	Error        json.RawMessage `json:"error"`
	Message      json.RawMessage `json:"message"`
}

func decodeEnvelope(body []byte) (envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return envelope{}, &ProtocolError{Message: "failed to parse JSON", Body: body}
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return envelope{}, &ProtocolError{Message: "failed to parse JSON", Body: body}
	}
	if isEmpty(env.Error) {
		return env, nil
	}
	msg := rawText(env.Message)
	if msg == "" {
		msg = rawText(env.Error)
	}
	return env, &ProtocolError{Code: rawText(env.Error), Message: msg, Body: body}
}

// DecodeStatus classifies a status poll response. A body that is not a JSON
// object, or that carries a non-empty "error", yields *ProtocolError.
func DecodeStatus(body []byte) (JobStatus, error) {
	env, err := decodeEnvelope(body)
	if err != nil {
		return JobStatus{}, err
	}

	st := JobStatus{
		ID:           rawText(env.ID),
		ErrorID:      rawText(env.ErrorID),
		ErrorMessage: rawText(env.ErrorMessage),
		Raw:          body,
	}

	switch {
	case isSet(env.ErrorID) && st.ErrorID == "0":
		st.Kind = StatusSucceeded
	case isSet(env.ErrorID) || isSet(env.ErrorMessage):
		st.Kind = StatusFailed
	case !isSet(env.ID) || isSet(env.Error):
		st.Kind = StatusMalformed
	default:
		st.Kind = StatusPending
	}
	return st, nil
}

// DecodeUpload extracts the project id assigned by the service.
func DecodeUpload(body []byte) (string, error) {
	if _, err := decodeEnvelope(body); err != nil {
		return "", err
	}
	var resp UploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ProtocolError{Message: "failed to parse JSON", Body: body}
	}
	if resp.ID == "" {
		return "", &UnexpectedResponseError{Body: body}
	}
	return string(resp.ID), nil
}

// CheckResponse returns *ProtocolError when body is not a JSON object or reports an error.
func CheckResponse(body []byte) error {
	_, err := decodeEnvelope(body)
	return err
}

// CheckDownload inspects a download body. Archives and source files pass through;
// a JSON object reporting an error yields *ProtocolError.
func CheckDownload(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		// a source file that merely starts with a brace
		return nil
	}
	if isEmpty(env.Error) {
		return nil
	}
	_, err := decodeEnvelope(trimmed)
	return err
}

// DecodeProjects decodes the project listing.
func DecodeProjects(body []byte) ([]ProjectInfo, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var projects []ProjectInfo
		if err := json.Unmarshal(trimmed, &projects); err != nil {
			return nil, &ProtocolError{Message: "failed to parse JSON", Body: body}
		}
		return projects, nil
	}

	env, err := decodeEnvelope(trimmed)
	if err != nil {
		return nil, err
	}
	if !isSet(env.ID) {
		return nil, &UnexpectedResponseError{Body: body}
	}
	var p ProjectInfo
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, &ProtocolError{Message: "failed to parse JSON", Body: body}
	}
	return []ProjectInfo{p}, nil
}

// isSet reports whether a field is present and not null.
func isSet(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// isEmpty treats absent, null, false, 0, "", "0", [] and {} as empty.
func isEmpty(raw json.RawMessage) bool {
	if !isSet(raw) {
		return true
	}
	switch string(bytes.TrimSpace(raw)) {
	case "false", "0", `""`, `"0"`, "[]", "{}":
		return true
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil && f == 0 {
		return true
	}
	return false
}

func rawText(raw json.RawMessage) string {
	if !isSet(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(bytes.TrimSpace(raw))
}
