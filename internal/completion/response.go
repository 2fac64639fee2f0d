package completion

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Response is a parsed model reply. Raw always holds the literal model text.
type Response struct {
	Valid   bool   `json:"valid"`
	Raw     string `json:"raw"`
	Text    string `json:"text,omitempty"`
	Sticker string `json:"sticker,omitempty"`
	GIF     string `json:"gif,omitempty"`
}

// emptyRaw is the Raw value used when the model produced no text at all.
const emptyRaw = "null"

// Parse decodes and validates raw model output. It never fails: malformed or
// ill-typed output yields Valid=false with Raw preserved.
//
// A valid reply is a JSON object with at least one of "text", "sticker" or
// "gif". Every one of those keys that is present must hold a non-empty
// string; "gif" may also be a positive integer id. Other keys are ignored.
func Parse(raw string) Response {
	resp := Response{Raw: raw}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return resp
	}

	var ok bool
	if v, present := obj["text"]; present {
		if resp.Text, ok = nonEmptyString(v); !ok {
			return Response{Raw: raw}
		}
	}
	if v, present := obj["sticker"]; present {
		if resp.Sticker, ok = nonEmptyString(v); !ok {
			return Response{Raw: raw}
		}
	}
	if v, present := obj["gif"]; present {
		if resp.GIF, ok = gifID(v); !ok {
			return Response{Raw: raw}
		}
	}

	resp.Valid = resp.Text != "" || resp.Sticker != "" || resp.GIF != ""
	if !resp.Valid {
		return Response{Raw: raw}
	}
	return resp
}

func nonEmptyString(v json.RawMessage) (string, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || v[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

func gifID(v json.RawMessage) (string, bool) {
	if s, ok := nonEmptyString(v); ok {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", false
	}
	id, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil || id <= 0 {
		return "", false
	}
	return strconv.FormatInt(id, 10), true
}
