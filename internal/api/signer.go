package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Sign computes the request signature expected by the service: the base64 encoded
// HMAC-SHA256, keyed with secretKey, of
//
//	UPPER(method) ";" LOWER(host) ";" path ";" CanonicalQuery(params)
//
// params must not contain the signature itself.
func Sign(method, path, host string, params map[string]any, secretKey string) string {
	return base64.StdEncoding.EncodeToString(sumHmacSha256([]byte(secretKey), []byte(SigningPayload(method, path, host, params))))
}

// SigningPayload returns the exact byte string that Sign authenticates.
func SigningPayload(method, path, host string, params map[string]any) string {
	return strings.ToUpper(method) + ";" + strings.ToLower(host) + ";" + path + ";" + CanonicalQuery(params)
}

// CanonicalQuery serializes params as key=value pairs sorted by key byte order.
func CanonicalQuery(params map[string]any) string {
	return encodeQuery(params, sortedKeys(params))
}

func sumHmacSha256(secret, data []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)

	return h.Sum(nil)
}

func sortedKeys(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func encodeQuery(params map[string]any, keys []string) string {
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, encodeComponent(k)+"="+encodeComponent(valueString(params[k])))
	}
	return strings.Join(pairs, "&")
}

// encodeComponent percent-encodes s leaving only the RFC 3986 unreserved set
// (ALPHA, DIGIT, '-', '.', '_', '~') untouched. Spaces become %20.
func encodeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' {
			b.WriteByte(c)
			continue
		}
		switch c {
		case '-', '_', '.', '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0F])
		}
	}
	return b.String()
}

// valueString renders a parameter value the way the service canonicalizes it:
// lists and objects as compact JSON, scalars as plain text.
func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return ""
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t)
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Pointer:
		s, err := compactJSON(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return s
	}
	return fmt.Sprint(v)
}

// compactJSON encodes v without whitespace, escaping '/' and every non-ASCII
// character as \uXXXX so the service reproduces the same bytes.
func compactJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	raw := bytes.TrimRight(buf.Bytes(), "\n")

	var b strings.Builder
	b.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		raw = raw[size:]
		switch {
		case r == '/':
			b.WriteString(`\/`)
		case r < utf8.RuneSelf:
			b.WriteRune(r)
		case r > 0xFFFF:
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String(), nil
}
