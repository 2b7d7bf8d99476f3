package api

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// UserAgent is the client identifier tag sent with every signed request.
const UserAgent = "Go"

// TimestampLayout is the ISO-8601 layout of the signed timestamp parameter.
const TimestampLayout = "2006-01-02T15:04:05-07:00"

// Credentials holds the account key pair. The secret key is only used locally
// to compute signatures.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// FileParam is the JSON form of an uploaded file.
type FileParam struct {
	Name string `json:"name"` // base name of the local file
	B64  string `json:"b64"`  // standard base64 of the file contents
}

// SignedParams returns a copy of params extended with the authentication fields
// (timestamp, access_key, user_agent, signature).
//
// For POST requests a "files" entry holding a path or a list of paths is replaced
// by FileParam records; a file that cannot be read aborts with *FileReadError.
// A zero timestamp means "now".
func SignedParams(method, path, host string, params map[string]any, creds Credentials, timestamp time.Time) (map[string]any, error) {
	signed := make(map[string]any, len(params)+4)
	for k, v := range params {
		signed[k] = v
	}

	if method == http.MethodPost {
		if files, ok := signed["files"]; ok {
			records, err := buildFileParams(files)
			if err != nil {
				return nil, err
			}
			signed["files"] = records
		}
	}

	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	signed["timestamp"] = timestamp.Format(TimestampLayout)
	signed["access_key"] = creds.AccessKey
	signed["user_agent"] = UserAgent
	signed["signature"] = Sign(method, path, host, signed, creds.SecretKey)

	return signed, nil
}

func buildFileParams(files any) ([]FileParam, error) {
	var paths []string
	switch v := files.(type) {
	case string:
		paths = []string{v}
	case []string:
		paths = v
	case []any:
		for _, p := range v {
			s, ok := p.(string)
			if !ok {
				return nil, &FileReadError{Path: fmt.Sprint(p), Err: fmt.Errorf("file reference must be a path, got %T", p)}
			}
			paths = append(paths, s)
		}
	case []FileParam:
		return v, nil
	default:
		return nil, &FileReadError{Path: fmt.Sprint(v), Err: fmt.Errorf("unsupported files parameter type %T", v)}
	}

	records := make([]FileParam, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, &FileReadError{Path: p, Err: err}
		}
		records = append(records, FileParam{
			Name: filepath.Base(p),
			B64:  base64.StdEncoding.EncodeToString(data),
		})
	}
	return records, nil
}
