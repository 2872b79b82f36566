package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Key identifies a cacheable request. Only the fields listed here take part
// in the fingerprint; anything else about the request is ignored.
type Key struct {
	Method  string
	URL     string
	Params  map[string]string
	Headers map[string]string
	Body    string
}

// Fingerprint returns the hex SHA-256 of the canonical JSON form of k.
// encoding/json sorts map keys, so equal keys always hash the same.
func Fingerprint(k Key) string {
	kwargs := make(map[string]interface{}, 3)
	if len(k.Params) > 0 {
		kwargs["params"] = k.Params
	}
	if len(k.Headers) > 0 {
		headers := make(map[string]string, len(k.Headers))
		for name, v := range k.Headers {
			headers[strings.ToLower(name)] = v
		}
		kwargs["headers"] = headers
	}
	if k.Body != "" {
		kwargs["body"] = k.Body
	}

	canonical := map[string]interface{}{
		"method": strings.ToUpper(k.Method),
		"url":    k.URL,
		"kwargs": kwargs,
	}

	// Marshal cannot fail for maps of strings.
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
