// Package tipid handles the public TK-XXXXXX recipient identifiers and the QR payloads
// that carry them.
package tipid

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"regexp"
	"strings"
)

const (
	Prefix   = "TK-"
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLen  = 6
)

var formatRe = regexp.MustCompile(`^TK-[A-Z0-9]{6}$`)

// Valid reports whether s is a well-formed, upper-case TipID.
func Valid(s string) bool {
	return formatRe.MatchString(s)
}

// Generate returns a fresh random TipID.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(len(Prefix) + codeLen)
	b.WriteString(Prefix)
	max := big.NewInt(int64(len(Alphabet)))
	for i := 0; i < codeLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Payload is the structured form encoded into TipID QR codes.
type Payload struct {
	Type  string `json:"type"`
	TipID string `json:"tip_id"`
}

// Encode renders the structured QR payload for id.
func Encode(id string) string {
	data, _ := json.Marshal(Payload{Type: "tip", TipID: id})
	return string(data)
}

var identifierKeys = []string{"tip_id", "tipId", "id"}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// Normalize turns a decoded QR payload or typed text into a lookup identifier.
// Structured payloads (JSON, optionally base64 wrapped) of type "tip" or "payment" yield
// their identifier field; everything else falls back to the trimmed text. The result is
// always upper-cased. Normalize never fails; an empty result means there was nothing to look up.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if id, ok := fromJSON([]byte(trimmed)); ok {
		return strings.ToUpper(id)
	}
	for _, enc := range base64Encodings {
		decoded, err := enc.DecodeString(trimmed)
		if err != nil {
			continue
		}
		if id, ok := fromJSON(decoded); ok {
			return strings.ToUpper(id)
		}
	}
	return strings.ToUpper(trimmed)
}

func fromJSON(data []byte) (string, bool) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", false
	}
	kind, _ := obj["type"].(string)
	if kind != "tip" && kind != "payment" {
		return "", false
	}
	for _, key := range identifierKeys {
		if v, ok := obj[key].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}
