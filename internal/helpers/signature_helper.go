package helpers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

func NewSignatureHeaderGenerator(clientID, secretKey, requestPath string) *SignatureHeaderGenerator {
	return &SignatureHeaderGenerator{
		ClientID:    clientID,
		SecretKey:   secretKey,
		RequestID:   uuid.New().String(),
		RequestPath: requestPath,
		Now:         time.Now,
	}
}

// SignatureHeaderGenerator signs outbound gateway requests with a body
// digest and an HMAC over the request components.
type SignatureHeaderGenerator struct {
	ClientID    string
	SecretKey   string
	RequestID   string
	RequestPath string
	Now         func() time.Time
}

func (d *SignatureHeaderGenerator) GenerateDigest(body []byte) string {
	hash := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(hash[:])
}

func (d *SignatureHeaderGenerator) GenerateSignature(digest, timestamp string) string {
	componentSignature := "Client-Id:" + d.ClientID + "\n" +
		"Request-Id:" + d.RequestID + "\n" +
		"Request-Timestamp:" + timestamp + "\n" +
		"Request-Target:" + d.RequestPath + "\n" +
		"Digest:" + digest

	mac := hmac.New(sha256.New, []byte(d.SecretKey))
	mac.Write([]byte(componentSignature))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return "HMACSHA256=" + signature
}

func (d *SignatureHeaderGenerator) GetHeaders(body []byte) map[string]string {
	digest := d.GenerateDigest(body)
	requestTimestamp := d.Now().UTC().Format("2006-01-02T15:04:05Z")
	signature := d.GenerateSignature(digest, requestTimestamp)

	return map[string]string{
		"Client-Id":         d.ClientID,
		"Request-Id":        d.RequestID,
		"Request-Timestamp": requestTimestamp,
		"Signature":         signature,
		"Content-Type":      "application/json",
		"Digest":            digest,
	}
}

// SignParts returns a hex HMAC-SHA256 over the parts joined with ":".
func SignParts(secretKey string, parts ...string) string {
	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(h.Sum(nil))
}

func VerifyParts(secretKey, signature string, parts ...string) bool {
	expected := SignParts(secretKey, parts...)
	return hmac.Equal([]byte(expected), []byte(signature))
}
