// Package httpsig implements the HTTP Signature scheme as defined in draft-cavage-http-signatures-10.
package httpsig

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// RequestTarget is the pseudo-header used to sign the request target.
	RequestTarget = "(request-target)"
)

// Sign signs the request using the given keyID and privateKey.
// GET requests sign host, date and accept; POST requests additionally
// carry a SHA-256 Digest header computed over body, which is covered by
// the signature in place of host and accept.
func Sign(req *http.Request, keyID string, privateKey crypto.PrivateKey, body []byte) error {
	req.Header.Set("Date", time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")) // Date must be in GMT, not UTC 🤯
	headersToSign := []string{
		RequestTarget,
	}
	switch req.Method {
	case "GET":
		headersToSign = append(headersToSign, "host", "date", "accept")
	case "POST":
		headersToSign = append(headersToSign, "date", "digest")
		req.Header.Set("Digest", digestOf(body))
	}

	sb, err := signingString(req, headersToSign)
	if err != nil {
		return err
	}
	hash := sha256.Sum256(sb)

	sig, err := rsa.SignPKCS1v15(rand.Reader, privateKey.(*rsa.PrivateKey), crypto.SHA256, hash[:])
	if err != nil {
		return err
	}
	enc := base64.StdEncoding.EncodeToString(sig)
	req.Header.Set("Signature", fmt.Sprintf(`keyId="%s",algorithm="rsa-sha256",headers="%s",signature="%s"`, keyID, strings.Join(headersToSign, " "), enc))
	return nil
}

// signingString builds the canonical string covered by the signature from
// the listed headers, in order.
func signingString(req *http.Request, headers []string) ([]byte, error) {
	var sb bytes.Buffer
	for _, header := range headers {
		switch header {
		case RequestTarget:
			sb.WriteString("(request-target): ")
			sb.WriteString(strings.ToLower(req.Method))
			sb.WriteString(" ")
			sb.WriteString(req.URL.Path)

			if req.URL.RawQuery != "" {
				sb.WriteString("?")
				sb.WriteString(req.URL.RawQuery)
			}
		case "Host", "host":
			sb.WriteString("host: ")
			sb.WriteString(req.Host)
		case "Date", "date":
			sb.WriteString("date: ")
			sb.WriteString(req.Header.Get("Date"))
		case "Accept", "accept":
			sb.WriteString("accept: ")
			sb.WriteString(req.Header.Get("Accept"))
		case "Digest", "digest":
			sb.WriteString("digest: ")
			sb.WriteString(req.Header.Get("Digest"))
		case "Content-Type", "content-type":
			sb.WriteString("content-type: ")
			sb.WriteString(req.Header.Get("Content-Type"))
		default:
			return nil, fmt.Errorf("unknown header to sign: %s", header)
		}
		sb.WriteString("\n")
	}
	return bytes.TrimRight(sb.Bytes(), "\n"), nil // remove trailing newline
}

func digestOf(body []byte) string {
	hash := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
}
