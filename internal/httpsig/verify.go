package httpsig

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Verification failures carry a distinguishable reason for logging.
// Callers must not leak which reason occurred to the remote peer; the
// HTTP surface responds uniformly with "invalid signature".
var (
	ErrMissingSignature   = errors.New("Signature header is missing")
	ErrMalformedSignature = errors.New("Signature header is malformed")
	ErrDigestMismatch     = errors.New("Digest header does not match body")
	ErrVerificationFailed = errors.New("signature verification failed")
)

// Verify checks the Signature header of the request against the supplied
// public key. The canonical string is rebuilt from the headers parameter
// stated in the Signature header, and if the signature covers a Digest
// header the digest is recomputed from body.
func Verify(req *http.Request, body []byte, pubKey crypto.PublicKey) error {
	sigHeader := req.Header.Get("Signature")
	if sigHeader == "" {
		return ErrMissingSignature
	}

	var (
		algo    string
		sig     []byte
		headers []string
	)
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("%w: %q", ErrMalformedSignature, part)
		}
		switch k, v := kv[0], strings.Trim(kv[1], `"`); k {
		case "keyId":
			// the key has already been resolved by the caller
		case "algorithm":
			algo = v
		case "headers":
			headers = strings.Split(v, " ")
		case "signature":
			var err error
			sig, err = base64.StdEncoding.DecodeString(v)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrMalformedSignature, err)
			}
		default:
			return fmt.Errorf("%w: unknown part %q", ErrMalformedSignature, k)
		}
	}
	if len(headers) == 0 || sig == nil {
		return ErrMalformedSignature
	}

	if covers(headers, "digest") {
		if err := checkDigest(req, body); err != nil {
			return err
		}
	}

	sb, err := signingString(req, headers)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	hash := sha256.Sum256(sb)

	switch algo {
	case "rsa-sha256", "hs2019":
		key, ok := pubKey.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: expected *rsa.PublicKey", ErrVerificationFailed)
		}
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, hash[:], sig); err != nil {
			return ErrVerificationFailed
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrMalformedSignature, algo)
	}
}

func covers(headers []string, name string) bool {
	for _, h := range headers {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

func checkDigest(req *http.Request, body []byte) error {
	want := req.Header.Get("Digest")
	if want == "" {
		return ErrDigestMismatch
	}
	got := digestOf(body)
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return ErrDigestMismatch
	}
	return nil
}
