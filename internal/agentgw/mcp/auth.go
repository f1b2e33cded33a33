package mcp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	headerAgentID   = "x-agent-id"
	headerTS        = "x-ts"
	headerSignature = "x-signature"
	headerNonce     = "x-nonce"

	signatureWindow = 5 * time.Minute
)

// canonicalString is the legacy form without agent id and nonce.
func canonicalString(ts, method, pathname string, rawBody []byte) string {
	return ts + "\n" + strings.ToUpper(method) + "\n" + pathname + "\n" + string(rawBody)
}

func canonicalStringV2(ts, method, pathname, agentID, nonce string, rawBody []byte) string {
	return ts + "\n" + strings.ToUpper(method) + "\n" + pathname + "\n" + strings.TrimSpace(agentID) + "\n" + strings.TrimSpace(nonce) + "\n" + string(rawBody)
}

func signHMAC(secret []byte, canonical string) string {
	h := hmac.New(sha256.New, secret)
	_, _ = h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

type hmacVerifyResult struct {
	SessionKey string
	Signature  string
	HTTPStatus int
	Message    string
}

func unauthorized(msg string) hmacVerifyResult {
	return hmacVerifyResult{HTTPStatus: http.StatusUnauthorized, Message: msg}
}

func verifyHMAC(r *http.Request, rawBody, secret []byte, now time.Time, allowLegacy bool) hmacVerifyResult {
	agentID := strings.TrimSpace(r.Header.Get(headerAgentID))
	if agentID == "" {
		return unauthorized("missing x-agent-id")
	}
	tsStr := strings.TrimSpace(r.Header.Get(headerTS))
	if tsStr == "" {
		return unauthorized("missing x-ts")
	}
	sig := strings.ToLower(strings.TrimSpace(r.Header.Get(headerSignature)))
	if sig == "" {
		return unauthorized("missing x-signature")
	}
	nonce := strings.TrimSpace(r.Header.Get(headerNonce))
	if nonce == "" && !allowLegacy {
		return unauthorized("missing x-nonce")
	}

	tsMS, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return unauthorized("bad x-ts")
	}
	if d := time.Duration(now.UnixMilli()-tsMS) * time.Millisecond; d > signatureWindow || d < -signatureWindow {
		return unauthorized("x-ts outside window")
	}

	ok := false
	if nonce != "" {
		ok = hmac.Equal([]byte(sig), []byte(signHMAC(secret, canonicalStringV2(tsStr, r.Method, r.URL.Path, agentID, nonce, rawBody))))
	}
	if !ok && allowLegacy {
		ok = hmac.Equal([]byte(sig), []byte(signHMAC(secret, canonicalString(tsStr, r.Method, r.URL.Path, rawBody))))
	}
	if !ok {
		return unauthorized("bad signature")
	}
	return hmacVerifyResult{SessionKey: agentID, Signature: sig}
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(remoteAddr))
	if err != nil {
		host = strings.TrimSpace(remoteAddr)
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
