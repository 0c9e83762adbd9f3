package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxPacketsPerRequest bounds how many seqs a single RETRANSMIT datagram
// may name; a receiver with more gaps sends multiple datagrams.
const MaxPacketsPerRequest = 10

// ErrorPrefix marks a sender->receiver error datagram. Error datagrams are
// plain ASCII, not framed like manifest/data/EOT.
const ErrorPrefix = "ERROR: "

// GetRequest is a parsed "GET /<filename>[?start=<n>]" control message.
type GetRequest struct {
	Path  string
	Start uint32 // 0 when absent; a sender may ignore this
	HasStart bool
}

// EncodeGet formats a GET request. If start > 0, the optional resume query
// is included; senders are permitted to ignore it.
func EncodeGet(path string, start uint32) []byte {
	if start > 0 {
		return []byte(fmt.Sprintf("GET /%s?start=%d", strings.TrimPrefix(path, "/"), start))
	}
	return []byte(fmt.Sprintf("GET /%s", strings.TrimPrefix(path, "/")))
}

// ParseGet parses a GET control datagram's text.
func ParseGet(text string) (GetRequest, bool) {
	if !strings.HasPrefix(text, "GET /") {
		return GetRequest{}, false
	}
	rest := strings.TrimPrefix(text, "GET /")
	path := rest
	var req GetRequest
	if idx := strings.Index(rest, "?start="); idx >= 0 {
		path = rest[:idx]
		n, err := strconv.ParseUint(rest[idx+len("?start="):], 10, 32)
		if err != nil {
			return GetRequest{}, false
		}
		req.Start = uint32(n)
		req.HasStart = true
	}
	if path == "" {
		return GetRequest{}, false
	}
	req.Path = path
	return req, true
}

// EncodeRetransmit formats a single RETRANSMIT datagram naming seqs
// (at most MaxPacketsPerRequest). Callers with more gaps must split into
// multiple calls/datagrams.
func EncodeRetransmit(seqs []uint32) []byte {
	parts := make([]string, len(seqs))
	for i, s := range seqs {
		parts[i] = strconv.FormatUint(uint64(s), 10)
	}
	return []byte("RETRANSMIT " + strings.Join(parts, ","))
}

// ParseRetransmit parses a RETRANSMIT control datagram's text.
func ParseRetransmit(text string) ([]uint32, bool) {
	if !strings.HasPrefix(text, "RETRANSMIT ") {
		return nil, false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(text, "RETRANSMIT "))
	if rest == "" {
		return nil, false
	}
	fields := strings.Split(rest, ",")
	seqs := make([]uint32, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseUint(strings.TrimSpace(f), 10, 32)
		if err != nil {
			return nil, false
		}
		seqs = append(seqs, uint32(n))
	}
	return seqs, true
}

// EncodeError formats a sender->receiver error datagram.
func EncodeError(reason string) []byte {
	return []byte(ErrorPrefix + reason)
}

// ParseError reports whether text is an error datagram and, if so, its
// human-readable reason.
func ParseError(text string) (reason string, ok bool) {
	if !strings.HasPrefix(text, "ERROR") {
		return "", false
	}
	return strings.TrimPrefix(strings.TrimPrefix(text, ErrorPrefix), "ERROR:"), true
}

// IsControlText reports whether b is ASCII control/error text (GET,
// RETRANSMIT, ERROR) rather than a binary frame. Callers check this before
// attempting Decode, since control text is sent unframed.
func IsControlText(b []byte) bool {
	s := string(b)
	return strings.HasPrefix(s, "GET ") || strings.HasPrefix(s, "RETRANSMIT ") || strings.HasPrefix(s, "ERROR")
}
