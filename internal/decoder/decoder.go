// Package decoder extracts a dialable host and port from proxy share links
// such as vless://, trojan://, vmess:// and ss://.
package decoder

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/RealKorush/bahbah/internal/domain"
)

// ErrMalformedURI is wrapped by every error Decode returns.
var ErrMalformedURI = errors.New("malformed uri")

var uriPattern = regexp.MustCompile(`(?i)^([a-z0-9+.\-]+)://(.+)$`)

const (
	schemeShadowsocks = "ss"
	schemeVMess       = "vmess"
)

// Decode turns one raw link into a connect target. It never panics; any
// structural problem yields an error wrapping ErrMalformedURI.
func Decode(raw string) (domain.ConnectTarget, error) {
	m := uriPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return domain.ConnectTarget{}, malformed("no scheme")
	}
	scheme, rest := strings.ToLower(m[1]), m[2]

	var (
		hostPort string
		err      error
	)
	switch scheme {
	case schemeShadowsocks:
		hostPort, err = shadowsocksHostPort(rest)
	case schemeVMess:
		if !strings.Contains(rest, "@") {
			return vmessTarget(rest)
		}
		hostPort = afterLastAt(rest)
	default:
		hostPort = afterLastAt(rest)
	}
	if err != nil {
		return domain.ConnectTarget{}, err
	}
	return splitHostPort(hostPort)
}

// shadowsocksHostPort handles the three ss:// shapes:
//
//	ss://BASE64(cipher:password@host:port)#tag   legacy
//	ss://BASE64(cipher:password)@host:port#tag   SIP002
//	ss://cipher:password@host:port               clear text
//
// A colon before the first '@' marks the clear-text form. This is a heuristic;
// no version field says which form a link uses.
func shadowsocksHostPort(rest string) (string, error) {
	rest = strings.TrimPrefix(rest, "//")
	if colonBeforeAt(rest) {
		return afterLastAt(rest), nil
	}

	body, _, _ := strings.Cut(rest, "#")
	if strings.Contains(body, "@") {
		// '@' is outside the base64 alphabet, so only the userinfo is encoded.
		return afterLastAt(body), nil
	}

	decoded, err := decodeBase64(body)
	if err != nil {
		return "", malformed("ss body: %v", err)
	}
	return afterLastAt(decoded), nil
}

// vmessTarget decodes the base64 JSON form of vmess links.
func vmessTarget(rest string) (domain.ConnectTarget, error) {
	body, _, _ := strings.Cut(rest, "#")
	decoded, err := decodeBase64(body)
	if err != nil {
		return domain.ConnectTarget{}, malformed("vmess body: %v", err)
	}

	var cfg struct {
		Add  string          `json:"add"`
		Port json.RawMessage `json:"port"`
	}
	if err := json.Unmarshal([]byte(decoded), &cfg); err != nil {
		return domain.ConnectTarget{}, malformed("vmess json: %v", err)
	}
	host := strings.Trim(strings.TrimSpace(cfg.Add), "[]")
	if host == "" {
		return domain.ConnectTarget{}, malformed("vmess: empty address")
	}
	port, err := parsePort(strings.Trim(string(cfg.Port), `" `))
	if err != nil {
		return domain.ConnectTarget{}, err
	}
	return domain.ConnectTarget{Host: host, Port: port}, nil
}

func splitHostPort(s string) (domain.ConnectTarget, error) {
	var host, tail string
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return domain.ConnectTarget{}, malformed("unterminated ipv6 literal")
		}
		host = s[1:end]
		after, ok := strings.CutPrefix(s[end+1:], ":")
		if !ok {
			return domain.ConnectTarget{}, malformed("missing port")
		}
		tail = after
	} else {
		var ok bool
		host, tail, ok = strings.Cut(s, ":")
		if !ok {
			return domain.ConnectTarget{}, malformed("missing port")
		}
		host = strings.Trim(host, "[]")
	}
	if host == "" {
		return domain.ConnectTarget{}, malformed("empty host")
	}

	port, err := parsePort(leadingDigits(tail))
	if err != nil {
		return domain.ConnectTarget{}, err
	}
	return domain.ConnectTarget{Host: host, Port: port}, nil
}

func parsePort(s string) (int, error) {
	if s == "" {
		return 0, malformed("missing port")
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, malformed("port %q: %v", s, err)
	}
	if port < 1 || port > 65535 {
		return 0, malformed("port %d out of range", port)
	}
	return port, nil
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

func colonBeforeAt(s string) bool {
	head := s
	if at := strings.Index(s, "@"); at >= 0 {
		head = s[:at]
	}
	return strings.Contains(head, ":")
}

func afterLastAt(s string) string {
	return s[strings.LastIndex(s, "@")+1:]
}

// decodeBase64 accepts the URL-safe and standard alphabets, padded or not.
func decodeBase64(s string) (string, error) {
	s = strings.TrimSpace(strings.TrimRight(s, "="))
	if s == "" {
		return "", errors.New("empty payload")
	}
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		var stdErr error
		if b, stdErr = base64.StdEncoding.DecodeString(s); stdErr != nil {
			return "", err
		}
	}
	if !utf8.Valid(b) {
		return "", errors.New("payload is not utf-8")
	}
	return string(b), nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedURI, fmt.Sprintf(format, args...))
}
