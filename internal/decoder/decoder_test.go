package decoder

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		host string
		port int
	}{
		{"ss legacy base64", "ss://YWVzLTI1Ni1nY206cHdAMjAzLjAuMTEzLjU6ODM4OA==", "203.0.113.5", 8388},
		{"ss legacy base64 unpadded with tag", "ss://YWVzLTI1Ni1nY206cHdAMjAzLjAuMTEzLjU6ODM4OA#my%20node", "203.0.113.5", 8388},
		{"ss legacy password with at", "ss://Y2hhY2hhMjAtaWV0Zi1wb2x5MTMwNTpwQHNzQDE5OC41MS4xMDAuNzo0NDM=", "198.51.100.7", 443},
		{"ss clear text", "ss://aes-128-gcm:secret@192.0.2.10:8388#tag", "192.0.2.10", 8388},
		{"ss sip002", "ss://YWVzLTEyOC1nY206c2VjcmV0@ss.example.net:8389/?plugin=obfs#node", "ss.example.net", 8389},
		{"ss upper scheme", "SS://YWVzLTI1Ni1nY206cHdAMjAzLjAuMTEzLjU6ODM4OA==", "203.0.113.5", 8388},
		{"vless with query", "vless://uuid@example.com:443?encryption=none", "example.com", 443},
		{"vless with path", "vless://uuid@Example.COM:8443/ws?type=ws#name", "Example.COM", 8443},
		{"trojan ipv6", "trojan://pw@[2001:db8::1]:443", "2001:db8::1", 443},
		{"trojan surrounding space", "  trojan://pw@host.example:2053  ", "host.example", 2053},
		{"vmess json string port", "vmess://eyJ2IjoiMiIsImFkZCI6InZtLmV4YW1wbGUub3JnIiwicG9ydCI6Ijg0NDMiLCJpZCI6InUifQ==", "vm.example.org", 8443},
		{"vmess json numeric port", "vmess://eyJhZGQiOiIxMC4wLjAuOSIsInBvcnQiOjEwMDg2fQ==", "10.0.0.9", 10086},
		{"vmess with credentials", "vmess://uuid@10.1.1.1:80", "10.1.1.1", 80},
		{"socks no credentials", "socks5://127.0.0.1:1080", "127.0.0.1", 1080},
		{"hysteria2", "hy2://auth@hy.example:36712/?sni=x", "hy.example", 36712},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.raw)
			if err != nil {
				t.Fatalf("Decode(%q) returned error: %v", tc.raw, err)
			}
			if got.Host != tc.host || got.Port != tc.port {
				t.Fatalf("Decode(%q) = %s:%d, want %s:%d", tc.raw, got.Host, got.Port, tc.host, tc.port)
			}
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not a uri", "not-a-uri"},
		{"no rest", "vless://"},
		{"bad scheme chars", "vl_ess://uuid@example.com:443"},
		{"missing port", "trojan://pw@example.com"},
		{"non numeric port", "trojan://pw@example.com:https"},
		{"port zero", "trojan://pw@example.com:0"},
		{"port too large", "trojan://pw@example.com:65536"},
		{"huge port", "trojan://pw@example.com:99999999999999999999"},
		{"empty host", "vless://uuid@:443"},
		{"unterminated ipv6", "trojan://pw@[2001:db8::1:443"},
		{"ipv6 without port", "trojan://pw@[2001:db8::1]"},
		{"ss garbage base64", "ss://!!!notbase64!!!"},
		{"ss base64 without target", "ss://bm8tYXQtc2lnbi1oZXJl"},
		{"vmess garbage", "vmess://%%%%"},
		{"vmess json without address", "vmess://eyJwb3J0Ijo0NDN9"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.raw)
			if err == nil {
				t.Fatalf("Decode(%q) = %+v, want error", tc.raw, got)
			}
			if !errors.Is(err, ErrMalformedURI) {
				t.Fatalf("Decode(%q) error %v does not wrap ErrMalformedURI", tc.raw, err)
			}
		})
	}
}

func TestDecodePortAlwaysInRange(t *testing.T) {
	inputs := []string{
		"a://b@c:1", "a://b@c:65535", "a://@:", "a://b@c:-1", "ss://", "ss:////",
		"ss://:@:", "x://[::]:", "x://[]:80", "x://h:80abc", "vmess://e30=",
	}
	for _, raw := range inputs {
		got, err := Decode(raw)
		if err != nil {
			continue
		}
		if got.Port < 1 || got.Port > 65535 {
			t.Fatalf("Decode(%q) port %d out of range", raw, got.Port)
		}
		if got.Host == "" {
			t.Fatalf("Decode(%q) returned empty host", raw)
		}
	}
}
