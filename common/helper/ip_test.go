package helper

import (
	"net/http"
	"testing"
)

func TestClientIPFromHeaders(t *testing.T) {
	// X-Real-IP 优先
	h := http.Header{}
	h.Set("X-Real-IP", "203.0.113.10")
	h.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	if got := ClientIPFromHeaders(h, "192.0.2.1:54321"); got != "203.0.113.10" {
		t.Fatalf("X-Real-IP should win, got %s", got)
	}

	// XFF 取第一个合法公网IP
	h = http.Header{}
	h.Set("X-Forwarded-For", "127.0.0.1, 198.51.100.1, 10.0.0.1")
	if got := ClientIPFromHeaders(h, ""); got != "198.51.100.1" {
		t.Fatalf("XFF should skip loopback, got %s", got)
	}

	// 无任何头时回退 RemoteAddr，允许回环（本机直连）
	if got := ClientIPFromHeaders(http.Header{}, "127.0.0.1:8080"); got != "127.0.0.1" {
		t.Fatalf("RemoteAddr fallback, got %s", got)
	}

	// 全部缺失
	if got := ClientIPFromHeaders(http.Header{}, ""); got != "unknown" {
		t.Fatalf("want unknown, got %s", got)
	}

	// 伪造头（非法值）被忽略
	h = http.Header{}
	h.Set("X-Real-IP", "not-an-ip")
	h.Set("X-Client-IP", "0.0.0.0")
	if got := ClientIPFromHeaders(h, "203.0.113.7:1234"); got != "203.0.113.7" {
		t.Fatalf("bad headers should be ignored, got %s", got)
	}
}

func TestIpInList(t *testing.T) {
	list := []string{" 10.0.0.1", "203.0.113.5 ", "198.51.100.9"}
	if !IpInList("203.0.113.5", list) {
		t.Fatalf("should match after trim")
	}
	if IpInList("203.0.113.6", list) {
		t.Fatalf("should not match")
	}
	if IpInList("10.0.0.1", nil) {
		t.Fatalf("empty list never matches")
	}
}

func TestIsPrivateAddress(t *testing.T) {
	private := []string{"127.0.0.1", "10.1.2.3", "172.16.0.5", "192.168.1.1", "::1"}
	for _, ip := range private {
		ok, err := isPrivateAddress(ip)
		if err != nil || !ok {
			t.Fatalf("%s should be private (ok=%v err=%v)", ip, ok, err)
		}
	}
	public := []string{"8.8.8.8", "203.0.113.1"}
	for _, ip := range public {
		ok, err := isPrivateAddress(ip)
		if err != nil || ok {
			t.Fatalf("%s should be public (ok=%v err=%v)", ip, ok, err)
		}
	}
	if _, err := isPrivateAddress("garbage"); err == nil {
		t.Fatalf("invalid address should error")
	}
}

func TestIp2long(t *testing.T) {
	v, err := Ip2long("1.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 16777217 {
		t.Fatalf("1.0.0.1 => %d", v)
	}
	if _, err := Ip2long("bad"); err == nil {
		t.Fatalf("invalid ip should error")
	}
}
