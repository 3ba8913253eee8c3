package helper

import (
	"encoding/binary"
	"net"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// Header may return multiple IP addresses in the format: "client IP, proxy 1 IP, proxy 2 IP", so we take the first one.
var xForwardedForHeader = http.CanonicalHeaderKey("X-Forwarded-For")

// Nginx proxy/FastCGI
var xRealIPHeader = http.CanonicalHeaderKey("X-Real-IP")

// Standard headers used by Amazon EC2, Heroku, and others
var xClientIPHeader = http.CanonicalHeaderKey("X-Client-IP")

// Akamai and Cloudflare
var trueClientIPHeader = http.CanonicalHeaderKey("True-Client-Ip")

var cidrs []*net.IPNet

func Ip2long(ipAddr string) (uint32, error) {
	ip := net.ParseIP(ipAddr)
	if ip == nil {
		return 0, errors.New("wrong ipAddr format")
	}
	ip = ip.To4()
	return binary.BigEndian.Uint32(ip), nil
}

func init() {
	maxCidrBlocks := []string{
		"127.0.0.1/8",    // localhost
		"10.0.0.0/8",     // 24-bit block
		"172.16.0.0/12",  // 20-bit block
		"192.168.0.0/16", // 16-bit block
		"169.254.0.0/16", // link local address
		"::1/128",        // localhost IPv6
		"fc00::/7",       // unique local address IPv6
		"fe80::/10",      // link local address IPv6
	}

	cidrs = make([]*net.IPNet, len(maxCidrBlocks))
	for i, maxCidrBlock := range maxCidrBlocks {
		_, cidr, _ := net.ParseCIDR(maxCidrBlock)
		cidrs[i] = cidr
	}
}

// isPrivateAddress works by checking if the address is under private CIDR blocks.
// List of private CIDR blocks can be seen on :
//
// https://en.wikipedia.org/wiki/Private_network
//
// https://en.wikipedia.org/wiki/Link-local_address
func isPrivateAddress(address string) (bool, error) {
	ipAddress := net.ParseIP(address)
	if ipAddress == nil {
		return false, errors.New("address is not valid")
	}

	for i := range cidrs {
		if cidrs[i].Contains(ipAddress) {
			return true, nil
		}
	}

	return false, nil
}

// ClientIPFromHeaders 从反向代理注入的头中解析客户端真实IP
// 按可信度依次尝试 X-Real-IP、X-Client-IP、True-Client-Ip、X-Forwarded-For，
// 最后回退到 RemoteAddr；全部失败返回 unknown
func ClientIPFromHeaders(h http.Header, remoteAddr string) string {
	for _, name := range []string{xRealIPHeader, xClientIPHeader, trueClientIPHeader} {
		if ip := validateAndCleanIP(h.Get(name)); ip != "" {
			return ip
		}
	}

	if xff := h.Get(xForwardedForHeader); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := validateAndCleanIP(part); ip != "" {
				return ip
			}
		}
	}

	if remoteAddr != "" {
		remoteIP := remoteAddr
		if strings.ContainsRune(remoteAddr, ':') {
			remoteIP, _, _ = net.SplitHostPort(remoteAddr)
		}
		// RemoteAddr 允许回环地址（本机直连场景）
		if parsed := net.ParseIP(strings.TrimSpace(remoteIP)); parsed != nil && !parsed.IsUnspecified() {
			return parsed.String()
		}
	}

	return "unknown"
}

func IpInList(ip string, ipList []string) bool {
	for _, v := range ipList {
		if strings.TrimSpace(v) == ip {
			return true
		}
	}
	return false
}

// validateAndCleanIP 验证并清理IP地址
func validateAndCleanIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return ""
	}

	// 过滤无效IP (0.0.0.0, ::, 等)
	if parsedIP.IsUnspecified() {
		return ""
	}

	// 过滤回环地址 (127.0.0.1, ::1)
	if parsedIP.IsLoopback() {
		return ""
	}

	return ip
}
