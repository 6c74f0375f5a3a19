package utils

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// filters values from a slice
func Filter[T any](s []T, f func(T) bool) []T {
	var r []T
	for _, v := range s {
		if f(v) {
			r = append(r, v)
		}
	}
	return r
}

// ParseUint parses a backend string-encoded unsigned number losslessly.
func ParseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// ParseInt parses a backend string-encoded signed number losslessly.
func ParseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// ParseMsat parses Core Lightning style millisat amounts, which may carry a
// trailing "msat" suffix.
func ParseMsat(s string) (uint64, error) {
	trimmed := strings.TrimSuffix(s, "msat")
	if trimmed == "" {
		return 0, fmt.Errorf("empty msat amount")
	}
	return strconv.ParseUint(trimmed, 10, 64)
}

// ParseHostPort parses a host string which may or may not contain a port.
// If the port is missing, it returns the host and 0 as port.
func ParseHostPort(input string) (host string, port uint16, err error) {
	if input == "" {
		return "", 0, fmt.Errorf("host cannot be empty")
	}

	h, pStr, err := net.SplitHostPort(input)
	if err != nil {
		if strings.Contains(err.Error(), "missing port") {
			return input, 0, nil
		}
		return "", 0, err
	}

	p, err := strconv.Atoi(pStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port: %w", err)
	}

	if p < 0 || p > 65535 {
		return "", 0, fmt.Errorf("invalid port number: %d", p)
	}

	return h, uint16(p), nil
}
