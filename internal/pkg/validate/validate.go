// Package validate provides input validation for API path and query parameters.
package validate

import (
	"regexp"
	"strings"
)

// SourceIDMaxLen is the maximum allowed length for cluster/host ids (stored in
// DB, used in paths).
const SourceIDMaxLen = 128

// K8s name regex: DNS subdomain (RFC 1123) — lowercase alphanumeric, '-' or
// '.', max 253 for namespace/name.
var k8sNameRe = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?(\.[a-z0-9]([-a-z0-9]*[a-z0-9])?)*$`)

// SourceName validates a human-chosen cluster or host name: printable
// characters, 1–SourceIDMaxLen.
func SourceName(name string) bool {
	if name == "" || len(name) > SourceIDMaxLen {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// SourceID validates a cluster or host id from the path: alphanumeric, hyphen,
// underscore; 1–SourceIDMaxLen.
func SourceID(id string) bool {
	if id == "" || len(id) > SourceIDMaxLen {
		return false
	}
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}

// Namespace validates a namespace: empty (all namespaces) or valid DNS subdomain.
func Namespace(ns string) bool {
	if ns == "" {
		return true
	}
	if len(ns) > 253 {
		return false
	}
	return k8sNameRe.MatchString(strings.ToLower(ns))
}

// Name validates a pod or container name: valid DNS subdomain.
func Name(name string) bool {
	if name == "" || len(name) > 253 {
		return false
	}
	return k8sNameRe.MatchString(strings.ToLower(name))
}

// Action validates a lifecycle action name: lowercase letters only, short.
func Action(action string) bool {
	if action == "" || len(action) > 16 {
		return false
	}
	for _, r := range action {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// Tail clamps a log tail request into [1, max]; def is used for n <= 0.
func Tail(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
