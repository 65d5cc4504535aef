// Package util holds resource key helpers shared by the cache.
package util

import "strings"

// Parent returns key with its last path segment removed ("" for a
// single-segment key).
func Parent(key string) string {
	i := strings.LastIndexByte(key, '/')
	if i < 0 {
		return ""
	}
	return key[:i]
}

// Join appends id as a child segment of key.
func Join(key, id string) string {
	if key == "" {
		return id
	}
	return strings.TrimRight(key, "/") + "/" + strings.TrimLeft(id, "/")
}

// IsPrefix reports whether ancestor is a raw string prefix of key.
// "chat" matches "chat2" as well as "chat/1".
func IsPrefix(ancestor, key string) bool {
	return strings.HasPrefix(key, ancestor)
}

// IsSegmentPrefix reports whether ancestor equals key or is a prefix of it
// ending on a '/' boundary. The empty key is the ancestor of everything.
func IsSegmentPrefix(ancestor, key string) bool {
	if ancestor == "" || ancestor == key {
		return true
	}
	if !strings.HasPrefix(key, ancestor) {
		return false
	}
	return strings.HasSuffix(ancestor, "/") || key[len(ancestor)] == '/'
}
