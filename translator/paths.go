package translator

/*
 * Location strings are HCFS URIs ("hdfs://ns/warehouse/db.db/t") or bare
 * paths ("/warehouse/db.db/t"). The namespace is everything up to the first
 * "/" after the scheme separator.
 */

import (
	"strings"
)

func NormalizeNamespace(namespace string) string {
	return strings.TrimRight(strings.TrimSpace(namespace), "/")
}

// SplitNamespace separates "scheme://authority" from the path.
func SplitNamespace(location string) (string, string) {
	idx := strings.Index(location, "://")
	if idx < 0 {
		return "", location
	}
	rest := location[idx+3:]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return location, ""
	}
	return location[:idx+3+slash], rest[slash:]
}

func SameNamespace(left, right string) bool {
	return strings.EqualFold(NormalizeNamespace(left), NormalizeNamespace(right))
}

// StripNamespace returns location relative to namespace. Outside of strict
// mode a foreign namespace is dropped and its path kept.
func StripNamespace(location, namespace string, strict bool) (string, error) {
	ns := NormalizeNamespace(namespace)
	if ns != "" && strings.HasPrefix(location, ns) {
		rest := location[len(ns):]
		if rest == "" {
			return "/", nil
		}
		if strings.HasPrefix(rest, "/") {
			return rest, nil
		}
	}
	if strict {
		return "", &LocationMismatchError{Location: location, Namespace: ns}
	}
	_, path := SplitNamespace(location)
	if path == "" {
		path = "/"
	}
	return path, nil
}

// ReduceURLBy drops the last level path segments, never going above the namespace root.
func ReduceURLBy(location string, level int) string {
	ns, path := SplitNamespace(location)
	path = strings.TrimRight(path, "/")
	if level <= 0 {
		if path == "" && ns == "" {
			return "/"
		}
		return ns + path
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if path == "" || level >= len(segments) {
		return ns + "/"
	}
	return ns + "/" + strings.Join(segments[:len(segments)-level], "/")
}

func JoinPath(base string, elems ...string) string {
	result := strings.TrimRight(base, "/")
	for _, elem := range elems {
		elem = strings.Trim(elem, "/")
		if elem == "" {
			continue
		}
		result += "/" + elem
	}
	return result
}
