package uri

import "strings"

// ContainsCTL reports whether s contains an ASCII control character.
func ContainsCTL(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b < ' ' || b == 0x7f {
			return true
		}
	}
	return false
}

// RemoveDotSegments resolves "." and ".." segments of an absolute path.
// The result never climbs above "/".
//
// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-5.2.4
func RemoveDotSegments(path string) string {
	out := make([]string, 0, strings.Count(path, "/"))

	for len(path) > 0 {
		var found bool
		if path, found = strings.CutPrefix(path, "../"); found {
			continue
		}
		if path, found = strings.CutPrefix(path, "./"); found {
			continue
		}

		if path, found = strings.CutPrefix(path, "/./"); found {
			path = "/" + path
			continue
		} else if path == "/." {
			path = "/"
			continue
		}

		if path, found = strings.CutPrefix(path, "/../"); found {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			path = "/" + path
			continue
		} else if path == "/.." {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			path = "/"
			continue
		}

		if path == ".." || path == "." {
			break
		}

		// Move the first segment, including its leading "/", to the output.
		idx := strings.IndexByte(path[1:], '/') + 1
		if idx == 0 {
			idx = len(path)
		}
		out = append(out, path[:idx])
		path = path[idx:]
	}

	return strings.Join(out, "")
}
