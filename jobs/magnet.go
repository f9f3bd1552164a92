package jobs

import (
	"regexp"
	"strings"
)

var (
	sha1Hash   = regexp.MustCompile(`^[0-9a-f]{40}$`)
	sha256Hash = regexp.MustCompile(`^[0-9a-f]{64}$`)
	md5Hash    = regexp.MustCompile(`(?i)^[0-9a-f]{32}$`)
)

// AugmentLink turns a bare content hash into a magnet link
// (https://en.wikipedia.org/wiki/Magnet_URI_scheme#Exact_Topic_(xt)).
// SHA-1 and SHA-256 hashes must be lowercase hex; md5 may be in any case.
// Anything else is returned unchanged.
func AugmentLink(input string) string {
	if strings.HasPrefix(input, "http") {
		return input
	}
	hash := strings.TrimSpace(input)
	var topic string
	switch {
	case sha1Hash.MatchString(hash):
		topic = "btih"
	case sha256Hash.MatchString(hash):
		topic = "btmh"
	case md5Hash.MatchString(hash):
		topic = "md5"
	default:
		return input
	}
	return "magnet:?xt=urn:" + topic + ":" + hash
}
