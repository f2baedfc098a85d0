package utils

import (
	"regexp"
	"strings"
)

var (
	// Characters invalid in filenames on most filesystems
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00]`)
	whitespaceChars      = regexp.MustCompile(`[\r\n\t]`)
	multipleSpaces       = regexp.MustCompile(`\s+`)
)

const maxSegmentLength = 200

// SanitizePathSegment turns an identifier received from a site (a component
// name, an instance id) into a single directory name. The result never
// contains a separator and is never "." or "..".
func SanitizePathSegment(segment string) string {
	segment = invalidFilenameChars.ReplaceAllString(segment, "_")
	segment = whitespaceChars.ReplaceAllString(segment, " ")
	segment = multipleSpaces.ReplaceAllString(segment, " ")
	segment = strings.TrimSpace(segment)
	segment = strings.ReplaceAll(segment, "..", "_")

	if len(segment) > maxSegmentLength {
		segment = strings.TrimSpace(segment[:maxSegmentLength])
	}

	if segment == "" || segment == "." {
		return "_"
	}
	return segment
}
