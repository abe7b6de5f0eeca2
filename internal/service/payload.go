package service

import "strings"

// EmailPayload returns the text that represents an email semantically. With
// trim enabled everything up to and including the first line that starts
// with marker is dropped. The full text is used when no line matches or
// nothing follows the marker.
func EmailPayload(text string, trim bool, marker string) string {
	if !trim || marker == "" {
		return text
	}
	rest := text
	for rest != "" {
		line, tail, found := strings.Cut(rest, "\n")
		if strings.HasPrefix(strings.TrimSpace(line), marker) {
			body := strings.TrimLeft(tail, "\r\n")
			if strings.TrimSpace(body) == "" {
				return text
			}
			return body
		}
		if !found {
			break
		}
		rest = tail
	}
	return text
}
