package transcribe

import "strings"

// mimeByExtension maps the supported upload extensions to standard MIME
// types. This set is closed; anything else is rejected at intake.
var mimeByExtension = map[string]string{
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
	"webm": "audio/webm",
	"mp4":  "audio/mp4",
}

// mimeAliases maps browser-reported MIME types to their standard IANA
// equivalents. macOS browsers in particular report audio/x-m4a for .m4a
// files, which some downstream tooling rejects.
var mimeAliases = map[string]string{
	"audio/x-m4a":  "audio/mp4",
	"audio/m4a":    "audio/mp4",
	"audio/x-wav":  "audio/wav",
	"audio/wave":   "audio/wav",
	"audio/x-mpeg": "audio/mpeg",
	"video/webm":   "audio/webm",
}

// MIMEFromFilename maps a file extension to its MIME type. Returns "" for
// unsupported extensions so callers can reject the file.
func MIMEFromFilename(filename string) string {
	ext := filename
	if i := strings.LastIndex(filename, "."); i >= 0 {
		ext = filename[i+1:]
	}
	return mimeByExtension[strings.ToLower(ext)]
}

// NormalizeAudioMIME rewrites non-standard browser MIME types to standard
// ones. Unrecognized types pass through unchanged.
func NormalizeAudioMIME(mimeType string) string {
	key := strings.ToLower(strings.TrimSpace(mimeType))
	if normalized, ok := mimeAliases[key]; ok {
		return normalized
	}
	return mimeType
}
