package logger

import "log/slog"

// Standard field keys for structured logging. Use them consistently so log
// lines can be aggregated and queried.
const (
	KeyTraceID   = "trace_id"
	KeyRunID     = "run_id"
	KeyOperation = "operation"
	KeyClientIP  = "client_ip"

	KeyPostID   = "post_id"
	KeyCount    = "count"
	KeyTotal    = "total"
	KeyVisible  = "visible"
	KeyLiked    = "liked"
	KeyURL      = "url"
	KeyBytes    = "bytes"
	KeyStore    = "store"
	KeyDuration = "duration_ms"
	KeyToken    = "token"
	KeyError    = "error"
)

// Err returns an error attribute; nil errors render as an empty value.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// PostID returns a post id attribute.
func PostID(id int) slog.Attr {
	return slog.Int(KeyPostID, id)
}

// URL returns a url attribute.
func URL(u string) slog.Attr {
	return slog.String(KeyURL, u)
}
