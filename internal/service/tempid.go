package service

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/tidwall/gjson"
)

// TempIDPrefix marks ids generated locally for creates that have not synced yet.
const TempIDPrefix = "tmp-"

// NewTempID returns a fresh local id for an unsynced create.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was generated by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// ExtractServerID returns the first non-empty value found at one of the gjson
// paths in a CREATE response body.
func ExtractServerID(body []byte, paths []string) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, p := range paths {
		r := gjson.GetBytes(body, p)
		if !r.Exists() {
			continue
		}
		switch r.Type {
		case gjson.String, gjson.Number:
			if v := r.String(); v != "" {
				return v
			}
		}
	}
	return ""
}

// rewriteTempID replaces every reference to tempID in a queued action with
// serverID and reports whether anything changed.
func rewriteTempID(a *model.QueuedAction, tempID, serverID string) bool {
	changed := false

	if a.EntityID == tempID {
		a.EntityID = serverID
		changed = true
	}
	if path, ok := replacePathSegment(a.Path, tempID, serverID); ok {
		a.Path = path
		changed = true
	}
	if payload, ok := replaceQuoted(a.Payload, tempID, serverID); ok {
		a.Payload = payload
		changed = true
	}
	return changed
}

// rewriteRequestTempID points a live request that still uses tempID at serverID.
func rewriteRequestTempID(req *model.Request, tempID, serverID string) {
	if u, ok := replacePathSegment(req.URL, tempID, serverID); ok {
		req.URL = u
	}
	if body, ok := replaceQuoted(req.Body, tempID, serverID); ok {
		req.Body = body
	}
}

// replacePathSegment swaps whole path segments equal to from. A trailing query
// string stays attached to its segment.
func replacePathSegment(path, from, to string) (string, bool) {
	if path == "" {
		return path, false
	}
	changed := false
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		rest := ""
		if j := strings.IndexByte(seg, '?'); j >= 0 {
			seg, rest = seg[:j], seg[j:]
		}
		if seg == from {
			segments[i] = to + rest
			changed = true
		}
	}
	if !changed {
		return path, false
	}
	return strings.Join(segments, "/"), true
}

// replaceQuoted swaps JSON string values equal to from. Temp ids are unique
// UUID strings, so matching the quoted form is exact.
func replaceQuoted(payload []byte, from, to string) ([]byte, bool) {
	if len(payload) == 0 {
		return payload, false
	}
	quotedFrom, _ := json.Marshal(from)
	if !bytes.Contains(payload, quotedFrom) {
		return payload, false
	}
	quotedTo, _ := json.Marshal(to)
	return bytes.ReplaceAll(payload, quotedFrom, quotedTo), true
}
