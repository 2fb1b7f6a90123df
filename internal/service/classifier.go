package service

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/guttosm/offline-sync/internal/domain/model"
)

// RequestClass selects the caching strategy applied to a request.
type RequestClass string

const (
	ClassMutation   RequestClass = "mutation"
	ClassAPIRead    RequestClass = "api_read"
	ClassImage      RequestClass = "image"
	ClassStatic     RequestClass = "static"
	ClassNavigation RequestClass = "navigation"
	ClassOther      RequestClass = "other"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".svg": true, ".ico": true, ".avif": true, ".bmp": true,
}

var staticExtensions = map[string]bool{
	".js": true, ".mjs": true, ".css": true, ".woff": true, ".woff2": true,
	".ttf": true, ".otf": true, ".map": true, ".wasm": true,
}

var staticDirs = []string{"/static/", "/assets/"}

// Classifier sorts outbound requests into strategy classes.
type Classifier struct {
	apiPrefix string
}

// NewClassifier creates a classifier treating paths under apiPrefix as API calls.
func NewClassifier(apiPrefix string) *Classifier {
	return &Classifier{apiPrefix: strings.TrimRight(apiPrefix, "/")}
}

// Classify returns the class of req.
func (c *Classifier) Classify(req *model.Request) RequestClass {
	p := requestPath(req.URL)
	method := strings.ToUpper(req.Method)

	if c.isAPI(p) {
		switch method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			return ClassMutation
		case http.MethodGet, http.MethodHead:
			return ClassAPIRead
		default:
			return ClassOther
		}
	}

	if method != http.MethodGet {
		return ClassOther
	}

	ext := strings.ToLower(path.Ext(p))
	accept := strings.ToLower(req.Header.Get("Accept"))

	switch {
	case strings.HasPrefix(accept, "image/") || imageExtensions[ext]:
		return ClassImage
	case staticExtensions[ext] || hasStaticDir(p):
		return ClassStatic
	case strings.EqualFold(req.Header.Get("Sec-Fetch-Mode"), "navigate") || strings.Contains(accept, "text/html"):
		return ClassNavigation
	default:
		return ClassOther
	}
}

func (c *Classifier) isAPI(p string) bool {
	if c.apiPrefix == "" {
		return true
	}
	return p == c.apiPrefix || strings.HasPrefix(p, c.apiPrefix+"/")
}

// ParseEntity splits an API path into the entity kind and the entity id, if any.
// "/api/items/42/photos" yields ("items", "42").
func (c *Classifier) ParseEntity(rawURL string) (kind, id string) {
	p := strings.TrimPrefix(requestPath(rawURL), c.apiPrefix)
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) > 0 {
		kind = parts[0]
	}
	if len(parts) > 1 {
		id, _ = url.PathUnescape(parts[1])
	}
	return kind, id
}

// ActionType maps a mutating method and target to the queued action type.
func ActionType(method string) model.ActionType {
	switch strings.ToUpper(method) {
	case http.MethodDelete:
		return model.ActionDelete
	case http.MethodPut, http.MethodPatch:
		return model.ActionUpdate
	default:
		return model.ActionCreate
	}
}

// CollectionPath returns the API path of the collection an entity belongs to.
func (c *Classifier) CollectionPath(kind string) string {
	return c.apiPrefix + "/" + kind
}

func hasStaticDir(p string) bool {
	for _, dir := range staticDirs {
		if strings.Contains(p, dir) {
			return true
		}
	}
	return false
}

// requestPath returns the path component of an absolute or relative URL.
func requestPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// requestRelative returns the path and query of rawURL.
func requestRelative(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.RequestURI()
}
