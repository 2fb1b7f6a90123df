package service

import (
	"net/http"

	"github.com/guttosm/offline-sync/internal/domain/model"
)

// PlaceholderImage is served for images that are neither cached nor fetchable.
var PlaceholderImage = []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="200" height="200" viewBox="0 0 200 200">` +
	`<rect width="200" height="200" fill="#e5e7eb"/>` +
	`<path d="M60 140l30-40 25 30 15-20 30 30z" fill="#9ca3af"/>` +
	`<circle cx="75" cy="70" r="12" fill="#9ca3af"/>` +
	`</svg>`)

// OfflinePage is served for navigations that are neither cached nor fetchable.
var OfflinePage = []byte(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Offline</title>
<style>body{font-family:system-ui,sans-serif;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0;background:#f9fafb;color:#111827}main{text-align:center;max-width:28rem;padding:2rem}</style>
</head>
<body>
<main>
<h1>You are offline</h1>
<p>This page is not available offline yet. Changes you make are saved and will sync when the connection is restored.</p>
</main>
</body>
</html>
`)

func placeholderImageResponse() *model.Response {
	h := http.Header{}
	h.Set("Content-Type", "image/svg+xml")
	h.Set("Cache-Control", "no-store")
	h.Set(HeaderOfflineFallback, "placeholder")
	return &model.Response{Status: http.StatusOK, Header: h, Body: append([]byte(nil), PlaceholderImage...)}
}

func offlinePageResponse() *model.Response {
	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set(HeaderOfflineFallback, "offline-page")
	return &model.Response{Status: http.StatusOK, Header: h, Body: append([]byte(nil), OfflinePage...)}
}
