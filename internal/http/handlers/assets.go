package handlers

import "net/http"

// AssetServer serves stored generation files under /assets/. File URLs embed
// the record's uuid, so links are unguessable without a prior API read.
func (a *App) AssetServer() http.Handler {
	return http.StripPrefix("/assets/", http.FileServer(http.Dir(a.Files.BasePath())))
}
