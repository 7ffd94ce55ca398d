package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	for k, v := range a.Info {
		body[k] = v
	}
	a.json(w, http.StatusOK, body)
}
