package emociograma

import "github.com/go-chi/chi/v5"

// Mount registra as rotas do emociograma no roteador autenticado.
func Mount(r chi.Router, handler *Handler) {
	handler.RegisterRoutes(r)
}
