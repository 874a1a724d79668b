package gateway

import (
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Wrap adds CORS handling and cleartext HTTP/2 support to handler
func Wrap(handler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400,
	})
	return h2c.NewHandler(c.Handler(handler), &http2.Server{})
}
