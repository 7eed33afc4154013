package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ghclone/ghclone/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func NewRouter(
	authHandlers *AuthHandlers,
	authMiddleware *middleware.AuthMiddleware,
	allowedOrigins []string,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.CORSMiddleware(allowedOrigins))
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Hello, World!"})
	}).Methods("GET")

	auth := router.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", authHandlers.Register).Methods("POST", "OPTIONS")
	auth.HandleFunc("/verify", authHandlers.Verify).Methods("POST", "OPTIONS")
	auth.HandleFunc("/resend-otp", authHandlers.ResendOTP).Methods("POST", "OPTIONS")
	auth.HandleFunc("/login", authHandlers.Login).Methods("POST", "OPTIONS")

	protected := auth.NewRoute().Subrouter()
	protected.Use(authMiddleware.RequireAuth)
	protected.HandleFunc("/profile", authHandlers.Profile).Methods("GET")
	protected.HandleFunc("/logout", authHandlers.Logout).Methods("POST")

	// Preflight requests carry no token; the CORS middleware answers them.
	auth.HandleFunc("/profile", preflight).Methods("OPTIONS")
	auth.HandleFunc("/logout", preflight).Methods("OPTIONS")

	return router
}

func preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
