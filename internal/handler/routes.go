package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Routes groups everything the router needs.
type Routes struct {
	Rides   *RideHandler
	Pricing *PricingHandler
	Admin   *AdminHandler
	Health  http.Handler
	Socket  http.Handler

	// Authenticate guards every /api/v1 route except the public pricing reads.
	Authenticate mux.MiddlewareFunc
}

// NewRouter builds the HTTP surface.
func NewRouter(rt Routes) *mux.Router {
	router := mux.NewRouter()

	if rt.Health != nil {
		router.Handle("/health", rt.Health).Methods(http.MethodGet)
	}
	if rt.Socket != nil {
		router.Handle("/ws", rt.Socket).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	// Public.
	api.HandleFunc("/pricing", rt.Pricing.GetPricing).Methods(http.MethodGet)
	api.HandleFunc("/fare/estimate", rt.Pricing.EstimateFare).Methods(http.MethodPost)

	// Authenticated.
	secured := api.NewRoute().Subrouter()
	secured.Use(rt.Authenticate)

	secured.HandleFunc("/rides", rt.Rides.CreateRide).Methods(http.MethodPost)
	secured.HandleFunc("/rides", rt.Rides.ListRides).Methods(http.MethodGet)
	secured.HandleFunc("/rides/driver/nearby", rt.Rides.NearbyRides).Methods(http.MethodGet)
	secured.HandleFunc("/rides/driver/assigned", rt.Rides.AssignedRides).Methods(http.MethodGet)
	secured.HandleFunc("/rides/{id}", rt.Rides.GetRide).Methods(http.MethodGet)
	secured.HandleFunc("/rides/{id}/accept", rt.Rides.AcceptRide).Methods(http.MethodPatch)
	secured.HandleFunc("/rides/{id}/start", rt.Rides.StartRide).Methods(http.MethodPatch)
	secured.HandleFunc("/rides/{id}/complete", rt.Rides.CompleteRide).Methods(http.MethodPatch)
	secured.HandleFunc("/rides/{id}/cancel", rt.Rides.CancelRide).Methods(http.MethodPatch)
	secured.HandleFunc("/rides/{id}/rate", rt.Rides.RateRide).Methods(http.MethodPost)
	secured.HandleFunc("/rides/{id}/payment", rt.Rides.UpdatePayment).Methods(http.MethodPut)

	secured.HandleFunc("/admin/rides/{id}/fare", rt.Admin.RecomputeFare).Methods(http.MethodPost)
	secured.HandleFunc("/admin/pricing", rt.Pricing.UpdatePricing).Methods(http.MethodPut)
	secured.HandleFunc("/admin/reconcile", rt.Admin.Reconcile).Methods(http.MethodPost)

	return router
}
