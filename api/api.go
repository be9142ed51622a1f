// Package api exposes the election controller over HTTP.
//
// State changing requests are authenticated by signature: the SignatureHeader
// carries an EIP-191 signature of the raw request body and the signer address
// is the caller passed to the controller.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/ballotbox/election"
	"github.com/vocdoni/ballotbox/log"
)

const (
	maxRequestBodyLog = 512 // Maximum length of request body to log
)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host       string
	Port       int // 0 picks a free port
	Controller *election.Controller
}

// API type represents the API HTTP server.
type API struct {
	router *chi.Mux
	ctrl   *election.Controller
	host   string
	port   int
	server *http.Server
	addr   net.Addr
}

// New creates a new API instance with the given configuration. The server
// is not started until Start is called.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Controller == nil {
		return nil, fmt.Errorf("missing election controller")
	}
	a := &API{
		ctrl: conf.Controller,
		host: conf.Host,
		port: conf.Port,
	}
	a.initRouter()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Start listens on the configured address and serves the API in the
// background.
func (a *API) Start() error {
	if a.server != nil {
		return fmt.Errorf("API server already started")
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(a.host, fmt.Sprintf("%d", a.port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	a.addr = ln.Addr()
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "address", a.addr.String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server failed")
		}
	}()
	return nil
}

// Addr returns the address the server listens on, or nil if not started.
func (a *API) Addr() net.Addr {
	return a.addr
}

// Shutdown gracefully stops the server.
func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	err := a.server.Shutdown(ctx)
	a.server = nil
	return err
}

// registerHandlers registers all the HTTP handlers for the API endpoints.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", OrganizerEndpoint, "method", "GET", "parameters", AddressURLParam)
	a.router.Get(OrganizerEndpoint, a.organizer)

	// election endpoints
	log.Infow("register handler", "endpoint", ElectionsEndpoint, "method", "POST")
	a.router.Post(ElectionsEndpoint, a.newElection)
	log.Infow("register handler", "endpoint", ElectionsEndpoint, "method", "GET")
	a.router.Get(ElectionsEndpoint, a.elections)
	log.Infow("register handler", "endpoint", ElectionEndpoint, "method", "GET")
	a.router.Get(ElectionEndpoint, a.election)
	log.Infow("register handler", "endpoint", ElectionKeyEndpoint, "method", "POST")
	a.router.Post(ElectionKeyEndpoint, a.setEncryptionKey)
	log.Infow("register handler", "endpoint", ElectionKeyEndpoint, "method", "GET")
	a.router.Get(ElectionKeyEndpoint, a.encryptionKey)
	log.Infow("register handler", "endpoint", ElectionVotersEndpoint, "method", "POST")
	a.router.Post(ElectionVotersEndpoint, a.addVoters)
	log.Infow("register handler", "endpoint", ElectionVotersEndpoint, "method", "GET")
	a.router.Get(ElectionVotersEndpoint, a.voters)
	log.Infow("register handler", "endpoint", ElectionVoterEndpoint, "method", "GET")
	a.router.Get(ElectionVoterEndpoint, a.hasVoted)
	log.Infow("register handler", "endpoint", ElectionEndEndpoint, "method", "POST")
	a.router.Post(ElectionEndEndpoint, a.endElection)
	log.Infow("register handler", "endpoint", ElectionForceEndEndpoint, "method", "POST")
	a.router.Post(ElectionForceEndEndpoint, a.forceEndElection)
	log.Infow("register handler", "endpoint", ElectionResultsEndpoint, "method", "POST")
	a.router.Post(ElectionResultsEndpoint, a.publishResults)
	log.Infow("register handler", "endpoint", ElectionResultsEndpoint, "method", "GET")
	a.router.Get(ElectionResultsEndpoint, a.results)
	log.Infow("register handler", "endpoint", ElectionCandidatesEndpoint, "method", "GET")
	a.router.Get(ElectionCandidatesEndpoint, a.candidates)
	log.Infow("register handler", "endpoint", ElectionBallotsEndpoint, "method", "GET")
	a.router.Get(ElectionBallotsEndpoint, a.ballots)
	log.Infow("register handler", "endpoint", ElectionBallotCountEndpoint, "method", "GET")
	a.router.Get(ElectionBallotCountEndpoint, a.ballotCount)
	log.Infow("register handler", "endpoint", ElectionNullifierEndpoint, "method", "GET")
	a.router.Get(ElectionNullifierEndpoint, a.nullifierUsed)

	// vote endpoints
	log.Infow("register handler", "endpoint", VotesEndpoint, "method", "POST")
	a.router.Post(VotesEndpoint, a.vote)
	log.Infow("register handler", "endpoint", MerkleVotesEndpoint, "method", "POST")
	a.router.Post(MerkleVotesEndpoint, a.merkleVote)
	log.Infow("register handler", "endpoint", EncryptedVotesEndpoint, "method", "POST")
	a.router.Post(EncryptedVotesEndpoint, a.encryptedVote)

	// merkle endpoints
	log.Infow("register handler", "endpoint", MerkleVerifyEndpoint, "method", "POST")
	a.router.Post(MerkleVerifyEndpoint, a.verifyMerkleProof)
	log.Infow("register handler", "endpoint", MerkleVerifyEndpoint, "method", "GET",
		"parameters", VoterQueryParam+","+RootQueryParam+","+ProofQueryParam)
	a.router.Get(MerkleVerifyEndpoint, a.verifyMerkleProofQuery)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", SignatureHeader, RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(requestIDMiddleware)
	a.router.Use(loggingMiddleware(LoggingConfig{
		MaxBodyLog:       maxRequestBodyLog,
		ExcludedPrefixes: LogExcludedPrefixes,
	}))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	a.registerHandlers()
}
