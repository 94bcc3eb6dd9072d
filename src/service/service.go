package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/net"
	"github.com/mosaicnetworks/murmur/src/node"
	"github.com/mosaicnetworks/murmur/src/telemetry"
)

// maxBodySize bounds the request bodies of /broadcast and /topology.
const maxBodySize = 1 << 20

// requestTimeout bounds how long a handler waits on the node's loop.
const requestTimeout = 5 * time.Second

// Service exposes a node to clients over HTTP.
type Service struct {
	bindAddress string
	node        *node.Node
	logger      *logrus.Entry

	mux    *http.ServeMux
	server *http.Server
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
		mux:         http.NewServeMux(),
	}

	service.registerHandlers()

	service.server = &http.Server{
		Addr:              bindAddress,
		Handler:           service.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &service
}

// registerHandlers registers the API handlers on the service's own mux, so
// that several nodes can run in one process.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering Murmur API handlers")
	s.handle("/read", http.MethodGet, s.GetRead)
	s.handle("/broadcast", http.MethodPost, s.PostBroadcast)
	s.handle("/topology", http.MethodPost, s.PostTopology)
	s.handle("/stats", http.MethodGet, s.GetStats)
	s.handle("/peers", http.MethodGet, s.GetPeers)
	s.mux.Handle("/metrics", telemetry.Instrument("/metrics", telemetry.MetricsHandler()))
}

func (s *Service) handle(route, method string, fn http.HandlerFunc) {
	s.mux.Handle(route, telemetry.Instrument(route, s.makeHandler(method, fn)))
}

func (s *Service) makeHandler(method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		fn(w, r)
	}
}

// Handler returns the service's routes, mainly for tests and for embedding
// in another server.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call. It returns nil once
// Shutdown has been called.
func (s *Service) Serve() error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving Murmur API")

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	if err != nil {
		s.logger.Error(err)
	}
	return err
}

// Shutdown stops the HTTP server, waiting for in-flight requests until ctx
// expires.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// GetRead returns every value the node knows, in canonical order.
func (s *Service) GetRead(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.submit(w, r, &net.Body{Type: net.TypeRead})
	if !ok {
		return
	}

	messages := resp.Messages
	if messages == nil {
		messages = []common.Value{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// PostBroadcast adds the JSON value in the request body to the node.
func (s *Service) PostBroadcast(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	v, err := common.NewValue(raw)
	if err != nil {
		s.logger.WithError(err).Debug("Parsing broadcast body")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, ok := s.submit(w, r, net.NewBroadcastBody(v)); !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"type": net.TypeBroadcastOk})
}

// PostTopology hands a neighbour mapping to the node.
func (s *Service) PostTopology(w http.ResponseWriter, r *http.Request) {
	var topology map[string][]string

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(&topology); err != nil {
		s.logger.WithError(err).Debug("Parsing topology body")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, ok := s.submit(w, r, &net.Body{Type: net.TypeTopology, Topology: topology}); !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"type": net.TypeTopologyOk})
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	stats, err := s.node.Stats(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetPeers returns the node's current neighbours.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	stats, err := s.node.Stats(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}

	neighbors := []string{}
	if n := stats["neighbors"]; n != "" {
		neighbors = strings.Split(n, ",")
	}

	writeJSON(w, http.StatusOK, neighbors)
}

func (s *Service) submit(w http.ResponseWriter, r *http.Request, body *net.Body) (*net.Body, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := s.node.Submit(ctx, body)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}

	return resp, true
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case common.IsRPC(err, common.MalformedRequest):
		status = http.StatusBadRequest
	case common.IsRPC(err, common.NotSupported):
		status = http.StatusNotImplemented
	case common.IsRPC(err, common.TemporarilyUnavailable), err == node.ErrShutdown:
		status = http.StatusServiceUnavailable
	case common.IsRPC(err, common.PreconditionFailed):
		status = http.StatusConflict
	case err == context.DeadlineExceeded:
		status = http.StatusGatewayTimeout
	}

	s.logger.WithError(err).Debug("Request failed")

	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
