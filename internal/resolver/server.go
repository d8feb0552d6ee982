package resolver

import (
	"fmt"

	"github.com/miekg/dns"

	"leshy/internal/logging"
)

// Server binds the configured listen address on both UDP and TCP and
// dispatches every incoming query to a Handler.
type Server struct {
	udp *dns.Server
	tcp *dns.Server
	log *logging.Logger
}

// NewServer builds UDP and TCP listeners at addr, both backed by
// handler.
func NewServer(addr string, handler *Handler) *Server {
	return &Server{
		udp: &dns.Server{Addr: addr, Net: "udp", Handler: handler},
		tcp: &dns.Server{Addr: addr, Net: "tcp", Handler: handler},
		log: logging.WithComponent("resolver.server"),
	}
}

// ListenAndServe starts both listeners and blocks until either one
// exits, returning its error.
func (s *Server) ListenAndServe() error {
	errCh := make(chan error, 2)

	go func() {
		s.log.Info("DNS server listening", "addr", s.udp.Addr, "net", "udp")
		errCh <- s.udp.ListenAndServe()
	}()
	go func() {
		s.log.Info("DNS server listening", "addr", s.tcp.Addr, "net", "tcp")
		errCh <- s.tcp.ListenAndServe()
	}()

	err := <-errCh
	if err != nil {
		return fmt.Errorf("dns server: %w", err)
	}
	return nil
}

// Shutdown stops both listeners.
func (s *Server) Shutdown() error {
	udpErr := s.udp.Shutdown()
	tcpErr := s.tcp.Shutdown()
	if udpErr != nil {
		return udpErr
	}
	return tcpErr
}
