package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type TLSOptions struct {
	Mode     string // "off", "auto", "manual"
	CertFile string // manual mode
	KeyFile  string // manual mode
	Domain   string // auto mode
	Email    string // auto mode
	CacheDir string // auto mode
}

type Options struct {
	Host string
	Port int
	TLS  TLSOptions

	// H2C serves cleartext HTTP/2 when TLS is off, so a proxy can multiplex
	// many streams over one connection.
	H2C bool
}

type Server struct {
	httpServer     *http.Server
	addr           string
	tlsOpts        TLSOptions
	h2c            bool
	certManager    *autocert.Manager
	redirectServer *http.Server
}

func New(opts Options, handler http.Handler) *Server {
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	s := &Server{
		addr:    addr,
		tlsOpts: opts.TLS,
	}

	if opts.H2C && s.TLSMode() == "off" {
		s.h2c = true
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	// No WriteTimeout: event streams stay open indefinitely.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if opts.TLS.Mode == "auto" {
		s.certManager = &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(opts.TLS.Domain),
			Cache:      autocert.DirCache(opts.TLS.CacheDir),
			Email:      opts.TLS.Email,
		}
		s.httpServer.TLSConfig = &tls.Config{
			GetCertificate: s.certManager.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}
		s.redirectServer = &http.Server{
			Addr:         ":80",
			Handler:      s.certManager.HTTPHandler(nil),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	return s
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	log := slog.With("component", "server", "addr", s.addr)

	var err error
	switch s.tlsOpts.Mode {
	case "auto":
		log.Info("starting HTTPS server", "tls", "auto", "domain", s.tlsOpts.Domain)
		go func() {
			log.Info("starting HTTP redirect server", "redirect_addr", s.redirectServer.Addr)
			if err := s.redirectServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP redirect server error", "error", err)
			}
		}()
		err = s.httpServer.ListenAndServeTLS("", "")
	case "manual":
		log.Info("starting HTTPS server", "tls", "manual")
		err = s.httpServer.ListenAndServeTLS(s.tlsOpts.CertFile, s.tlsOpts.KeyFile)
	default:
		log.Info("starting server", "h2c", s.h2c)
		err = s.httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down server", "component", "server")
	if s.redirectServer != nil {
		if err := s.redirectServer.Shutdown(ctx); err != nil {
			slog.Error("HTTP redirect server shutdown error", "component", "server", "error", err)
		}
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) TLSMode() string {
	if s.tlsOpts.Mode == "" {
		return "off"
	}
	return s.tlsOpts.Mode
}
