package main

import (
	"database/sql"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mnehpets/httprpc/endpoint"
	"github.com/mnehpets/httprpc/internal/config"
	"github.com/mnehpets/httprpc/internal/testservice"
	"github.com/mnehpets/httprpc/jsonrpc"
	"github.com/mnehpets/httprpc/middleware"
	"github.com/mnehpets/httprpc/natsrpc"
	"github.com/mnehpets/httprpc/rpc"
)

// server holds the pieces shared by the HTTP, JSON-RPC and NATS front
// doors.
type server struct {
	cfg        *config.Config
	logger     *zap.Logger
	table      *rpc.Table
	dispatcher *rpc.Dispatcher
	views      *rpc.ViewSet
	cookie     *middleware.PrincipalCookie
	processors []endpoint.Processor
}

func newServer(cfg *config.Config, logger *zap.Logger, db *sql.DB) (*server, error) {
	svc, err := testservice.New(db, cfg.DriverName)
	if err != nil {
		return nil, err
	}
	table, err := rpc.NewTable(svc)
	if err != nil {
		return nil, err
	}
	var views fs.FS = testservice.Views()
	if cfg.TemplateDir != "" {
		views = os.DirFS(cfg.TemplateDir)
	}
	s := &server{
		cfg:        cfg,
		logger:     logger,
		table:      table,
		dispatcher: &rpc.Dispatcher{Table: table, Binder: rpc.Binder{Strict: cfg.StrictBinding}},
		views:      rpc.NewViewSet(views),
	}

	s.processors = []endpoint.Processor{
		&middleware.RequestIDProcessor{},
		&middleware.AccessLog{Logger: logger},
		middleware.NewAPIHeaders(),
	}
	if len(cfg.AllowedOrigins) > 0 {
		s.processors = append(s.processors, &middleware.CORS{Table: table, AllowedOrigins: cfg.AllowedOrigins, MaxAge: 600})
	}

	key, err := cfg.Key()
	if err != nil {
		return nil, err
	}
	if key != nil {
		sealer, err := middleware.NewSealer(cfg.CookieKeyID, map[string][]byte{cfg.CookieKeyID: key}, nil)
		if err != nil {
			return nil, err
		}
		s.cookie, err = middleware.NewPrincipalCookie(sealer, middleware.WithCookieName(cfg.CookieName))
		if err != nil {
			return nil, err
		}
		principals := middleware.NewPrincipalProcessor(s.cookie)
		principals.TTL = cfg.PrincipalTTL
		principals.RefreshThreshold = cfg.PrincipalTTL / 4
		principals.Logger = logger
		s.processors = append(s.processors, principals)
	}

	locales, err := middleware.ParseLocales(cfg.Locales)
	if err != nil {
		return nil, fmt.Errorf("locales: %w", err)
	}
	s.processors = append(s.processors, middleware.NewLocaleProcessor(locales...))
	return s, nil
}

// Handler serves JSON-RPC on /rpc and every operation on its own path.
func (s *server) Handler() http.Handler {
	rpcHandler := rpc.NewHandler(s.table,
		rpc.WithBinder(s.dispatcher.Binder),
		rpc.WithViews(s.views),
		rpc.WithMaxFormMemory(s.cfg.MaxFormMemory),
		rpc.WithLogger(s.logger),
		rpc.WithProcessors(s.processors...),
	)
	jr := jsonrpc.NewEndpoint(s.dispatcher)
	jr.Logger = s.logger

	mux := http.NewServeMux()
	mux.Handle("/rpc", &endpoint.EndpointHandler{Endpoint: jr.Endpoint, Processors: s.processors, Logger: s.logger})
	mux.Handle("/", rpcHandler)
	return mux
}

// Bridge returns the NATS front door. Callers present the sealed principal
// cookie value in natsrpc.PrincipalHeader.
func (s *server) Bridge(nc *nats.Conn) *natsrpc.Bridge {
	b := natsrpc.NewBridge(nc, s.dispatcher)
	b.Prefix = s.cfg.NATSPrefix
	b.Queue = s.cfg.NATSQueue
	b.Logger = s.logger
	if locales, err := middleware.ParseLocales(s.cfg.Locales); err == nil {
		b.Locales = locales
	}
	if s.cookie != nil {
		b.Identify = func(h nats.Header) (rpc.Principal, bool, error) {
			v := h.Get(natsrpc.PrincipalHeader)
			if v == "" {
				return rpc.Principal{}, false, nil
			}
			p, _, err := s.cookie.Read(&http.Cookie{Name: s.cookie.Name, Value: v})
			if err != nil {
				return rpc.Principal{}, false, err
			}
			return p, true, nil
		}
	}
	return b
}
