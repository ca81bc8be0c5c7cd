package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gosom/maps-recommender/gmaps"
	"github.com/gosom/maps-recommender/recommend"
)

//go:embed static
var static embed.FS

// Places is the subset of the Places client served over HTTP.
type Places interface {
	FindPlaceID(ctx context.Context, name string) (string, bool, error)
	FindPlace(ctx context.Context, input, locationBias string) (json.RawMessage, error)
	PlaceDetails(ctx context.Context, placeID string) (json.RawMessage, error)
}

type Completer interface {
	CompleteWithSystem(ctx context.Context, system, prompt string) (string, error)
}

type Recommender interface {
	Run(ctx context.Context, descriptions []string, preference string) (*recommend.Result, error)
}

type Scraper interface {
	Run(ctx context.Context, u string) gmaps.ScrapeReport
}

// ServerOptions holds the collaborators of the server. Every field except
// Logger and HTTPClient is required.
type ServerOptions struct {
	Places      Places
	Completer   Completer
	Recommender Recommender
	Scraper     Scraper
	Logger      *slog.Logger
	// HTTPClient is used to expand short urls. Redirects are never followed.
	HTTPClient *http.Client
}

type Server struct {
	srv      *http.Server
	tmpl     *template.Template
	log      *slog.Logger
	places   Places
	llm      Completer
	pipeline Recommender
	scraper  Scraper
	expander *URLExpander

	// one browser session at a time
	scrapeSem chan struct{}
}

func New(addr string, opts ServerOptions) (*Server, error) {
	if opts.Places == nil || opts.Completer == nil || opts.Recommender == nil || opts.Scraper == nil {
		return nil, errors.New("places, completer, recommender and scraper are required")
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	ans := Server{
		log:       log,
		places:    opts.Places,
		llm:       opts.Completer,
		pipeline:  opts.Recommender,
		scraper:   opts.Scraper,
		expander:  NewURLExpander(opts.HTTPClient),
		scrapeSem: make(chan struct{}, 1),
		srv: &http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			// scrapes can take minutes
			WriteTimeout:   15 * time.Minute,
			IdleTimeout:    120 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
	}

	tmpl, err := template.ParseFS(static, "static/index.html")
	if err != nil {
		return nil, err
	}

	ans.tmpl = tmpl

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", ans.index)
	mux.HandleFunc("GET /health", ans.health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/place-id", ans.apiPlaceID)
	mux.HandleFunc("GET /api/v1/place-details", ans.apiPlaceDetails)
	mux.HandleFunc("GET /api/v1/findplace", ans.apiFindPlace)
	mux.HandleFunc("POST /api/v1/completions", ans.apiCompletions)
	mux.HandleFunc("GET /api/v1/expand-url", ans.apiExpandURL)
	mux.HandleFunc("POST /api/v1/recommend", ans.apiRecommend)
	mux.HandleFunc("POST /api/v1/scrape", ans.apiScrape)

	ans.srv.Handler = requestLogger(log, securityHeaders(mux))

	return &ans, nil
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("could not shutdown server", "error", err)

			return
		}

		s.log.Info("server stopped")
	}()

	fmt.Fprintf(os.Stderr, "visit http://localhost%s\n", s.srv.Addr)

	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_ = s.tmpl.Execute(w, nil)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type apiError struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func renderJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	_ = json.NewEncoder(w).Encode(data)
}

func renderError(w http.ResponseWriter, code int, message string) {
	renderJSON(w, code, apiError{Code: code, Message: message})
}

// renderRaw writes an upstream JSON body without decoding it.
func renderRaw(w http.ResponseWriter, code int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	_, _ = w.Write(body)
}

type ctxKey string

const requestIDCtxKey ctxKey = "request_id"

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)

	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger tags every request with an id and logs its outcome.
func requestLogger(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDCtxKey, id)))

		log.Info("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline'; "+
				"style-src 'self' 'unsafe-inline'; "+
				"connect-src 'self'")

		next.ServeHTTP(w, r)
	})
}
