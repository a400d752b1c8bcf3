package gateway

import (
	"errors"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/recipegate/recipegate/internal/errors"
	"github.com/recipegate/recipegate/internal/quota"
	"github.com/recipegate/recipegate/internal/upstream"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// Routes returns the /api router. Unknown paths and methods get JSON failure bodies.
func (g *Gateway) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithEnvelope(w, req, apperrors.NewNotFoundError("no API endpoint at "+req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithEnvelope(w, req, apperrors.NewMethodNotAllowedError(req.Method+" is not supported for "+req.URL.Path))
	})

	r.Get("/search", g.HandleSearch)
	r.Post("/ingredients", g.HandleIngredients)
	return r
}

// HandleSearch serves GET /api/search.
func (g *Gateway) HandleSearch(w http.ResponseWriter, r *http.Request) {
	resp, decision, err := g.Search(r.Context(), Identity(r), r.URL.Query())
	writeRateLimitHeaders(w, decision)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeUpstream(w, resp)
}

// HandleIngredients serves POST /api/ingredients.
func (g *Gateway) HandleIngredients(w http.ResponseWriter, r *http.Request) {
	form, err := g.readForm(w, r)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}

	resp, decision, err := g.ParseIngredients(r.Context(), Identity(r), form)
	writeRateLimitHeaders(w, decision)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeUpstream(w, resp)
}

// readForm parses an urlencoded or multipart body, capped at maxFormBytes.
// Query string values are not included.
func (g *Gateway) readForm(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, g.maxFormBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var err error
	if mediaType == "multipart/form-data" {
		err = r.ParseMultipartForm(g.maxFormBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.WrapInvalidInput(r.Context(), err, "form body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
		}
		return nil, apperrors.WrapInvalidInput(r.Context(), err, "unable to parse form body")
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll() // nolint:errcheck // temp files only
	}
	return r.PostForm, nil
}

// Identity returns the caller identity used for quotas: the host part of
// RemoteAddr. When the server trusts proxies, chi's RealIP middleware has
// already rewritten RemoteAddr.
func Identity(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}

func writeRateLimitHeaders(w http.ResponseWriter, decision quota.Decision) {
	if decision.Rule.Name == "" {
		return
	}

	h := w.Header()
	h.Set(HeaderRateLimitLimit, strconv.Itoa(decision.Rule.Requests))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))
	if !decision.Allowed {
		h.Set(HeaderRetryAfter, strconv.Itoa(decision.RetryAfterSeconds()))
	}
}

// writeUpstream relays a successful upstream body as JSON.
func writeUpstream(w http.ResponseWriter, resp *upstream.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Body)
}
