package remote

import (
	"bufio"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odvcencio/pocket/pkg/logging"
	"github.com/odvcencio/pocket/pkg/object"
	"github.com/odvcencio/pocket/pkg/refs"
)

const (
	// maxObjectsBody caps an upload request body after decompression.
	maxObjectsBody = 512 << 20
	// maxJSONBody caps small JSON request bodies.
	maxJSONBody = 8 << 20
	// maxNDJSONLine caps a single encoded object record.
	maxNDJSONLine = 128 << 20
)

// Server exposes a Backend over HTTP.
type Server struct {
	backend     *Backend
	credentials *Credentials
	logger      *slog.Logger
	mux         *http.ServeMux
}

// NewServer returns a handler for backend. When creds is non-empty every
// request must carry matching basic auth, or a bearer token equal to the
// password when the username is empty.
func NewServer(backend *Backend, creds *Credentials, logger *slog.Logger) *Server {
	s := &Server{
		backend:     backend,
		credentials: creds,
		logger:      logging.OrDiscard(logger),
		mux:         http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /refs", s.handleListRefs)
	s.mux.HandleFunc("GET /refs/{name...}", s.handleGetRef)
	s.mux.HandleFunc("POST /refs", s.handleUpdateRef)
	s.mux.HandleFunc("POST /objects/have", s.handleHave)
	s.mux.HandleFunc("POST /objects", s.handlePutObjects)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With("method", r.Method, "path", r.URL.Path, "request_id", r.Header.Get(headerRequestID))
	if !s.authorized(r) {
		log.Warn("unauthorized request")
		w.Header().Set("WWW-Authenticate", `Basic realm="pocket"`)
		s.writeError(w, http.StatusUnauthorized, &RemoteError{Code: codeUnauthorized, Message: "authentication required"})
		return
	}
	if v := r.Header.Get(headerProtocol); v != "" && v != ProtocolVersion {
		s.writeError(w, http.StatusBadRequest, &RemoteError{
			Code:    codeBadRequest,
			Message: "unsupported protocol version",
			Detail:  v,
		})
		return
	}
	w.Header().Set(headerProtocol, ProtocolVersion)
	w.Header().Set(headerCapabilities, ClientCapabilities)
	log.Debug("request")
	s.mux.ServeHTTP(w, r)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.credentials.Empty() {
		return true
	}
	if s.credentials.Username == "" {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if ok {
			return constantTimeEqual(token, s.credentials.Password)
		}
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	return constantTimeEqual(user, s.credentials.Username) && constantTimeEqual(pass, s.credentials.Password)
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleListRefs(w http.ResponseWriter, _ *http.Request) {
	all, err := s.backend.Refs()
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make(map[string]string, len(all))
	for name, h := range all {
		out[name] = string(h)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"refs": out})
}

func (s *Server) handleGetRef(w http.ResponseWriter, r *http.Request) {
	name := "refs/" + r.PathValue("name")
	h, err := s.backend.Ref(name)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, refResponse{Name: name, Hash: string(h)})
}

func (s *Server) handleHave(w http.ResponseWriter, r *http.Request) {
	var req haveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		s.badRequest(w, "decode have request", err)
		return
	}
	hashes := make([]object.Hash, 0, len(req.Hashes))
	for _, h := range req.Hashes {
		hashes = append(hashes, object.Hash(h))
	}
	have := s.backend.Have(hashes)
	resp := haveResponse{Have: make([]string, 0, len(have))}
	for _, h := range have {
		resp.Have = append(resp.Have, string(h))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutObjects(w http.ResponseWriter, r *http.Request) {
	var body io.Reader = r.Body
	if isZstdEncoded(r.Header.Get("Content-Encoding")) {
		zr, err := newZstdReader(r.Body)
		if err != nil {
			s.badRequest(w, "open zstd stream", err)
			return
		}
		defer zr.Close()
		body = zr
	}
	body = io.LimitReader(body, maxObjectsBody)

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), maxNDJSONLine)
	received, stored := 0, 0
	for sc.Scan() {
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var wo wireObject
		if err := json.Unmarshal(line, &wo); err != nil {
			s.badRequest(w, fmt.Sprintf("decode object %d", received), err)
			return
		}
		rec := ObjectRecord{Hash: object.Hash(wo.Hash), Type: object.ObjectType(wo.Type), Data: wo.Data}
		isNew, err := s.backend.Put(rec)
		if err != nil {
			s.fail(w, err)
			return
		}
		received++
		if isNew {
			stored++
		}
	}
	if err := sc.Err(); err != nil {
		s.badRequest(w, "read objects", err)
		return
	}
	s.logger.Info("objects received", "received", received, "stored", stored)
	s.writeJSON(w, http.StatusOK, map[string]int{"received": received, "stored": stored})
}

func (s *Server) handleUpdateRef(w http.ResponseWriter, r *http.Request) {
	var req refUpdateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		s.badRequest(w, "decode ref update", err)
		return
	}
	if err := s.backend.UpdateRef(req.Name, object.Hash(req.Old), object.Hash(req.New)); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, refResponse{Name: refs.FullName(req.Name), Hash: req.New})
}

// fail maps a backend error to a status code and structured body.
func (s *Server) fail(w http.ResponseWriter, err error) {
	code := errorCode(err)
	status := http.StatusInternalServerError
	switch {
	case code == codeNotFound:
		status = http.StatusNotFound
	case code == codeNonFastForward, code == codeStaleRef:
		status = http.StatusConflict
	case code == codeMissingObjects, code == codeBadObject:
		status = http.StatusUnprocessableEntity
	case errors.Is(err, refs.ErrInvalidName), errors.Is(err, object.ErrDanglingReference):
		code = codeBadRequest
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeError(w, status, &RemoteError{Code: code, Message: http.StatusText(status), Detail: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, what string, err error) {
	s.writeError(w, http.StatusBadRequest, &RemoteError{Code: codeBadRequest, Message: what, Detail: err.Error()})
}

func (s *Server) writeError(w http.ResponseWriter, status int, re *RemoteError) {
	s.writeJSON(w, status, re)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}
