package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/qgenie/internal/chat"
	"github.com/koustreak/qgenie/internal/credential"
	"github.com/koustreak/qgenie/internal/database/registry"
	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/profile"
	"github.com/koustreak/qgenie/internal/query"
)

// --- profiles ---

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Profiles.List(r.Context())
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, list)
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	var in profile.Input
	if err := decode(r, &in); err != nil {
		fail(w, r, s.log, err)
		return
	}
	p, err := s.deps.Profiles.Create(r.Context(), in)
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	created(w, p)
}

func (s *Server) testProfileInput(w http.ResponseWriter, r *http.Request) {
	var in profile.Input
	if err := decode(r, &in); err != nil {
		fail(w, r, s.log, err)
		return
	}
	if err := s.deps.Profiles.Test(r.Context(), in); err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, map[string]bool{"connected": true})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Profiles.Get(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, p)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var patch profile.Patch
	if err := decode(r, &patch); err != nil {
		fail(w, r, s.log, err)
		return
	}
	p, err := s.deps.Profiles.Update(r.Context(), chi.URLParam(r, "profileID"), patch)
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, p)
}

func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Profiles.Delete(r.Context(), chi.URLParam(r, "profileID")); err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, nil)
}

func (s *Server) testProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Profiles.TestStored(r.Context(), chi.URLParam(r, "profileID")); err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, map[string]bool{"connected": true})
}

// --- schema ---

func (s *Server) listSchemas(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Profiles.Resolve(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	out, err := s.deps.Schemas.ListSchemas(r.Context(), p.Params())
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, out)
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Profiles.Resolve(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	out, err := s.deps.Schemas.ListTables(r.Context(), p.Params(), chi.URLParam(r, "schema"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, out)
}

func (s *Server) listColumns(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Profiles.Resolve(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	out, err := s.deps.Schemas.ListColumns(r.Context(), p.Params(), chi.URLParam(r, "schema"), chi.URLParam(r, "table"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, out)
}

func (s *Server) hierarchy(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Profiles.Resolve(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	out, err := s.deps.Schemas.Hierarchy(r.Context(), p.Params())
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, out)
}

// --- annotations ---

type createAnnotationRequest struct {
	DBProfileID string `json:"db_profile_id"`
}

func (s *Server) createAnnotation(w http.ResponseWriter, r *http.Request) {
	var req createAnnotationRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, s.log, err)
		return
	}
	a, err := s.deps.Annotations.Create(r.Context(), req.DBProfileID)
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	created(w, a)
}

func (s *Server) getAnnotation(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Annotations.Get(r.Context(), chi.URLParam(r, "annotationID"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, a)
}

func (s *Server) deleteAnnotation(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Annotations.Delete(r.Context(), chi.URLParam(r, "annotationID")); err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, nil)
}

func (s *Server) annotationByProfile(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Annotations.ByProfile(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, a)
}

func (s *Server) annotationTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.deps.Annotations.Hierarchical(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, tree)
}

func (s *Server) exportAnnotation(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Exporter.Export(r.Context(), chi.URLParam(r, "annotationID"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	created(w, res)
}

func (s *Server) listExports(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Exporter.List(r.Context())
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, list)
}

// --- query ---

type executeRequest struct {
	DBProfileID   string `json:"db_profile_id"`
	SQL           string `json:"query_text"`
	Database      string `json:"database,omitempty"`
	ChatMessageID string `json:"chat_message_id,omitempty"`
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	s.runQuery(w, r, s.deps.Queries.Execute)
}

func (s *Server) executeTest(w http.ResponseWriter, r *http.Request) {
	s.runQuery(w, r, s.deps.Queries.ExecuteTest)
}

func (s *Server) runQuery(w http.ResponseWriter, r *http.Request,
	run func(ctx context.Context, req query.Request) (*query.Result, error)) {
	var req executeRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, s.log, err)
		return
	}
	p, err := s.deps.Profiles.Resolve(r.Context(), req.DBProfileID)
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	res, err := run(r.Context(), query.Request{
		SQL:           req.SQL,
		Params:        p.Params(),
		Database:      req.Database,
		ChatMessageID: req.ChatMessageID,
	})
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, res)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("chat_tab_id")
	if tabID == "" {
		fail(w, r, s.log, errs.New(errs.ErrKindInvalidInput, "chat_tab_id is required").WithCode(errs.CodeNoValue))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fail(w, r, s.log, errs.Newf(errs.ErrKindInvalidInput, "invalid limit %q", v).WithCode(errs.CodeInvalidParameter))
			return
		}
		limit = n
	}
	records, err := s.deps.History.Latest(r.Context(), tabID, limit)
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, records)
}

// --- credentials ---

type credentialRequest struct {
	ServiceName string `json:"service_name"`
	APIKey      string `json:"api_key"`
}

func (s *Server) listCredentials(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Credentials.List(r.Context())
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, list)
}

func (s *Server) saveCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, s.log, err)
		return
	}
	p, err := credential.ParseProvider(req.ServiceName)
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	c, err := s.deps.Credentials.Save(r.Context(), p, req.APIKey)
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	created(w, c)
}

func (s *Server) updateCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, s.log, err)
		return
	}
	p, err := credential.ParseProvider(chi.URLParam(r, "service"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	c, err := s.deps.Credentials.Update(r.Context(), p, req.APIKey)
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, c)
}

func (s *Server) deleteCredential(w http.ResponseWriter, r *http.Request) {
	p, err := credential.ParseProvider(chi.URLParam(r, "service"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	if err := s.deps.Credentials.Delete(r.Context(), p); err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, nil)
}

// --- chat ---

type tabRequest struct {
	Name string `json:"name"`
}

type messageRequest struct {
	Sender  chat.Sender `json:"sender"`
	Message string      `json:"message"`
}

func (s *Server) listTabs(w http.ResponseWriter, r *http.Request) {
	tabs, err := s.deps.Chats.ListTabs(r.Context())
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, tabs)
}

func (s *Server) createTab(w http.ResponseWriter, r *http.Request) {
	var req tabRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, s.log, err)
		return
	}
	tab, err := s.deps.Chats.CreateTab(r.Context(), req.Name)
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	created(w, tab)
}

func (s *Server) getTab(w http.ResponseWriter, r *http.Request) {
	tab, err := s.deps.Chats.GetTab(r.Context(), chi.URLParam(r, "tabID"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, tab)
}

func (s *Server) renameTab(w http.ResponseWriter, r *http.Request) {
	var req tabRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, s.log, err)
		return
	}
	tab, err := s.deps.Chats.RenameTab(r.Context(), chi.URLParam(r, "tabID"), req.Name)
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, tab)
}

func (s *Server) deleteTab(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Chats.DeleteTab(r.Context(), chi.URLParam(r, "tabID")); err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, nil)
}

func (s *Server) addMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, s.log, err)
		return
	}
	msg, err := s.deps.Chats.AddMessage(r.Context(), chi.URLParam(r, "tabID"), req.Sender, req.Message)
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	created(w, msg)
}

type askRequest struct {
	Message string `json:"message"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, s.log, err)
		return
	}
	ex, err := s.deps.Assistant.Ask(r.Context(), chi.URLParam(r, "tabID"), req.Message)
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	created(w, ex)
}

// --- drivers ---

func (s *Server) listDrivers(w http.ResponseWriter, r *http.Request) {
	out := make([]registry.DriverInfo, 0, len(dialect.Types()))
	for _, t := range dialect.Types() {
		info, err := registry.Describe(s.deps.Connector, t)
		if err != nil {
			fail(w, r, s.log, err)
			return
		}
		out = append(out, info)
	}
	ok(w, out)
}

func (s *Server) driverInfo(w http.ResponseWriter, r *http.Request) {
	t, err := dialect.Parse(chi.URLParam(r, "type"))
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	info, err := registry.Describe(s.deps.Connector, t)
	if err != nil {
		fail(w, r, s.log, err)
		return
	}
	ok(w, info)
}
