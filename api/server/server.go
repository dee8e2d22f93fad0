// Package server is the local HTTP API of the client used by the UI. It exposes the session
// cache, the derived views, the write journal and runs user actions
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lunfardo314/ledgerchat/api"
	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/lunfardo314/ledgerchat/orchestrator"
	"github.com/lunfardo314/ledgerchat/session"
	"github.com/lunfardo314/ledgerchat/txstore"
	"github.com/lunfardo314/ledgerchat/views"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type (
	environment interface {
		global.Logging
		global.Metrics
	}

	// Actions is the part of the orchestrator driven by the API
	Actions interface {
		Cache() *session.Cache
		Connect(ctx context.Context) (model.Identity, error)
		Disconnect()
		RefreshAll(ctx context.Context) error
		OpenConversation(ctx context.Context, peer string) ([]model.Message, error)
		CreateAccount(ctx context.Context, name, physicalAddress, imageHash string) error
		SendFriendRequest(ctx context.Context, peer string) error
		AcceptFriendRequest(ctx context.Context, peer string) error
		RejectFriendRequest(ctx context.Context, peer string) error
		SendMessage(ctx context.Context, peer, text string) error
		CreatePost(ctx context.Context, content, imageHash string) error
		LikePost(ctx context.Context, owner string, postID uint64) error
		CommentOnPost(ctx context.Context, owner string, postID uint64, text string) error
		MintNFT(ctx context.Context, title, price, description, originalHash, previewHash string) error
		BuyNFT(ctx context.Context, tokenID, priceWei string) error
		BuyListing(ctx context.Context, tokenID uint64) error
	}

	// Images resolves content hashes into image bytes. Missing images are replaced by placeholder
	Images interface {
		ImageOrPlaceholder(ctx context.Context, hash string) ([]byte, bool)
	}

	ConfigOptions struct {
		Journal        *txstore.Journal
		Images         Images
		SlotStream     http.Handler
		AllowedOrigins []string
	}

	ConfigOption func(o *ConfigOptions)

	server struct {
		environment
		actions Actions
		views   *views.Engine
		ConfigOptions
		totalRequests *prometheus.CounterVec
	}
)

const (
	TraceTag = "apiServer"

	defaultJournalLimit = 100
)

func WithJournal(j *txstore.Journal) ConfigOption {
	return func(o *ConfigOptions) {
		o.Journal = j
	}
}

func WithImages(img Images) ConfigOption {
	return func(o *ConfigOptions) {
		o.Images = img
	}
}

// WithSlotStream mounts the websocket handler at '/ws'
func WithSlotStream(h http.Handler) ConfigOption {
	return func(o *ConfigOptions) {
		o.SlotStream = h
	}
}

func WithAllowedOrigins(origins ...string) ConfigOption {
	return func(o *ConfigOptions) {
		o.AllowedOrigins = origins
	}
}

// NewHandler returns router of the local API
func NewHandler(env environment, actions Actions, engine *views.Engine, opts ...ConfigOption) http.Handler {
	srv := &server{
		environment: env,
		actions:     actions,
		views:       engine,
		ConfigOptions: ConfigOptions{
			AllowedOrigins: []string{"*"},
		},
	}
	for _, opt := range opts {
		opt(&srv.ConfigOptions)
	}
	srv.registerMetrics()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: srv.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(srv.countRequests)

	srv.registerHandlers(r)
	return r
}

func (srv *server) registerHandlers(r chi.Router) {
	// GET '/api/v1/session' whole session snapshot
	r.Get(api.PathGetSession, srv.getSession)
	// GET '/api/v1/session/<slot>' one slot, also 'status' and 'available'
	r.Get(api.PathGetSlot, srv.getSlot)
	// GET '/api/v1/available' users which can be sent a friend request
	r.Get(api.PathGetAvailable, srv.getAvailable)
	// GET '/api/v1/status' latest error and actions in progress
	r.Get(api.PathGetStatus, srv.getStatus)
	// GET '/api/v1/journal[?limit=<n>]' latest writes, newest first
	r.Get(api.PathGetJournal, srv.getJournal)
	// POST '/api/v1/actions/<action>'
	r.Post(api.PathPostAction, srv.postAction)
	// GET '/api/v1/image/<hash>' image bytes or placeholder
	r.Get(api.PathGetImage, srv.getImage)

	if reg := srv.MetricsRegistry(); reg != nil {
		r.Handle(api.PathMetrics, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	if srv.SlotStream != nil {
		r.Handle(api.PathSlotStream, srv.SlotStream)
	}
}

func (srv *server) getSession(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, &api.Session{Snapshot: srv.actions.Cache().Snapshot()})
}

func (srv *server) getSlot(w http.ResponseWriter, r *http.Request) {
	slot := session.Slot(chi.URLParam(r, "slot"))
	if slot == views.SlotAvailable {
		api.WriteJSON(w, http.StatusOK, &api.Slot{Slot: slot, Value: srv.views.Available()})
		return
	}
	v, ok := srv.actions.Cache().SlotValue(slot)
	if !ok {
		api.WriteJSON(w, http.StatusNotFound, &api.Error{Error: "unknown slot '" + string(slot) + "'"})
		return
	}
	api.WriteJSON(w, http.StatusOK, &api.Slot{Slot: slot, Value: v})
}

func (srv *server) getAvailable(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, &api.Available{Users: srv.views.Available()})
}

func (srv *server) getStatus(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, &api.Status{StatusInfo: srv.actions.Cache().Status().Info()})
}

func (srv *server) getJournal(w http.ResponseWriter, r *http.Request) {
	if srv.Journal == nil {
		api.WriteJSON(w, http.StatusNotFound, &api.Error{Error: "journal is disabled"})
		return
	}
	limit := defaultJournalLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		var err error
		if limit, err = strconv.Atoi(s); err != nil || limit <= 0 {
			api.WriteErr(w, "wrong parameter 'limit'")
			return
		}
	}
	api.WriteJSON(w, http.StatusOK, &api.Journal{Records: srv.Journal.Records(limit)})
}

func (srv *server) getImage(w http.ResponseWriter, r *http.Request) {
	if srv.Images == nil {
		api.WriteJSON(w, http.StatusNotFound, &api.Error{Error: "gateway is not configured"})
		return
	}
	data, found := srv.Images.ImageOrPlaceholder(r.Context(), chi.URLParam(r, "hash"))
	if !found {
		w.Header().Set("X-Placeholder", "true")
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	_, _ = w.Write(data)
}

func (srv *server) postAction(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	var req api.ActionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteError(w, global.Errorf(global.KindValidation, action, "wrong request body: %v", err))
			return
		}
	}
	srv.Tracef(TraceTag, "action %s: %+v", action, req)

	resp, err := srv.runAction(r.Context(), action, &req)
	if err != nil {
		api.WriteJSON(w, api.StatusCode(err), &api.ActionResponse{Error: api.ErrorFrom(err), Action: action})
		return
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

var errUnknownAction = errors.New("unknown action")

func (srv *server) runAction(ctx context.Context, action string, req *api.ActionRequest) (*api.ActionResponse, error) {
	a := srv.actions
	ret := &api.ActionResponse{Action: action}
	var err error
	switch action {
	case orchestrator.ActionConnect:
		var id model.Identity
		if id, err = a.Connect(ctx); err == nil {
			ret.Identity = &id
		}
	case "disconnect":
		a.Disconnect()
	case orchestrator.ActionRefresh:
		err = a.RefreshAll(ctx)
	case orchestrator.ActionOpenConversation:
		_, err = a.OpenConversation(ctx, req.Peer)
	case orchestrator.ActionCreateAccount:
		err = a.CreateAccount(ctx, req.Name, req.PhysicalAddress, req.ImageHash)
	case orchestrator.ActionSendFriendRequest:
		err = a.SendFriendRequest(ctx, req.Peer)
	case orchestrator.ActionAcceptFriendRequest:
		err = a.AcceptFriendRequest(ctx, req.Peer)
	case orchestrator.ActionRejectFriendRequest:
		err = a.RejectFriendRequest(ctx, req.Peer)
	case orchestrator.ActionSendMessage:
		err = a.SendMessage(ctx, req.Peer, req.Text)
	case orchestrator.ActionCreatePost:
		err = a.CreatePost(ctx, req.Text, req.ImageHash)
	case orchestrator.ActionLikePost:
		err = a.LikePost(ctx, req.Owner, req.PostID)
	case orchestrator.ActionCommentOnPost:
		err = a.CommentOnPost(ctx, req.Owner, req.PostID, req.Text)
	case orchestrator.ActionMintNFT:
		err = a.MintNFT(ctx, req.Title, req.Price, req.Description, req.OriginalHash, req.PreviewHash)
	case orchestrator.ActionBuyNFT:
		if req.PriceWei != "" {
			err = a.BuyNFT(ctx, req.TokenID, req.PriceWei)
			break
		}
		var id uint64
		if id, err = strconv.ParseUint(req.TokenID, 10, 64); err != nil {
			return nil, global.Errorf(global.KindValidation, action, "wrong token id '%s'", req.TokenID)
		}
		err = a.BuyListing(ctx, id)
	default:
		return nil, global.NewError(global.KindValidation, action, errUnknownAction)
	}
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (srv *server) registerMetrics() {
	reg := srv.MetricsRegistry()
	if reg == nil {
		return
	}
	srv.totalRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerchat_api_requests_total",
		Help: "total API requests",
	}, []string{"method"})
	reg.MustRegister(srv.totalRequests)
}

func (srv *server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.Tracef(TraceTag, "API request: %s %s from %s", r.Method, r.URL.String(), r.RemoteAddr)
		next.ServeHTTP(w, r)
		if srv.totalRequests != nil {
			srv.totalRequests.WithLabelValues(r.Method).Inc()
		}
	})
}

// Run serves the handler until the global context is canceled
func Run(addr string, env interface {
	global.Logging
	global.StartStop
}, handler http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	env.MarkWorkProcessStarted("api_server")
	go func() {
		defer env.MarkWorkProcessStopped("api_server")
		env.Infof0("[api] listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			env.Log().Errorf("[api] server error: %v", err)
			env.Stop()
		}
	}()
	go func() {
		<-env.Ctx().Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		env.Infof0("[api] server stopped")
	}()
}
