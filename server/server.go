package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/minaorangina/easyplayer"
	"github.com/minaorangina/easyplayer/entity"
	"github.com/minaorangina/easyplayer/journal"
	"github.com/minaorangina/easyplayer/protocol"
	"github.com/minaorangina/easyplayer/tick"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownDelayID = errors.New("unknown or expired delay ID")
	ErrMissingUserID  = errors.New("missing user ID")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type JoinReq struct {
	Name string `json:"name"`
	Team *int   `json:"team,omitempty"`
}

type JoinRes struct {
	UserID int    `json:"user_id"`
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Team   int    `json:"team"`
}

type PlayerRes struct {
	UserID     int            `json:"user_id"`
	Index      int            `json:"index"`
	Name       string         `json:"name"`
	Team       int            `json:"team"`
	TeamName   string         `json:"team_name"`
	CSTeam     string         `json:"cs_team"`
	TFTeam     string         `json:"tf_team"`
	Properties map[string]int `json:"properties"`
}

type ShiftReq struct {
	UserID   int    `json:"user_id"`
	Property string `json:"property"`
	Delta    int    `json:"delta"`
	// DurationMs is optional; without it the shift is permanent
	DurationMs *int64 `json:"duration_ms,omitempty"`
}

type ShiftRes struct {
	UserID   int    `json:"user_id"`
	Property string `json:"property"`
	Value    int    `json:"value"`
	DelayID  string `json:"delay_id,omitempty"`
}

type ServerOpts struct {
	Store       *entity.InMemoryStore
	Dispatcher  *tick.Dispatcher
	Mode        easyplayer.Mode
	DefaultTeam int
	Journal     journal.Recorder
	Logger      logrus.FieldLogger
	// AccessLog receives one line per HTTP request
	AccessLog io.Writer
}

// GameServer hosts a sandbox of players over HTTP and websockets.
// Every read and write of player state happens on the dispatcher's tick.
type GameServer struct {
	http.Server
	store       *entity.InMemoryStore
	dispatcher  *tick.Dispatcher
	mode        easyplayer.Mode
	defaultTeam int
	journal     journal.Recorder
	session     string
	log         logrus.FieldLogger
	hub         *hub

	mu      sync.Mutex
	pending map[string]easyplayer.Cancellable
}

// NewServer creates a new GameServer and registers it as the store's observer
func NewServer(opts ServerOpts) *GameServer {
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.AccessLog == nil {
		opts.AccessLog = io.Discard
	}

	s := &GameServer{
		store:       opts.Store,
		dispatcher:  opts.Dispatcher,
		mode:        opts.Mode,
		defaultTeam: opts.DefaultTeam,
		journal:     opts.Journal,
		session:     journal.NewSession(),
		log:         opts.Logger,
		pending:     map[string]easyplayer.Cancellable{},
	}
	s.hub = newHub(s.log)
	s.store.SetObserver(s.onChange)

	router := http.NewServeMux()
	router.Handle("/join", http.HandlerFunc(s.HandleJoin))
	router.Handle("/player/", http.HandlerFunc(s.HandlePlayer))
	router.Handle("/shift", http.HandlerFunc(s.HandleShift))
	router.Handle("/shift/", http.HandlerFunc(s.HandleCancel))
	router.Handle("/ws", http.HandlerFunc(s.HandleWS))

	var h http.Handler = router
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(s.log))(h)
	h = handlers.LoggingHandler(opts.AccessLog, h)

	s.Handler = h

	return s
}

// ServeHTTP serves http
func (s *GameServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler.ServeHTTP(w, r)
}

// Close stops the HTTP server and disconnects every websocket client
func (s *GameServer) Close() error {
	err := s.Server.Close()
	s.hub.closeAll()
	return err
}

// ServeUntil serves on l and runs the tick loop until ctx is done. Open
// requests are then drained for up to grace while ticks keep running, so
// handlers waiting on the tick can finish. The tick loop has stopped by the
// time ServeUntil returns.
func (s *GameServer) ServeUntil(ctx context.Context, l net.Listener, grace time.Duration) error {
	tickCtx, stopTicks := context.WithCancel(context.Background())
	ticking := make(chan struct{})
	go func() {
		defer close(ticking)
		s.dispatcher.Run(tickCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(l)
	}()

	var err error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		err = s.Shutdown(shutdownCtx)
		cancel()
		<-serveErr
	case err = <-serveErr:
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	s.hub.closeAll()
	stopTicks()
	<-ticking

	return err
}

// Session returns the journal session ID of this server run
func (s *GameServer) Session() string {
	return s.session
}

// HandleJoin connects a new player
func (s *GameServer) HandleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var data JoinReq
	if !decodeBody(w, r, &data) {
		return
	}

	team := s.defaultTeam
	if data.Team != nil {
		team = *data.Team
	}

	var e *entity.Entity
	err := s.dispatcher.Do(r.Context(), func() error {
		var err error
		e, err = s.store.Connect(data.Name, team)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.log.WithFields(logrus.Fields{
		"user_id": e.UserID(),
		"index":   e.Index(),
		"name":    e.Name(),
	}).Info("player joined")

	writeJSON(w, http.StatusCreated, JoinRes{
		UserID: e.UserID(),
		Index:  e.Index(),
		Name:   e.Name(),
		Team:   team,
	})
}

// HandlePlayer shows (GET) or disconnects (DELETE) a player
func (s *GameServer) HandlePlayer(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/player/"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("malformed user ID"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		var res PlayerRes
		err := s.dispatcher.Do(r.Context(), func() error {
			var err error
			res, err = s.describe(userID)
			return err
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)

	case http.MethodDelete:
		err := s.dispatcher.Do(r.Context(), func() error {
			return s.store.Disconnect(userID)
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.hub.disconnect(userID)
		s.log.WithField("user_id", userID).Info("player left")
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// HandleShift shifts a player's property
func (s *GameServer) HandleShift(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var data ShiftReq
	if !decodeBody(w, r, &data) {
		return
	}
	if data.UserID == 0 {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(ErrMissingUserID.Error()))
		return
	}

	var duration *time.Duration
	if data.DurationMs != nil {
		d := time.Duration(*data.DurationMs) * time.Millisecond
		duration = &d
	}

	res, err := s.shift(r.Context(), data.UserID, data.Property, data.Delta, duration)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// HandleCancel cancels a pending revert
func (s *GameServer) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	delayID := strings.TrimPrefix(r.URL.Path, "/shift/")
	if !s.cancel(delayID) {
		s.writeError(w, ErrUnknownDelayID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleWS upgrades a connected player to a websocket
func (s *GameServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(ErrMissingUserID.Error()))
		return
	}

	if _, err := s.store.IndexFromUserID(userID); err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("could not upgrade to websocket")
		return
	}

	c := newClient(userID, conn, s)
	s.hub.register(c)
	go c.writePump()
	go c.readPump()
}

// handle answers an inbound websocket message from c
func (s *GameServer) handle(ctx context.Context, c *client, msg protocol.InboundMessage) protocol.OutboundMessage {
	userID := msg.UserID
	if userID == 0 {
		userID = c.userID
	}

	switch msg.Command {
	case protocol.Shift:
		var duration *time.Duration
		if msg.DurationMs != 0 {
			d := time.Duration(msg.DurationMs) * time.Millisecond
			duration = &d
		}
		res, err := s.shift(ctx, userID, msg.Property, msg.Delta, duration)
		if err != nil {
			return protocol.ErrorMessage(userID, err)
		}
		return protocol.OutboundMessage{
			Command:  protocol.Shift,
			UserID:   userID,
			Property: res.Property,
			Value:    res.Value,
			DelayID:  res.DelayID,
		}

	case protocol.Cancel:
		if !s.cancel(msg.DelayID) {
			return protocol.ErrorMessage(userID, ErrUnknownDelayID)
		}
		return protocol.OutboundMessage{Command: protocol.Cancel, UserID: userID, DelayID: msg.DelayID}

	case protocol.Team:
		mode := s.mode
		if msg.Mode != "" {
			var err error
			if mode, err = easyplayer.ParseMode(msg.Mode); err != nil {
				return protocol.ErrorMessage(userID, err)
			}
		}
		var name string
		err := s.dispatcher.Do(ctx, func() error {
			p, err := easyplayer.Env{Registry: s.store}.FromUserID(userID)
			if err != nil {
				return err
			}
			name, err = p.TeamName(mode)
			return err
		})
		if err != nil {
			return protocol.ErrorMessage(userID, err)
		}
		return protocol.OutboundMessage{Command: protocol.Team, UserID: userID, Team: name}
	}

	return protocol.ErrorMessage(userID, errors.New("unsupported command "+msg.Command.String()))
}

// shift applies a shift on the tick and tracks its revert, if any
func (s *GameServer) shift(ctx context.Context, userID int, property string, delta int, duration *time.Duration) (ShiftRes, error) {
	res := ShiftRes{UserID: userID, Property: property}

	err := s.dispatcher.Do(ctx, func() error {
		delayID := uuid.NewV4().String()
		env := easyplayer.Env{
			Registry:  s.store,
			Scheduler: s.trackedScheduler(userID, property, delayID),
		}
		p, err := env.FromUserID(userID)
		if err != nil {
			return err
		}

		if duration == nil {
			err = p.ShiftProperty(property, delta)
		} else {
			var pending easyplayer.Cancellable
			pending, err = p.ShiftPropertyFor(property, delta, *duration)
			if err == nil {
				s.remember(delayID, pending)
				res.DelayID = delayID
			}
		}
		if err != nil {
			return err
		}

		res.Value, err = p.Property(property)
		return err
	})

	return res, err
}

// trackedScheduler forgets delayID and announces the revert once it fires
func (s *GameServer) trackedScheduler(userID int, property, delayID string) easyplayer.Scheduler {
	return easyplayer.SchedulerFunc(func(delay time.Duration, fn func() error) easyplayer.Cancellable {
		return s.dispatcher.Delay(delay, func() error {
			s.forget(delayID)
			if err := fn(); err != nil {
				return err
			}

			e, err := s.store.FindByUserID(userID)
			if err != nil {
				return nil
			}
			value, err := e.Property(property)
			if err != nil {
				return nil
			}
			s.hub.broadcast(protocol.OutboundMessage{
				Command:  protocol.Reverted,
				UserID:   userID,
				Index:    e.Index(),
				Property: property,
				Value:    value,
				DelayID:  delayID,
			})
			return nil
		})
	})
}

func (s *GameServer) remember(delayID string, c easyplayer.Cancellable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[delayID] = c
}

func (s *GameServer) forget(delayID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, delayID)
}

func (s *GameServer) cancel(delayID string) bool {
	s.mu.Lock()
	c, ok := s.pending[delayID]
	delete(s.pending, delayID)
	s.mu.Unlock()

	return ok && c.Cancel()
}

// PendingReverts returns how many reverts are waiting to fire
func (s *GameServer) PendingReverts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *GameServer) describe(userID int) (PlayerRes, error) {
	e, err := s.store.FindByUserID(userID)
	if err != nil {
		return PlayerRes{}, err
	}
	p := easyplayer.New(e, nil)

	// out of range teams are reported with empty names
	name, _ := p.TeamName(s.mode)
	cs, _ := p.CSTeam()
	tf, _ := p.TFTeam()

	return PlayerRes{
		UserID:     e.UserID(),
		Index:      e.Index(),
		Name:       e.Name(),
		Team:       e.Team(),
		TeamName:   name,
		CSTeam:     cs,
		TFTeam:     tf,
		Properties: e.Properties(),
	}, nil
}

func (s *GameServer) onChange(c entity.Change) {
	if err := s.journal.Record(journal.FromChange(s.session, s.dispatcher.Ticks(), c)); err != nil {
		s.log.WithError(err).Warn("could not journal change")
	}

	s.hub.broadcast(protocol.OutboundMessage{
		Command:  protocol.PropertyChanged,
		UserID:   c.UserID,
		Index:    c.Index,
		Property: c.Property,
		Value:    c.New,
		Old:      c.Old,
	})
}

func (s *GameServer) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	w.Write([]byte(err.Error()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, easyplayer.ErrUnknownUserID),
		errors.Is(err, easyplayer.ErrUnknownIndex),
		errors.Is(err, easyplayer.ErrUnknownProperty),
		errors.Is(err, ErrUnknownDelayID):
		return http.StatusNotFound
	case errors.Is(err, easyplayer.ErrNegativeDuration),
		errors.Is(err, entity.ErrMissingName):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrServerFull),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()

	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		w.Header().Add("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Missing body"))
		return false
	}
	if err != nil {
		w.Header().Add("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Malformed body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	bytes, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(bytes)
}
