package hub

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/mkempf/covert-duel-backend/internal/archive"
	"github.com/mkempf/covert-duel-backend/internal/config"
	"github.com/mkempf/covert-duel-backend/internal/metrics"
	"github.com/mkempf/covert-duel-backend/internal/rules"
	"github.com/mkempf/covert-duel-backend/internal/session"
)

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	Code  string
	Reply chan *session.Machine
}

type GetSession struct {
	Code  string
	Reply chan *session.Machine
}

type RemoveSession struct {
	Code string
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// Hub owns the session registry. Sessions are independent units of
// concurrency; the hub only creates and looks them up.
type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Machine
	docs     config.Documents
	log      *zap.Logger
	store    *archive.Store
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, docs config.Documents, log *zap.Logger, store *archive.Store) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Machine),
		docs:     docs,
		log:      log,
		store:    store,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if s := h.sessions[msg.Code]; s != nil {
					msg.Reply <- s
					break
				}
				msg.Reply <- h.spawn(msg.Code)

			case GetSession:
				msg.Reply <- h.sessions[msg.Code] // may be nil

			case RemoveSession:
				if _, ok := h.sessions[msg.Code]; ok {
					delete(h.sessions, msg.Code)
					metrics.SessionsActive.Dec()
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) spawn(code string) *session.Machine {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	s := session.New(h.ctx, h.docs, rules.Standard{}, rng, h.log, func(r session.Result) {
		h.log.Info("session finished",
			zap.String("code", code),
			zap.String("session", r.SessionID.String()),
			zap.String("winner", string(r.Winner)),
			zap.String("reason", r.Reason))
		if err := h.store.Record(archive.MatchRecord{
			SessionID: r.SessionID.String(),
			Winner:    string(r.Winner),
			Reason:    r.Reason,
			Rounds:    r.Rounds,
		}); err != nil {
			h.log.Warn("archive write failed", zap.Error(err))
		}
		// The finish callback runs on the session goroutine; removal goes
		// through the hub inbox like everything else.
		select {
		case h.inbox <- RemoveSession{Code: code}:
		case <-h.ctx.Done():
		}
	})
	h.sessions[code] = s
	metrics.SessionsCreated.Inc()
	metrics.SessionsActive.Inc()
	return s
}

func (h *Hub) shutdown() {
	for code, s := range h.sessions {
		s.Inbox() <- session.Shutdown{}
		delete(h.sessions, code)
	}
	h.cancel()
}
