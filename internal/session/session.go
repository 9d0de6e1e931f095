// Package session implements the per-match state machine: a lobby that
// seats two players, the nested draft/equip/play phases, and the closed
// terminal state. Each session runs as one actor goroutine; the selection
// pool underneath is the only state shared across request paths.
package session

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkempf/covert-duel-backend/internal/config"
	"github.com/mkempf/covert-duel-backend/internal/draft"
	"github.com/mkempf/covert-duel-backend/internal/game"
	"github.com/mkempf/covert-duel-backend/internal/metrics"
	"github.com/mkempf/covert-duel-backend/internal/pool"
	"github.com/mkempf/covert-duel-backend/internal/protocol"
	"github.com/mkempf/covert-duel-backend/internal/round"
	"github.com/mkempf/covert-duel-backend/internal/rules"
)

type Phase string

const (
	PhaseLobby  Phase = "lobby"
	PhaseDraft  Phase = "draft"
	PhaseEquip  Phase = "equip"
	PhasePlay   Phase = "play"
	PhaseClosed Phase = "closed"
)

func (p Phase) running() bool {
	return p == PhaseDraft || p == PhaseEquip || p == PhasePlay
}

type participant struct {
	connID    string
	name      string
	faction   game.Faction // player1/player2; neutral for spectators
	spectator bool
}

// Machine is one session's actor. All fields are loop-local.
type Machine struct {
	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
	rng    *rand.Rand
	engine rules.Engine
	docs   config.Documents

	id      uuid.UUID
	phase   Phase
	clients map[string]chan protocol.ServerMessage
	parts   map[string]*participant
	seats   map[game.Faction]string // player faction -> connID

	templates    map[uuid.UUID]game.CharacterTemplate
	characterIDs []uuid.UUID

	draft *draft.Coordinator
	world *game.World
	round *round.Coordinator

	paused   bool
	pauseGen int

	onFinish func(Result)
	finished bool
}

// New spawns the session loop. onFinish fires once, after the result
// broadcast, and may be nil.
func New(parent context.Context, docs config.Documents, engine rules.Engine, rng *rand.Rand, log *zap.Logger, onFinish func(Result)) *Machine {
	ctx, cancel := context.WithCancel(parent)

	m := &Machine{
		inbox:     make(chan Msg, 64),
		ctx:       ctx,
		cancel:    cancel,
		log:       log,
		rng:       rng,
		engine:    engine,
		docs:      docs,
		phase:     PhaseLobby,
		clients:   make(map[string]chan protocol.ServerMessage),
		parts:     make(map[string]*participant),
		seats:     make(map[game.Faction]string),
		templates: make(map[uuid.UUID]game.CharacterTemplate),
		onFinish:  onFinish,
	}
	for _, tpl := range docs.Roster.Characters {
		id := uuid.New()
		m.templates[id] = tpl
		m.characterIDs = append(m.characterIDs, id)
	}

	go m.loop()
	return m
}

// Inbox is where the transport (and tests) deliver messages.
func (m *Machine) Inbox() chan<- Msg { return m.inbox }

// Done closes when the session ends and the loop stops draining the inbox.
// Transports must select on it for every inbox send or they can block on a
// finished session.
func (m *Machine) Done() <-chan struct{} { return m.ctx.Done() }

func (m *Machine) loop() {
	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return

		case raw := <-m.inbox:
			switch msg := raw.(type) {
			case Join:
				m.clients[msg.ConnID] = msg.Outbox

			case Leave:
				m.removeParticipant(msg.ConnID, "connection closed")

			case FromClient:
				m.handleClient(msg.ConnID, msg.Msg)

			case pauseExpired:
				if msg.gen == m.pauseGen && m.paused {
					m.paused = false
					m.pauseGen++
					m.broadcast(pauseMessage(false))
				}

			case GetView:
				msg.Reply <- m.view()

			case Shutdown:
				m.shutdown()
				return
			}
		}
	}
}

func (m *Machine) handleClient(connID string, msg protocol.ClientMessage) {
	metrics.MessagesHandled.WithLabelValues(msg.Type).Inc()

	if m.phase == PhaseClosed {
		m.send(connID, protocol.ServerMessage{Type: protocol.TypeError, Error: "session closed"})
		return
	}
	if msg.Type == protocol.TypeHello {
		m.handleHello(connID, msg)
		return
	}

	p := m.parts[connID]
	if p == nil {
		m.disconnect(connID, "first message must be Hello")
		return
	}

	switch msg.Type {
	case protocol.TypeLeave:
		m.removeParticipant(connID, "left the session")

	case protocol.TypeMetaRequest:
		if !m.phase.running() {
			m.send(connID, protocol.ServerMessage{Type: protocol.TypeError, Error: "no running game to query"})
			return
		}
		m.send(connID, protocol.ServerMessage{
			Type: protocol.TypeMetaReply,
			Meta: m.buildMetaReply(p, msg.Keys),
		})

	case protocol.TypeItemChoice:
		m.handleItemChoice(connID, p, msg)

	case protocol.TypeEquipmentChoice:
		m.handleEquipmentChoice(connID, p, msg)

	case protocol.TypeAction:
		m.handleAction(connID, p, msg)

	case protocol.TypePauseRequest:
		m.handlePause(connID, p, msg)

	default:
		m.disconnect(connID, "unknown message type")
	}
}

func (m *Machine) handleHello(connID string, msg protocol.ClientMessage) {
	if m.parts[connID] != nil {
		m.disconnect(connID, "duplicate Hello")
		return
	}

	p := &participant{connID: connID, name: msg.Name, faction: game.FactionNeutral, spectator: true}

	if msg.Role == protocol.RolePlayer && m.phase == PhaseLobby {
		for _, f := range game.PlayerFactions {
			if _, taken := m.seats[f]; !taken {
				p.faction = f
				p.spectator = false
				m.seats[f] = connID
				break
			}
		}
	}
	if !p.spectator && m.id == uuid.Nil {
		// First entrant creates the session identity.
		m.id = uuid.New()
	}
	m.parts[connID] = p

	m.send(connID, protocol.ServerMessage{
		Type:      protocol.TypeHelloReply,
		SessionID: m.id.String(),
		Assigned:  p.faction,
		Match:     &m.docs.Match,
		Scenario:  &m.docs.Scenario,
	})
	m.log.Info("participant joined",
		zap.String("session", m.id.String()),
		zap.String("name", p.name),
		zap.String("faction", string(p.faction)),
		zap.Bool("spectator", p.spectator))

	if m.phase == PhaseLobby && len(m.seats) == len(game.PlayerFactions) {
		m.enterDraft()
	}
}

func (m *Machine) enterDraft() {
	m.phase = PhaseDraft
	m.broadcast(protocol.ServerMessage{
		Type:      protocol.TypeGameStarted,
		SessionID: m.id.String(),
		Players:   m.playerInfos(),
	})

	m.draft = draft.New(pool.New(m.rng), m.characterIDs)
	offers, err := m.draft.OpenOffers()
	if err != nil {
		m.poolFailure(err)
		return
	}
	for f, offer := range offers {
		m.sendToFaction(f, protocol.ServerMessage{
			Type:       protocol.TypeItemChoiceOffer,
			Characters: offer.Characters,
			Gadgets:    offer.Gadgets,
		})
	}
}

func (m *Machine) handleItemChoice(connID string, p *participant, msg protocol.ClientMessage) {
	if m.phase != PhaseDraft || p.spectator {
		m.disconnect(connID, "unexpected ItemChoice")
		return
	}

	next, verdict, err := m.draft.HandleChoice(p.faction, draft.Choice{
		CharacterID: msg.CharacterID,
		Gadget:      msg.GadgetKind,
	})
	if err != nil {
		m.poolFailure(err)
		return
	}
	if !m.applyVerdict(connID, verdict) {
		return
	}

	if next != nil {
		m.sendToFaction(p.faction, protocol.ServerMessage{
			Type:       protocol.TypeItemChoiceOffer,
			Characters: next.Characters,
			Gadgets:    next.Gadgets,
		})
	}
	if m.draft.ChoiceComplete() {
		m.enterEquip()
	}
}

func (m *Machine) enterEquip() {
	m.phase = PhaseEquip
	for _, f := range game.PlayerFactions {
		sel := m.draft.Selections(f)
		m.sendToFaction(f, protocol.ServerMessage{
			Type:       protocol.TypeEquipmentChoiceOffer,
			Characters: sel.Characters,
			Gadgets:    sel.Gadgets,
		})
	}
}

func (m *Machine) handleEquipmentChoice(connID string, p *participant, msg protocol.ClientMessage) {
	if m.phase != PhaseEquip || p.spectator {
		m.disconnect(connID, "unexpected EquipmentChoice")
		return
	}
	if !m.applyVerdict(connID, m.draft.HandleEquipment(p.faction, msg.Equipment)) {
		return
	}
	if m.draft.EquipComplete() {
		m.enterPlay()
	}
}

func (m *Machine) enterPlay() {
	m.phase = PhasePlay
	m.world = game.BuildWorld(m.docs.Scenario, m.templates, m.draft.FactionAssignment(), m.draft.Equipment(), m.rng)
	m.round = round.New(m.world, m.docs.Match, m.engine, m.rng)
	m.round.BeginRound()
	m.afterPlayStep()
}

func (m *Machine) handleAction(connID string, p *participant, msg protocol.ClientMessage) {
	if m.phase != PhasePlay || p.spectator || msg.Action == nil {
		m.disconnect(connID, "unexpected Action")
		return
	}
	// The active player acting cancels a pending pause.
	if m.paused {
		m.paused = false
		m.pauseGen++
		m.broadcast(pauseMessage(false))
	}
	if !m.applyVerdict(connID, m.round.HandleAction(p.faction, *msg.Action)) {
		return
	}
	m.afterPlayStep()
}

// afterPlayStep runs the game-over guard and otherwise broadcasts the new
// round status with the freshly active unit.
func (m *Machine) afterPlayStep() {
	if winner, reason, over := m.round.GameOver(); over {
		m.finishGame(winner, reason)
		return
	}
	m.broadcastRoundStatus()
}

func (m *Machine) broadcastRoundStatus() {
	msg := protocol.ServerMessage{
		Type:       protocol.TypeRoundStatus,
		Operations: m.round.DrainOperations(),
		World:      protocol.SnapshotWorld(m.world),
	}
	if id, faction, ok := m.round.ActiveUnit(); ok {
		msg.ActiveCharacter = &id
		msg.ActiveFaction = faction
	}
	m.broadcast(msg)
}

func (m *Machine) handlePause(connID string, p *participant, msg protocol.ClientMessage) {
	if m.phase != PhasePlay || p.spectator {
		m.disconnect(connID, "unexpected PauseRequest")
		return
	}
	if msg.Pause == m.paused {
		// Idempotent: a second pause (or unpause) is a no-op, never a
		// second timer.
		return
	}
	m.paused = msg.Pause
	m.pauseGen++
	m.broadcast(pauseMessage(m.paused))
	if !m.paused {
		return
	}

	gen := m.pauseGen
	limit := time.Duration(m.docs.Match.PauseLimitSeconds) * time.Second
	go func() {
		select {
		case <-time.After(limit):
			select {
			case m.inbox <- pauseExpired{gen: gen}:
			case <-m.ctx.Done():
			}
		case <-m.ctx.Done():
		}
	}()
}

// pauseMessage always carries the flag on the wire, resume included.
func pauseMessage(paused bool) protocol.ServerMessage {
	return protocol.ServerMessage{Type: protocol.TypeGamePause, Paused: &paused}
}

// applyVerdict performs the uniform guard recovery: retries go back to the
// sender as errors, protocol violations disconnect.
func (m *Machine) applyVerdict(connID string, v game.Verdict) bool {
	switch v.Kind {
	case game.VerdictAccept:
		return true
	case game.VerdictRetry:
		m.send(connID, protocol.ServerMessage{Type: protocol.TypeError, Error: v.Reason})
		return false
	default:
		m.disconnect(connID, v.Reason)
		return false
	}
}

func (m *Machine) disconnect(connID string, reason string) {
	m.send(connID, protocol.ServerMessage{Type: protocol.TypeError, Error: reason})
	metrics.Disconnects.Inc()
	m.removeParticipant(connID, reason)
}

// removeParticipant drops a connection. Losing a seated player mid-game
// forfeits the match; losing one in the lobby frees the seat.
func (m *Machine) removeParticipant(connID string, reason string) {
	p := m.parts[connID]
	if ch, ok := m.clients[connID]; ok {
		close(ch)
		delete(m.clients, connID)
	}
	delete(m.parts, connID)
	if p == nil {
		return
	}

	m.log.Info("participant removed",
		zap.String("session", m.id.String()),
		zap.String("name", p.name),
		zap.String("reason", reason))
	m.broadcast(protocol.ServerMessage{Type: protocol.TypeLeft, Left: p.name})

	if p.spectator {
		return
	}
	if m.phase == PhaseLobby {
		delete(m.seats, p.faction)
		return
	}
	if m.phase.running() {
		m.finishGame(p.faction.Opponent(), "opponent left the session")
	}
}

func (m *Machine) poolFailure(err error) {
	if errors.Is(err, pool.ErrInsufficientPool) {
		m.log.Error("selection pool exhausted; roster/configuration mismatch",
			zap.String("session", m.id.String()))
	} else {
		m.log.Error("draft failed", zap.Error(err))
	}
	m.finishGame(game.FactionNeutral, "internal error")
}

func (m *Machine) finishGame(winner game.Faction, reason string) {
	if m.finished {
		return
	}
	m.finished = true
	m.phase = PhaseClosed
	m.broadcast(protocol.ServerMessage{
		Type:   protocol.TypeGameResult,
		Winner: winner,
		Reason: reason,
	})

	rounds := 0
	if m.world != nil {
		rounds = m.world.Round
	}
	if m.onFinish != nil {
		m.onFinish(Result{SessionID: m.id, Winner: winner, Reason: reason, Rounds: rounds})
	}
	// Release all connection bindings. Closing the outboxes ends the
	// transport writers; cancel stops the loop, so transports watch Done
	// instead of sending into a dead inbox.
	for id, ch := range m.clients {
		close(ch)
		delete(m.clients, id)
	}
	m.cancel()
}

func (m *Machine) shutdown() {
	for id, ch := range m.clients {
		close(ch)
		delete(m.clients, id)
	}
	m.cancel()
}

func (m *Machine) playerInfos() []protocol.PlayerInfo {
	infos := make([]protocol.PlayerInfo, 0, len(game.PlayerFactions))
	for _, f := range game.PlayerFactions {
		if connID, ok := m.seats[f]; ok {
			infos = append(infos, protocol.PlayerInfo{Faction: f, Name: m.parts[connID].name})
		}
	}
	return infos
}

func (m *Machine) sendToFaction(f game.Faction, msg protocol.ServerMessage) {
	if connID, ok := m.seats[f]; ok {
		m.send(connID, msg)
	}
}

// send is fire-and-forget: an unreachable participant is logged, never
// retried, and never rolls back the mutation that produced the message.
func (m *Machine) send(connID string, msg protocol.ServerMessage) {
	ch, ok := m.clients[connID]
	if !ok {
		m.log.Warn("send to unbound connection",
			zap.String("session", m.id.String()),
			zap.String("conn", connID),
			zap.String("type", msg.Type))
		return
	}
	select {
	case ch <- msg:
	default:
		// Slow or stuck client; drop the connection, not the session.
		m.log.Warn("dropping slow client",
			zap.String("session", m.id.String()),
			zap.String("conn", connID))
		close(ch)
		delete(m.clients, connID)
	}
}

func (m *Machine) broadcast(msg protocol.ServerMessage) {
	for connID := range m.clients {
		m.send(connID, msg)
	}
}

func (m *Machine) view() View {
	seats := make(map[game.Faction]string, len(m.seats))
	for f, connID := range m.seats {
		seats[f] = connID
	}
	v := View{
		Phase:     m.phase,
		SessionID: m.id,
		Seats:     seats,
		Clients:   len(m.clients),
		Paused:    m.paused,
	}
	if m.world != nil {
		v.Round = m.world.Round
	}
	return v
}
