package session

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkempf/covert-duel-backend/internal/config"
	"github.com/mkempf/covert-duel-backend/internal/draft"
	"github.com/mkempf/covert-duel-backend/internal/game"
	"github.com/mkempf/covert-duel-backend/internal/protocol"
)

func testDocs(rosterSize int) config.Documents {
	docs := config.Documents{Match: game.DefaultMatchConfig()}
	docs.Scenario = game.ScenarioConfig{Width: 8, Height: 8}
	for i := 0; i < rosterSize; i++ {
		docs.Roster.Characters = append(docs.Roster.Characters, game.CharacterTemplate{
			Name: fmt.Sprintf("agent-%02d", i), HP: 100, AP: 2, Damage: 30,
		})
	}
	return docs
}

// wipeEngine validates everything and lets an attack eliminate the actor's
// whole opposing faction, so tests can force game over on demand.
type wipeEngine struct{}

func (wipeEngine) Validate(w *game.World, a game.Action, m game.MatchConfig) bool { return true }

func (wipeEngine) Execute(w *game.World, a game.Action, m game.MatchConfig) bool {
	if a.Kind != game.ActionAttack {
		return true
	}
	actor := w.Characters[a.CharacterID]
	for _, c := range w.Characters {
		if c.Faction == actor.Faction.Opponent() {
			c.HP = 0
		}
	}
	return true
}

func (wipeEngine) NPCAction(w *game.World, id uuid.UUID, rng *rand.Rand) game.Action {
	return game.Action{CharacterID: id, Kind: game.ActionRetire}
}

type testClient struct {
	connID string
	out    chan protocol.ServerMessage
}

// recv pulls the next message with a timeout so tests never hang.
func recv(t *testing.T, c *testClient) protocol.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-c.out:
		if !ok {
			t.Fatalf("%s: outbox closed unexpectedly", c.connID)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: timed out waiting for a message", c.connID)
		return protocol.ServerMessage{} // unreachable
	}
}

// waitFor skips messages until one of the wanted type arrives.
func waitFor(t *testing.T, c *testClient, msgType string) protocol.ServerMessage {
	t.Helper()
	for i := 0; i < 50; i++ {
		msg := recv(t, c)
		if msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("%s: never received %s", c.connID, msgType)
	return protocol.ServerMessage{}
}

func connect(t *testing.T, m *Machine, name, role string) *testClient {
	t.Helper()
	c := &testClient{connID: name, out: make(chan protocol.ServerMessage, 64)}
	m.Inbox() <- Join{ConnID: c.connID, Outbox: c.out}
	m.Inbox() <- FromClient{ConnID: c.connID, Msg: protocol.ClientMessage{
		Type: protocol.TypeHello, Name: name, Role: role,
	}}
	return c
}

func newMachine(t *testing.T, seed int64, onFinish func(Result)) *Machine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, testDocs(10), wipeEngine{}, rand.New(rand.NewSource(seed)), zap.NewNop(), onFinish)
}

type drafter struct {
	client *testClient
	chars  int
	total  int
	offer  *protocol.ServerMessage
}

func (d *drafter) choose(t *testing.T, m *Machine) {
	t.Helper()
	msg := protocol.ClientMessage{Type: protocol.TypeItemChoice}
	if d.chars < draft.CharacterCap && len(d.offer.Characters) > 0 {
		id := d.offer.Characters[0]
		msg.CharacterID = &id
		d.chars++
	} else {
		kind := d.offer.Gadgets[0]
		msg.GadgetKind = &kind
	}
	d.total++
	d.offer = nil
	m.Inbox() <- FromClient{ConnID: d.client.connID, Msg: msg}
}

// runDraft drives both players through the choice phase and returns once
// each has received its EquipmentChoiceOffer.
func runDraft(t *testing.T, m *Machine, p1, p2 *testClient) (eq1, eq2 protocol.ServerMessage) {
	t.Helper()
	d1 := &drafter{client: p1}
	d2 := &drafter{client: p2}

	first1 := waitFor(t, p1, protocol.TypeItemChoiceOffer)
	first2 := waitFor(t, p2, protocol.TypeItemChoiceOffer)
	d1.offer = &first1
	d2.offer = &first2

	for _, d := range []*drafter{d1, d2} {
		for d.total < draft.SelectionsPerPlayer {
			d.choose(t, m)
			if d.total < draft.SelectionsPerPlayer {
				next := waitFor(t, d.client, protocol.TypeItemChoiceOffer)
				d.offer = &next
			}
		}
	}

	eq1 = waitFor(t, p1, protocol.TypeEquipmentChoiceOffer)
	eq2 = waitFor(t, p2, protocol.TypeEquipmentChoiceOffer)
	return eq1, eq2
}

func submitEquipment(m *Machine, c *testClient, offer protocol.ServerMessage) {
	mapping := map[uuid.UUID][]game.GadgetKind{
		offer.Characters[0]: offer.Gadgets,
	}
	m.Inbox() <- FromClient{ConnID: c.connID, Msg: protocol.ClientMessage{
		Type: protocol.TypeEquipmentChoice, Equipment: mapping,
	}}
}

// End-to-end: two players join, draft 8 selections each under the 3+3 offer
// protocol, equip, play until one faction is eliminated, and both receive
// the result.
func TestFullSessionToGameResult(t *testing.T) {
	done := make(chan Result, 1)
	m := newMachine(t, 21, func(r Result) { done <- r })

	p1 := connect(t, m, "alice", protocol.RolePlayer)
	hello1 := waitFor(t, p1, protocol.TypeHelloReply)
	require.Equal(t, game.FactionPlayer1, hello1.Assigned)
	require.NotEmpty(t, hello1.SessionID)
	require.NotNil(t, hello1.Match)

	p2 := connect(t, m, "bob", protocol.RolePlayer)
	hello2 := waitFor(t, p2, protocol.TypeHelloReply)
	require.Equal(t, game.FactionPlayer2, hello2.Assigned)

	started := waitFor(t, p1, protocol.TypeGameStarted)
	require.Len(t, started.Players, 2)
	waitFor(t, p2, protocol.TypeGameStarted)

	eq1, eq2 := runDraft(t, m, p1, p2)
	require.Len(t, eq1.Characters, draft.CharacterCap)
	require.Len(t, eq2.Characters, draft.CharacterCap)

	submitEquipment(m, p1, eq1)
	submitEquipment(m, p2, eq2)

	// Play: player one attacks on their first active unit, player two
	// retires; the wipe engine then eliminates player two's faction.
	clients := map[game.Faction]*testClient{
		game.FactionPlayer1: p1,
		game.FactionPlayer2: p2,
	}
	var result protocol.ServerMessage
	for i := 0; ; i++ {
		require.Less(t, i, 100, "game never finished")
		msg := recv(t, p1)
		switch msg.Type {
		case protocol.TypeGameResult:
			result = msg
		case protocol.TypeRoundStatus:
			if msg.ActiveCharacter == nil {
				continue
			}
			kind := game.ActionRetire
			if msg.ActiveFaction == game.FactionPlayer1 {
				kind = game.ActionAttack
			}
			m.Inbox() <- FromClient{ConnID: clients[msg.ActiveFaction].connID, Msg: protocol.ClientMessage{
				Type:   protocol.TypeAction,
				Action: &game.Action{CharacterID: *msg.ActiveCharacter, Kind: kind},
			}}
		}
		if result.Type != "" {
			break
		}
	}
	require.Equal(t, game.FactionPlayer1, result.Winner)
	require.Equal(t, "opposing faction eliminated", result.Reason)

	// The other player gets the same result.
	res2 := waitFor(t, p2, protocol.TypeGameResult)
	require.Equal(t, game.FactionPlayer1, res2.Winner)

	select {
	case finished := <-done:
		require.Equal(t, game.FactionPlayer1, finished.Winner)
	case <-time.After(2 * time.Second):
		t.Fatal("finish callback never fired")
	}
}

// Access filtering: faction-scoped keys a requester is not entitled to are
// omitted from the reply entirely.
func TestMetaReplyOmitsForeignFactionData(t *testing.T) {
	m := newMachine(t, 5, nil)
	p1 := connect(t, m, "alice", protocol.RolePlayer)
	p2 := connect(t, m, "bob", protocol.RolePlayer)
	watcher := connect(t, m, "carol", protocol.RoleSpectator)
	eq1, _ := runDraft(t, m, p1, p2)

	m.Inbox() <- FromClient{ConnID: p1.connID, Msg: protocol.ClientMessage{
		Type: protocol.TypeMetaRequest,
		Keys: []string{KeyMatchConfig, KeyFactionPlayer1, KeyFactionPlayer2, KeyFactionNeutral},
	}}
	reply := waitFor(t, p1, protocol.TypeMetaReply)
	require.Contains(t, reply.Meta, KeyMatchConfig)
	require.Contains(t, reply.Meta, KeyFactionPlayer1)
	require.NotContains(t, reply.Meta, KeyFactionPlayer2, "foreign faction data must be omitted")
	require.NotContains(t, reply.Meta, KeyFactionNeutral, "neutral data is spectator-only")

	own := reply.Meta[KeyFactionPlayer1].([]uuid.UUID)
	require.ElementsMatch(t, eq1.Characters, own)

	// The spectator gets neutral data but neither player's.
	m.Inbox() <- FromClient{ConnID: watcher.connID, Msg: protocol.ClientMessage{
		Type: protocol.TypeMetaRequest,
		Keys: []string{KeyFactionNeutral, KeyFactionPlayer1},
	}}
	sReply := waitFor(t, watcher, protocol.TypeMetaReply)
	require.Contains(t, sReply.Meta, KeyFactionNeutral)
	require.NotContains(t, sReply.Meta, KeyFactionPlayer1)
	require.Len(t, sReply.Meta[KeyFactionNeutral].([]uuid.UUID), 10-2*draft.CharacterCap)
}

// Idempotent rejection: a duplicate equipment submission disconnects the
// offender and forfeits the match to the other player.
func TestDuplicateEquipmentSubmissionDisconnects(t *testing.T) {
	m := newMachine(t, 9, nil)
	p1 := connect(t, m, "alice", protocol.RolePlayer)
	p2 := connect(t, m, "bob", protocol.RolePlayer)
	eq1, _ := runDraft(t, m, p1, p2)

	submitEquipment(m, p1, eq1)
	submitEquipment(m, p1, eq1) // duplicate

	errMsg := waitFor(t, p1, protocol.TypeError)
	require.Contains(t, errMsg.Error, "already submitted")

	left := waitFor(t, p2, protocol.TypeLeft)
	require.Equal(t, "alice", left.Left)

	result := waitFor(t, p2, protocol.TypeGameResult)
	require.Equal(t, game.FactionPlayer2, result.Winner)
}

// A finished session stops draining its inbox, so Done must be signaled and
// transport-style sends (select on Done) must never block, even once the
// inbox buffer is full of post-game traffic.
func TestFinishedSessionUnblocksTransport(t *testing.T) {
	m := newMachine(t, 6, nil)
	p1 := connect(t, m, "alice", protocol.RolePlayer)
	p2 := connect(t, m, "bob", protocol.RolePlayer)
	waitFor(t, p1, protocol.TypeItemChoiceOffer)
	waitFor(t, p2, protocol.TypeItemChoiceOffer)

	m.Inbox() <- FromClient{ConnID: p1.connID, Msg: protocol.ClientMessage{Type: protocol.TypeLeave}}
	result := waitFor(t, p2, protocol.TypeGameResult)
	require.Equal(t, game.FactionPlayer2, result.Winner)

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session end never signaled")
	}

	// More sends than the inbox buffers: without the Done case these
	// would eventually block forever.
	for i := 0; i < 100; i++ {
		select {
		case m.Inbox() <- FromClient{ConnID: p2.connID, Msg: protocol.ClientMessage{Type: protocol.TypeMetaRequest}}:
		case <-m.Done():
		}
	}
}

func TestPauseIsIdempotentAndAutoResumes(t *testing.T) {
	docs := testDocs(10)
	docs.Match.PauseLimitSeconds = 1 // short deadline so the test sees the auto-resume

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m := New(ctx, docs, wipeEngine{}, rand.New(rand.NewSource(3)), zap.NewNop(), nil)

	p1 := connect(t, m, "alice", protocol.RolePlayer)
	p2 := connect(t, m, "bob", protocol.RolePlayer)
	eq1, eq2 := runDraft(t, m, p1, p2)
	submitEquipment(m, p1, eq1)
	submitEquipment(m, p2, eq2)
	waitFor(t, p1, protocol.TypeRoundStatus)

	pause := func(pause bool) {
		m.Inbox() <- FromClient{ConnID: p1.connID, Msg: protocol.ClientMessage{
			Type: protocol.TypePauseRequest, Pause: pause,
		}}
	}

	pause(true)
	paused := waitFor(t, p1, protocol.TypeGamePause)
	require.NotNil(t, paused.Paused)
	require.True(t, *paused.Paused)

	pause(true) // no-op, no second timer

	resumed := waitFor(t, p1, protocol.TypeGamePause)
	require.NotNil(t, resumed.Paused, "resume must carry an explicit paused flag")
	require.False(t, *resumed.Paused, "pause deadline should auto-resume")

	// Exactly one resume: the second pause must not have armed a timer.
	reply := make(chan View, 1)
	m.Inbox() <- GetView{Reply: reply}
	view := <-reply
	require.False(t, view.Paused)
	require.Equal(t, PhasePlay, view.Phase)
}

func TestActionOutsidePlayPhaseDisconnects(t *testing.T) {
	m := newMachine(t, 2, nil)
	p1 := connect(t, m, "alice", protocol.RolePlayer)
	p2 := connect(t, m, "bob", protocol.RolePlayer)
	waitFor(t, p1, protocol.TypeItemChoiceOffer)
	waitFor(t, p2, protocol.TypeItemChoiceOffer)

	id := uuid.New()
	m.Inbox() <- FromClient{ConnID: p1.connID, Msg: protocol.ClientMessage{
		Type:   protocol.TypeAction,
		Action: &game.Action{CharacterID: id, Kind: game.ActionRetire},
	}}

	waitFor(t, p1, protocol.TypeError)
	left := waitFor(t, p2, protocol.TypeLeft)
	require.Equal(t, "alice", left.Left)
}

func TestLobbySeatFreedWhenPlayerLeaves(t *testing.T) {
	m := newMachine(t, 4, nil)
	p1 := connect(t, m, "alice", protocol.RolePlayer)
	waitFor(t, p1, protocol.TypeHelloReply)

	m.Inbox() <- FromClient{ConnID: p1.connID, Msg: protocol.ClientMessage{Type: protocol.TypeLeave}}

	p2 := connect(t, m, "bob", protocol.RolePlayer)
	hello := waitFor(t, p2, protocol.TypeHelloReply)
	require.Equal(t, game.FactionPlayer1, hello.Assigned, "freed seat should be reassigned")

	reply := make(chan View, 1)
	m.Inbox() <- GetView{Reply: reply}
	view := <-reply
	require.Equal(t, PhaseLobby, view.Phase)
}
