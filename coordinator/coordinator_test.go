package coordinator

import (
	"context"
	"fmt"
	"github.com/lefinal/pairs-server/deck"
	"github.com/lefinal/pairs-server/errors"
	"github.com/lefinal/pairs-server/game"
	"github.com/lefinal/pairs-server/messages"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingNotifier records all notified messages per connection.
type recordingNotifier struct {
	mutex    sync.Mutex
	messages map[string][]messages.Outgoing
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		messages: make(map[string][]messages.Outgoing),
	}
}

func (n *recordingNotifier) Notify(connectionID string, message messages.Outgoing) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.messages[connectionID] = append(n.messages[connectionID], message)
}

// of returns all messages for the given connection.
func (n *recordingNotifier) of(connectionID string) []messages.Outgoing {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return append([]messages.Outgoing{}, n.messages[connectionID]...)
}

// types returns the message types for the given connection.
func (n *recordingNotifier) types(connectionID string) []messages.MessageType {
	all := n.of(connectionID)
	types := make([]messages.MessageType, 0, len(all))
	for _, m := range all {
		types = append(types, m.MessageType)
	}
	return types
}

// ofType returns all messages of the given type for the given connection.
func (n *recordingNotifier) ofType(connectionID string, messageType messages.MessageType) []messages.Outgoing {
	found := make([]messages.Outgoing, 0)
	for _, m := range n.of(connectionID) {
		if m.MessageType == messageType {
			found = append(found, m)
		}
	}
	return found
}

func (n *recordingNotifier) reset() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.messages = make(map[string][]messages.Outgoing)
}

// manualTask is a task scheduled with manualScheduler.
type manualTask struct {
	d         time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

// manualScheduler runs scheduled tasks only when fire is called.
type manualScheduler struct {
	mutex sync.Mutex
	tasks []*manualTask
}

func (s *manualScheduler) Schedule(d time.Duration, fn func()) func() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	task := &manualTask{d: d, fn: fn}
	s.tasks = append(s.tasks, task)
	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		task.cancelled = true
	}
}

// fire runs all pending tasks and returns how many ran.
func (s *manualScheduler) fire() int {
	s.mutex.Lock()
	pending := make([]*manualTask, 0)
	for _, task := range s.tasks {
		if !task.cancelled && !task.fired {
			task.fired = true
			pending = append(pending, task)
		}
	}
	s.mutex.Unlock()
	for _, task := range pending {
		task.fn()
	}
	return len(pending)
}

// pending returns the tasks that are neither cancelled nor fired.
func (s *manualScheduler) pending() []*manualTask {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	pending := make([]*manualTask, 0)
	for _, task := range s.tasks {
		if !task.cancelled && !task.fired {
			pending = append(pending, task)
		}
	}
	return pending
}

// last returns the last scheduled task.
func (s *manualScheduler) last() *manualTask {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.tasks) == 0 {
		return nil
	}
	return s.tasks[len(s.tasks)-1]
}

// CoordinatorSuite tests Coordinator with players a and b.
type CoordinatorSuite struct {
	suite.Suite
	notifier  *recordingNotifier
	scheduler *manualScheduler
	c         *Coordinator
	now       time.Time
	a         Caller
	b         Caller
}

func (suite *CoordinatorSuite) SetupTest() {
	suite.notifier = newRecordingNotifier()
	suite.scheduler = &manualScheduler{}
	suite.now = time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)
	suite.c = New(zap.New(zapcore.NewNopCore()), Config{
		Scheduler:     suite.scheduler,
		DeckGenerator: deck.NewGenerator(rand.NewSource(1)),
	}, suite.notifier)
	suite.c.now = func() time.Time { return suite.now }
	suite.c.pickFirst = func(_ int) int { return 0 }
	suite.a = Caller{PlayerID: "player-a", ConnectionID: "conn-a"}
	suite.b = Caller{PlayerID: "player-b", ConnectionID: "conn-b"}
}

// room returns the room with the given id. Only use it while no operations run
// concurrently.
func (suite *CoordinatorSuite) room(roomID string) *game.Room {
	h, ok := suite.c.registry.get(roomID)
	suite.Require().True(ok, "room should exist")
	return h.room
}

// readyRoom creates a room by a and lets b join.
func (suite *CoordinatorSuite) readyRoom(difficulty deck.Difficulty) string {
	roomID, err := suite.c.CreateRoom(suite.a, "Alice", messages.RoomSettings{Difficulty: string(difficulty)})
	suite.Require().NoError(err, "create room should not fail")
	suite.Require().NoError(suite.c.JoinRoom(suite.b, roomID, "Bob"), "join should not fail")
	return roomID
}

// startedRoom creates a started game with a holding the turn.
func (suite *CoordinatorSuite) startedRoom(difficulty deck.Difficulty) string {
	roomID := suite.readyRoom(difficulty)
	suite.Require().NoError(suite.c.StartGame(suite.a, roomID), "start should not fail")
	suite.Require().Equal(suite.a.PlayerID, suite.room(roomID).CurrentTurn)
	return roomID
}

// matchingPair returns the indices of two unmatched cards with the same value.
func (suite *CoordinatorSuite) matchingPair(roomID string) (int, int) {
	cards := suite.room(roomID).Deck
	for i := range cards {
		for j := i + 1; j < len(cards); j++ {
			if !cards[i].Matched && !cards[j].Matched && cards[i].Value == cards[j].Value {
				return i, j
			}
		}
	}
	suite.FailNow("no matching pair left")
	return 0, 0
}

// mismatchingPair returns the indices of two unmatched cards with different
// values.
func (suite *CoordinatorSuite) mismatchingPair(roomID string) (int, int) {
	cards := suite.room(roomID).Deck
	for i := range cards {
		for j := i + 1; j < len(cards); j++ {
			if !cards[i].Matched && !cards[j].Matched && cards[i].Value != cards[j].Value {
				return i, j
			}
		}
	}
	suite.FailNow("no mismatching pair left")
	return 0, 0
}

func (suite *CoordinatorSuite) requireKind(err error, kind errors.Kind) {
	suite.Require().Error(err)
	suite.Equal(kind, errors.KindOf(err), "unexpected error: %v", err)
}

func (suite *CoordinatorSuite) TestQueuePairsTwoPlayers() {
	suite.Require().NoError(suite.c.EnterQueue(suite.a, "Alice", messages.RoomSettings{Difficulty: "medium"}))
	suite.Require().NoError(suite.c.EnterQueue(suite.b, "Bob", messages.RoomSettings{Difficulty: "medium"}))
	pairedA := suite.notifier.ofType(suite.a.ConnectionID, messages.MessageTypeSessionPaired)
	pairedB := suite.notifier.ofType(suite.b.ConnectionID, messages.MessageTypeSessionPaired)
	suite.Require().Len(pairedA, 1, "a should be paired once")
	suite.Require().Len(pairedB, 1, "b should be paired once")
	roomID := pairedA[0].Content.(messages.MessageSessionPaired).RoomID
	suite.Equal(roomID, pairedB[0].Content.(messages.MessageSessionPaired).RoomID, "should be same room")
	suite.Equal(roomID, pairedA[0].RoomID)
	suite.Equal([]messages.MessageType{messages.MessageTypeQueueEntered, messages.MessageTypeSessionPaired},
		suite.notifier.types(suite.a.ConnectionID))
	r := suite.room(roomID)
	suite.Len(r.Deck, 16)
	suite.Equal(game.PhaseReady, r.Phase)
	suite.Len(r.Players, 2)
	suite.Zero(suite.c.Stats().Queued)
}

func (suite *CoordinatorSuite) TestQueueFirstQueuedSettles() {
	suite.Require().NoError(suite.c.EnterQueue(suite.a, "Alice", messages.RoomSettings{Difficulty: "easy", Theme: "food"}))
	suite.Require().NoError(suite.c.EnterQueue(suite.b, "Bob", messages.RoomSettings{Difficulty: "hard", Theme: "emoji"}))
	paired := suite.notifier.ofType(suite.b.ConnectionID, messages.MessageTypeSessionPaired)
	suite.Require().Len(paired, 1)
	r := suite.room(paired[0].RoomID)
	suite.Equal(deck.DifficultyEasy, r.Difficulty)
	suite.Equal("food", r.Theme)
	suite.Len(r.Deck, 12)
}

func (suite *CoordinatorSuite) TestQueueDuplicateEnterKeepsPosition() {
	suite.Require().NoError(suite.c.EnterQueue(suite.a, "Alice", messages.RoomSettings{}))
	suite.Require().NoError(suite.c.EnterQueue(suite.a, "Alice", messages.RoomSettings{Difficulty: "hard"}))
	suite.Equal(1, suite.c.Stats().Queued)
	suite.Len(suite.notifier.ofType(suite.a.ConnectionID, messages.MessageTypeQueueEntered), 1)
	suite.Empty(suite.notifier.ofType(suite.a.ConnectionID, messages.MessageTypeSessionPaired), "should not pair with itself")
}

func (suite *CoordinatorSuite) TestCancelQueueWhenNotQueued() {
	suite.NotPanics(func() {
		suite.c.CancelQueue(suite.a)
	})
	suite.Zero(suite.c.Stats().Queued)
	suite.Empty(suite.notifier.of(suite.a.ConnectionID))
}

func (suite *CoordinatorSuite) TestCancelQueue() {
	suite.Require().NoError(suite.c.EnterQueue(suite.a, "Alice", messages.RoomSettings{}))
	suite.c.CancelQueue(suite.a)
	suite.Require().NoError(suite.c.EnterQueue(suite.b, "Bob", messages.RoomSettings{}))
	suite.Empty(suite.notifier.ofType(suite.b.ConnectionID, messages.MessageTypeSessionPaired))
	suite.Equal(1, suite.c.Stats().Queued)
}

func (suite *CoordinatorSuite) TestEnterQueueWhileInRoom() {
	_, err := suite.c.CreateRoom(suite.a, "Alice", messages.RoomSettings{})
	suite.Require().NoError(err)
	suite.requireKind(suite.c.EnterQueue(suite.a, "Alice", messages.RoomSettings{}), errors.KindPlayerAlreadyInRoom)
	suite.Zero(suite.c.Stats().Queued)
}

func (suite *CoordinatorSuite) TestEnterQueueWithUnknownTheme() {
	suite.requireKind(suite.c.EnterQueue(suite.a, "Alice", messages.RoomSettings{Theme: "cars"}), errors.KindValidation)
}

func (suite *CoordinatorSuite) TestCreateRoomRemovesQueueEntry() {
	suite.Require().NoError(suite.c.EnterQueue(suite.a, "Alice", messages.RoomSettings{}))
	_, err := suite.c.CreateRoom(suite.a, "Alice", messages.RoomSettings{})
	suite.Require().NoError(err)
	suite.Zero(suite.c.Stats().Queued)
}

func (suite *CoordinatorSuite) TestCreateAndJoin() {
	roomID, err := suite.c.CreateRoom(suite.a, "Alice", messages.RoomSettings{Difficulty: "easy", Theme: "emoji"})
	suite.Require().NoError(err)
	suite.Len(roomID, roomIDLength)
	created := suite.notifier.ofType(suite.a.ConnectionID, messages.MessageTypeRoomCreated)
	suite.Require().Len(created, 1)
	suite.Equal(roomID, created[0].Content.(messages.MessageRoomCreated).RoomID)
	suite.Equal([]messages.RoomSummary{{RoomID: roomID, PlayerCount: 1, Difficulty: deck.DifficultyEasy, Theme: "emoji"}},
		suite.c.ListRooms())
	suite.Require().NoError(suite.c.JoinRoom(suite.b, roomID, "Bob"))
	for _, conn := range []string{suite.a.ConnectionID, suite.b.ConnectionID} {
		joined := suite.notifier.ofType(conn, messages.MessageTypePlayerJoined)
		suite.Require().Len(joined, 1)
		suite.Len(joined[0].Content.(messages.MessagePlayerJoined).Players, 2)
	}
	r := suite.room(roomID)
	suite.Equal(game.PhaseReady, r.Phase)
	suite.Len(r.Deck, 12)
	suite.Empty(suite.c.ListRooms(), "ready rooms should not be listed")
}

func (suite *CoordinatorSuite) TestJoinLowercaseRoomID() {
	roomID, err := suite.c.CreateRoom(suite.a, "Alice", messages.RoomSettings{})
	suite.Require().NoError(err)
	suite.NoError(suite.c.JoinRoom(suite.b, fmt.Sprintf(" %s ", strings.ToLower(roomID)), "Bob"))
}

func (suite *CoordinatorSuite) TestJoinUnknownRoom() {
	suite.requireKind(suite.c.JoinRoom(suite.b, "NOPE00", "Bob"), errors.KindRoomNotFound)
}

func (suite *CoordinatorSuite) TestJoinFullRoom() {
	roomID := suite.readyRoom(deck.DifficultyEasy)
	c := Caller{PlayerID: "player-c", ConnectionID: "conn-c"}
	suite.requireKind(suite.c.JoinRoom(c, roomID, "Carol"), errors.KindRoomFull)
	suite.Len(suite.room(roomID).Players, 2)
	_, inRoom := suite.c.directory.lookup(c.PlayerID)
	suite.False(inRoom, "should not claim player")
}

func (suite *CoordinatorSuite) TestJoinSecondRoom() {
	roomID, err := suite.c.CreateRoom(suite.a, "Alice", messages.RoomSettings{})
	suite.Require().NoError(err)
	otherID, err := suite.c.CreateRoom(suite.b, "Bob", messages.RoomSettings{})
	suite.Require().NoError(err)
	suite.requireKind(suite.c.JoinRoom(suite.a, otherID, "Alice"), errors.KindPlayerAlreadyInRoom)
	suite.requireKind(suite.c.JoinRoom(suite.a, roomID, "Alice"), errors.KindPlayerAlreadyInRoom)
}

func (suite *CoordinatorSuite) TestStartGame() {
	roomID := suite.readyRoom(deck.DifficultyMedium)
	suite.notifier.reset()
	suite.Require().NoError(suite.c.StartGame(suite.b, roomID))
	suite.Equal([]messages.MessageType{messages.MessageTypeGameStarted, messages.MessageTypeYourTurn},
		suite.notifier.types(suite.a.ConnectionID))
	suite.Equal([]messages.MessageType{messages.MessageTypeGameStarted, messages.MessageTypeWaitTurn},
		suite.notifier.types(suite.b.ConnectionID))
	started := suite.notifier.ofType(suite.b.ConnectionID, messages.MessageTypeGameStarted)[0].Content.(messages.MessageGameStarted)
	suite.Len(started.Deck, 16)
	suite.Equal(suite.a.PlayerID, started.CurrentPlayer)
	suite.requireKind(suite.c.StartGame(suite.a, roomID), errors.KindPhaseViolation)
}

func (suite *CoordinatorSuite) TestStartBeforeReady() {
	roomID, err := suite.c.CreateRoom(suite.a, "Alice", messages.RoomSettings{})
	suite.Require().NoError(err)
	suite.requireKind(suite.c.StartGame(suite.a, roomID), errors.KindPhaseViolation)
}

func (suite *CoordinatorSuite) TestStartByStranger() {
	roomID := suite.readyRoom(deck.DifficultyEasy)
	stranger := Caller{PlayerID: "player-c", ConnectionID: "conn-c"}
	suite.requireKind(suite.c.StartGame(stranger, roomID), errors.KindPlayerNotInRoom)
}

func (suite *CoordinatorSuite) TestFlipByNonHolderHasNoEffect() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	before := suite.room(roomID).State()
	suite.notifier.reset()
	suite.requireKind(suite.c.FlipCard(suite.b, roomID, 0, ""), errors.KindNotYourTurn)
	suite.Equal(before, suite.room(roomID).State())
	suite.Empty(suite.notifier.of(suite.a.ConnectionID))
	suite.Empty(suite.notifier.of(suite.b.ConnectionID))
}

func (suite *CoordinatorSuite) TestFlipWithForeignPlayerID() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	before := suite.room(roomID).State()
	suite.requireKind(suite.c.FlipCard(suite.a, roomID, 0, suite.b.PlayerID), errors.KindNotYourTurn)
	suite.Equal(before, suite.room(roomID).State())
}

func (suite *CoordinatorSuite) TestFlipOutOfRange() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	suite.requireKind(suite.c.FlipCard(suite.a, roomID, 12, ""), errors.KindInvalidCard)
}

func (suite *CoordinatorSuite) TestMatchKeepsTurn() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	i, j := suite.matchingPair(roomID)
	suite.notifier.reset()
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, i, suite.a.PlayerID))
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, j, ""))
	r := suite.room(roomID)
	suite.True(r.Deck[i].Matched)
	suite.True(r.Deck[j].Matched)
	p, _ := r.Player(suite.a.PlayerID)
	suite.Equal(10, p.Score)
	suite.Equal(suite.a.PlayerID, r.CurrentTurn)
	suite.Equal(game.PhaseAwaitingFlip, r.Phase)
	suite.Equal([]messages.MessageType{
		messages.MessageTypeCardFlipped,
		messages.MessageTypeCardFlipped,
		messages.MessageTypePairMatched,
		messages.MessageTypeScoreUpdated,
		messages.MessageTypeYourTurn,
	}, suite.notifier.types(suite.a.ConnectionID))
	suite.Equal([]messages.MessageType{
		messages.MessageTypeCardFlipped,
		messages.MessageTypeCardFlipped,
		messages.MessageTypePairMatched,
		messages.MessageTypeScoreUpdated,
	}, suite.notifier.types(suite.b.ConnectionID))
	matched := suite.notifier.ofType(suite.b.ConnectionID, messages.MessageTypePairMatched)[0].Content.(messages.MessagePairMatched)
	suite.Equal(messages.MessagePairMatched{Value: r.Deck[i].Value, PlayerID: suite.a.PlayerID, Score: 10}, matched)
	suite.Empty(suite.scheduler.pending(), "should not schedule flip-back")
}

func (suite *CoordinatorSuite) TestMismatchFlipsBackAfterDelay() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	i, j := suite.mismatchingPair(roomID)
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, i, ""))
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, j, ""))
	suite.Require().Len(suite.scheduler.pending(), 1)
	suite.Equal(deck.DifficultyEasy.FlipDelay(), suite.scheduler.last().d)
	r := suite.room(roomID)
	suite.Equal(game.PhaseEvaluating, r.Phase)
	// No flips while evaluating.
	k, _ := suite.matchingPair(roomID)
	suite.requireKind(suite.c.FlipCard(suite.a, roomID, k, ""), errors.KindInvalidCard)
	suite.notifier.reset()
	suite.Equal(1, suite.scheduler.fire())
	suite.False(r.Deck[i].Flipped)
	suite.False(r.Deck[j].Flipped)
	suite.Equal(suite.b.PlayerID, r.CurrentTurn)
	suite.Equal(game.PhaseAwaitingFlip, r.Phase)
	suite.Equal([]messages.MessageType{
		messages.MessageTypeNoMatch,
		messages.MessageTypeTurnChanged,
		messages.MessageTypeYourTurn,
	}, suite.notifier.types(suite.b.ConnectionID))
	suite.Equal([]messages.MessageType{
		messages.MessageTypeNoMatch,
		messages.MessageTypeTurnChanged,
		messages.MessageTypeWaitTurn,
	}, suite.notifier.types(suite.a.ConnectionID))
	noMatch := suite.notifier.ofType(suite.a.ConnectionID, messages.MessageTypeNoMatch)[0].Content.(messages.MessageNoMatch)
	suite.Equal(messages.MessageNoMatch{FirstCardIndex: i, SecondCardIndex: j, PlayerID: suite.a.PlayerID}, noMatch)
}

func (suite *CoordinatorSuite) TestEndTurnResolvesEarly() {
	roomID := suite.startedRoom(deck.DifficultyHard)
	i, j := suite.mismatchingPair(roomID)
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, i, ""))
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, j, ""))
	task := suite.scheduler.last()
	suite.requireKind(suite.c.EndTurn(suite.b, roomID, i, j), errors.KindNotYourTurn)
	suite.Require().NoError(suite.c.EndTurn(suite.a, roomID, j, i))
	suite.Equal(suite.b.PlayerID, suite.room(roomID).CurrentTurn)
	suite.True(task.cancelled, "should cancel flip-back")
	suite.notifier.reset()
	// A callback that already started must not have any effect.
	task.fn()
	suite.Empty(suite.notifier.of(suite.a.ConnectionID))
	suite.Equal(suite.b.PlayerID, suite.room(roomID).CurrentTurn)
}

func (suite *CoordinatorSuite) TestEndTurnWithOtherCards() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	i, j := suite.mismatchingPair(roomID)
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, i, ""))
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, j, ""))
	suite.requireKind(suite.c.EndTurn(suite.a, roomID, i, j+1), errors.KindInvalidCard)
	suite.Equal(game.PhaseEvaluating, suite.room(roomID).Phase)
}

func (suite *CoordinatorSuite) TestEndTurnWithoutPendingPair() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	suite.requireKind(suite.c.EndTurn(suite.a, roomID, 0, 1), errors.KindPhaseViolation)
}

func (suite *CoordinatorSuite) TestContinueTurn() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	suite.notifier.reset()
	suite.Require().NoError(suite.c.ContinueTurn(suite.a, roomID))
	suite.Equal([]messages.MessageType{messages.MessageTypeYourTurn}, suite.notifier.types(suite.a.ConnectionID))
	suite.requireKind(suite.c.ContinueTurn(suite.b, roomID), errors.KindNotYourTurn)
}

func (suite *CoordinatorSuite) TestContinueTurnWhileMismatchPending() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	i, j := suite.mismatchingPair(roomID)
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, i, ""))
	suite.notifier.reset()
	suite.requireKind(suite.c.ContinueTurn(suite.a, roomID), errors.KindPhaseViolation)
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, j, ""))
	suite.Require().Equal(game.PhaseEvaluating, suite.room(roomID).Phase)
	suite.notifier.reset()
	suite.requireKind(suite.c.ContinueTurn(suite.a, roomID), errors.KindPhaseViolation)
	suite.requireKind(suite.c.ContinueTurn(suite.b, roomID), errors.KindPhaseViolation)
	suite.Empty(suite.notifier.ofType(suite.a.ConnectionID, messages.MessageTypeYourTurn))
	suite.Empty(suite.notifier.ofType(suite.b.ConnectionID, messages.MessageTypeYourTurn))
}

func (suite *CoordinatorSuite) TestCompleteGame() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	for suite.room(roomID).Phase != game.PhaseFinished {
		i, j := suite.matchingPair(roomID)
		suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, i, ""))
		suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, j, ""))
	}
	r := suite.room(roomID)
	suite.Len(r.MatchedValues, deck.DifficultyEasy.Pairs())
	over := suite.notifier.ofType(suite.b.ConnectionID, messages.MessageTypeGameOver)
	suite.Require().Len(over, 1)
	content := over[0].Content.(messages.MessageGameOver)
	suite.Equal(game.FinishCompleted, content.Reason)
	suite.Equal(suite.a.PlayerID, content.Winner)
	suite.False(content.Tie)
	select {
	case outcome := <-suite.c.Results():
		suite.Equal(roomID, outcome.RoomID)
		suite.Equal(suite.now, outcome.FinishedAt)
		winner, ok := outcome.Winner()
		suite.Require().True(ok)
		suite.Equal(60, winner.Score)
	default:
		suite.Fail("should publish outcome")
	}
}

func (suite *CoordinatorSuite) TestLeaveRunningGameForfeits() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	suite.notifier.reset()
	suite.Require().NoError(suite.c.LeaveRoom(suite.a, roomID))
	r := suite.room(roomID)
	suite.Equal(game.PhaseFinished, r.Phase)
	p, _ := r.Player(suite.b.PlayerID)
	suite.Equal(game.ForfeitBonus, p.Score)
	suite.True(p.Winner)
	suite.Equal([]messages.MessageType{messages.MessageTypePlayerLeft, messages.MessageTypeGameOver},
		suite.notifier.types(suite.b.ConnectionID))
	left := suite.notifier.ofType(suite.b.ConnectionID, messages.MessageTypePlayerLeft)[0].Content.(messages.MessagePlayerLeft)
	suite.True(left.WinnerByDefault)
	suite.Equal(suite.a.PlayerID, left.PlayerID)
	over := suite.notifier.ofType(suite.b.ConnectionID, messages.MessageTypeGameOver)[0].Content.(messages.MessageGameOver)
	suite.Equal(game.FinishForfeit, over.Reason)
	suite.Equal(suite.b.PlayerID, over.Winner)
	suite.Len(suite.notifier.ofType(suite.a.ConnectionID, messages.MessageTypePlayerLeft), 1, "departing player should be notified")
	outcome := <-suite.c.Results()
	suite.Equal(game.FinishForfeit, outcome.Reason)
	suite.Len(outcome.Players, 2)
	// A is free again.
	_, inRoom := suite.c.directory.lookup(suite.a.PlayerID)
	suite.False(inRoom)
}

func (suite *CoordinatorSuite) TestLeaveCancelsFlipBack() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	i, j := suite.mismatchingPair(roomID)
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, i, ""))
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, j, ""))
	task := suite.scheduler.last()
	suite.Require().NoError(suite.c.LeaveRoom(suite.b, roomID))
	suite.True(task.cancelled)
	suite.Zero(suite.scheduler.fire())
	suite.Equal(game.PhaseFinished, suite.room(roomID).Phase)
}

func (suite *CoordinatorSuite) TestLeaveReadyRoom() {
	roomID := suite.readyRoom(deck.DifficultyEasy)
	suite.Require().NoError(suite.c.LeaveRoom(suite.b, roomID))
	r := suite.room(roomID)
	suite.Equal(game.PhaseWaitingPlayers, r.Phase)
	suite.Nil(r.Deck)
	suite.Len(suite.c.ListRooms(), 1)
}

func (suite *CoordinatorSuite) TestLeaveLastPlayerDeletesRoom() {
	roomID, err := suite.c.CreateRoom(suite.a, "Alice", messages.RoomSettings{})
	suite.Require().NoError(err)
	suite.Require().NoError(suite.c.LeaveRoom(suite.a, roomID))
	suite.Zero(suite.c.Stats().Rooms)
	suite.requireKind(suite.c.JoinRoom(suite.b, roomID, "Bob"), errors.KindRoomNotFound)
}

func (suite *CoordinatorSuite) TestLeaveForeignRoom() {
	roomID, err := suite.c.CreateRoom(suite.a, "Alice", messages.RoomSettings{})
	suite.Require().NoError(err)
	suite.requireKind(suite.c.LeaveRoom(suite.b, roomID), errors.KindPlayerNotInRoom)
}

func (suite *CoordinatorSuite) TestEnterQueueAfterFinishedGame() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	suite.Require().NoError(suite.c.LeaveRoom(suite.a, roomID))
	suite.Require().NoError(suite.c.EnterQueue(suite.b, "Bob", messages.RoomSettings{}))
	suite.Equal(1, suite.c.Stats().Queued)
	suite.Zero(suite.c.Stats().Rooms, "finished room should be deleted after last player left")
}

func (suite *CoordinatorSuite) TestDisconnectForfeits() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	suite.c.Disconnect(suite.a)
	r := suite.room(roomID)
	suite.Equal(game.PhaseFinished, r.Phase)
	p, _ := r.Player(suite.b.PlayerID)
	suite.Equal(game.ForfeitBonus, p.Score)
	suite.Len(suite.notifier.ofType(suite.b.ConnectionID, messages.MessageTypeGameOver), 1)
}

func (suite *CoordinatorSuite) TestDisconnectRemovesQueueEntry() {
	suite.Require().NoError(suite.c.EnterQueue(suite.a, "Alice", messages.RoomSettings{}))
	suite.c.Disconnect(suite.a)
	suite.Zero(suite.c.Stats().Queued)
}

// leaveWhilePairing sets a pairing policy that runs leave for player a in
// another goroutine and makes sure that it waits for pairing to finish.
func (suite *CoordinatorSuite) leaveWhilePairing(leave func()) <-chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	suite.c.config.PairingPolicy = func(first QueueEntry, second QueueEntry) (deck.Difficulty, string) {
		once.Do(func() {
			go func() {
				defer close(done)
				leave()
			}()
			select {
			case <-done:
				suite.Fail("leaving should wait for pairing")
			case <-time.After(50 * time.Millisecond):
			}
		})
		return FirstQueuedSettlesPolicy(first, second)
	}
	return done
}

func (suite *CoordinatorSuite) waitLeft(done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		suite.FailNow("timeout", "leaving should complete after pairing")
	}
}

func (suite *CoordinatorSuite) TestDisconnectDuringPairing() {
	done := suite.leaveWhilePairing(func() { suite.c.Disconnect(suite.a) })
	suite.Require().NoError(suite.c.EnterQueue(suite.a, "Alice", messages.RoomSettings{}))
	suite.Require().NoError(suite.c.EnterQueue(suite.b, "Bob", messages.RoomSettings{}))
	suite.waitLeft(done)

	_, ok := suite.c.directory.lookup(suite.a.PlayerID)
	suite.False(ok, "disconnected player should not be seated")
	roomID, ok := suite.c.directory.lookup(suite.b.PlayerID)
	suite.Require().True(ok)
	r := suite.room(roomID)
	suite.Equal(game.PhaseWaitingPlayers, r.Phase)
	suite.Require().Len(r.Players, 1)
	suite.Equal(suite.b.PlayerID, r.Players[0].ID)
	suite.Empty(r.Deck)
	suite.Len(suite.notifier.ofType(suite.b.ConnectionID, messages.MessageTypePlayerLeft), 1)
	suite.Zero(suite.c.Stats().Queued)
}

func (suite *CoordinatorSuite) TestCancelQueueDuringPairing() {
	done := suite.leaveWhilePairing(func() { suite.c.CancelQueue(suite.a) })
	suite.Require().NoError(suite.c.EnterQueue(suite.a, "Alice", messages.RoomSettings{}))
	suite.Require().NoError(suite.c.EnterQueue(suite.b, "Bob", messages.RoomSettings{}))
	suite.waitLeft(done)

	// Cancelling after being taken from the queue is too late.
	roomA, ok := suite.c.directory.lookup(suite.a.PlayerID)
	suite.Require().True(ok)
	roomB, ok := suite.c.directory.lookup(suite.b.PlayerID)
	suite.Require().True(ok)
	suite.Equal(roomA, roomB)
	suite.Equal(game.PhaseReady, suite.room(roomA).Phase)
	suite.Zero(suite.c.Stats().Queued)
}

func (suite *CoordinatorSuite) TestReconnect() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	// The new connection got a fresh identity on connect.
	newConn := Caller{PlayerID: "player-fresh", ConnectionID: "conn-a2"}
	suite.Require().NoError(suite.c.Reconnect(newConn, roomID, suite.a.PlayerID))
	suite.Equal([]messages.MessageType{messages.MessageTypeReconnected, messages.MessageTypeYourTurn},
		suite.notifier.types(newConn.ConnectionID))
	state := suite.notifier.ofType(newConn.ConnectionID, messages.MessageTypeReconnected)[0].Content.(messages.MessageReconnected).State
	suite.Equal(suite.a.PlayerID, state.CurrentPlayer)
	suite.Len(state.Deck, 12)
	// Disconnect of the old connection is ignored.
	suite.c.Disconnect(suite.a)
	suite.Equal(game.PhaseAwaitingFlip, suite.room(roomID).Phase)
	// The old connection may not act anymore.
	suite.requireKind(suite.c.FlipCard(suite.a, roomID, 0, ""), errors.KindPlayerNotInRoom)
	rebound := Caller{PlayerID: suite.a.PlayerID, ConnectionID: newConn.ConnectionID}
	suite.Require().NoError(suite.c.FlipCard(rebound, roomID, 0, ""))
	suite.Len(suite.notifier.ofType(newConn.ConnectionID, messages.MessageTypeCardFlipped), 1)
	suite.Empty(suite.notifier.ofType(suite.a.ConnectionID, messages.MessageTypeCardFlipped))
}

func (suite *CoordinatorSuite) TestReconnectWaitTurn() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	newConn := Caller{PlayerID: "player-fresh", ConnectionID: "conn-b2"}
	suite.Require().NoError(suite.c.Reconnect(newConn, roomID, suite.b.PlayerID))
	suite.Equal([]messages.MessageType{messages.MessageTypeReconnected, messages.MessageTypeWaitTurn},
		suite.notifier.types(newConn.ConnectionID))
}

func (suite *CoordinatorSuite) TestReconnectErrors() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	newConn := Caller{PlayerID: "player-fresh", ConnectionID: "conn-x"}
	suite.requireKind(suite.c.Reconnect(newConn, "NOPE00", suite.a.PlayerID), errors.KindRoomNotFound)
	suite.requireKind(suite.c.Reconnect(newConn, roomID, "player-unknown"), errors.KindPlayerNotInRoom)
}

func (suite *CoordinatorSuite) TestSweepExpired() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	suite.now = suite.now.Add(30 * time.Minute)
	freshID, err := suite.c.CreateRoom(Caller{PlayerID: "player-c", ConnectionID: "conn-c"}, "Carol", messages.RoomSettings{})
	suite.Require().NoError(err)
	suite.Zero(suite.c.SweepExpired(), "should keep rooms younger than ttl")
	suite.now = suite.now.Add(31 * time.Minute)
	suite.Equal(1, suite.c.SweepExpired())
	suite.Len(suite.notifier.ofType(suite.a.ConnectionID, messages.MessageTypeRoomExpired), 1)
	suite.Len(suite.notifier.ofType(suite.b.ConnectionID, messages.MessageTypeRoomExpired), 1)
	_, ok := suite.c.registry.get(roomID)
	suite.False(ok, "should delete expired room")
	_, ok = suite.c.registry.get(freshID)
	suite.True(ok, "should keep fresh room")
	suite.requireKind(suite.c.FlipCard(suite.a, roomID, 0, ""), errors.KindRoomNotFound)
	// Members are free again.
	_, err = suite.c.CreateRoom(suite.a, "Alice", messages.RoomSettings{})
	suite.NoError(err)
}

func (suite *CoordinatorSuite) TestSequenceNumbersIncrease() {
	roomID := suite.startedRoom(deck.DifficultyEasy)
	i, j := suite.mismatchingPair(roomID)
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, i, ""))
	suite.Require().NoError(suite.c.FlipCard(suite.a, roomID, j, ""))
	suite.scheduler.fire()
	var last uint64
	for _, m := range suite.notifier.of(suite.b.ConnectionID) {
		suite.Equal(roomID, m.RoomID)
		suite.Greater(m.Seq, last, "sequence numbers should increase")
		last = m.Seq
	}
}

func (suite *CoordinatorSuite) TestStats() {
	suite.startedRoom(deck.DifficultyEasy)
	_, err := suite.c.CreateRoom(Caller{PlayerID: "player-c", ConnectionID: "conn-c"}, "Carol", messages.RoomSettings{})
	suite.Require().NoError(err)
	suite.Require().NoError(suite.c.EnterQueue(Caller{PlayerID: "player-d", ConnectionID: "conn-d"}, "Dave", messages.RoomSettings{}))
	stats := suite.c.Stats()
	suite.Equal(2, stats.Rooms)
	suite.Equal(3, stats.PlayersInRoom)
	suite.Equal(1, stats.Queued)
	suite.Equal(1, stats.RoomsByPhase[game.PhaseAwaitingFlip])
	suite.Equal(1, stats.RoomsByPhase[game.PhaseWaitingPlayers])
}

func (suite *CoordinatorSuite) TestConcurrentQueue() {
	const players = 50
	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := Caller{PlayerID: fmt.Sprintf("p%d", i), ConnectionID: fmt.Sprintf("c%d", i)}
			suite.NoError(suite.c.EnterQueue(caller, "Player", messages.RoomSettings{}))
		}(i)
	}
	wg.Wait()
	rooms := make(map[string]int)
	for i := 0; i < players; i++ {
		paired := suite.notifier.ofType(fmt.Sprintf("c%d", i), messages.MessageTypeSessionPaired)
		suite.Len(paired, 1, "each player should be paired exactly once")
		if len(paired) == 1 {
			rooms[paired[0].RoomID]++
		}
	}
	suite.Len(rooms, players/2)
	for roomID, count := range rooms {
		suite.Equalf(2, count, "room %s should have two players", roomID)
	}
	suite.Zero(suite.c.Stats().Queued)
}

func (suite *CoordinatorSuite) TestRunStopsWithContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	suite.NoError(suite.c.Run(ctx))
}

func TestCoordinator(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func TestRegistryRegeneratesCollidingIDs(t *testing.T) {
	reg := newRegistry()
	ids := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	reg.newRoomID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	first := reg.insert(&roomHandle{room: game.NewRoom("", deck.DifficultyEasy, "food", time.Now())})
	second := reg.insert(&roomHandle{room: game.NewRoom("", deck.DifficultyEasy, "food", time.Now())})
	if first != "AAAAAA" || second != "BBBBBB" {
		t.Errorf("got ids %s and %s", first, second)
	}
}

func TestGenRoomID(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := genRoomID()
		if len(id) != roomIDLength || id != normalizeRoomID(id) {
			t.Fatalf("invalid room id %q", id)
		}
	}
}
