package game

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/kdyeo/numguess/internal/platform/errors"
	"github.com/kdyeo/numguess/internal/storage"
	"github.com/kdyeo/numguess/internal/storage/memory"
)

// capsRecorder records capability toggles so tests can assert on them.
type capsRecorder struct {
	start, guess, giveUp, visible bool

	minGuess, maxGuess, attempts int

	gameStateNotices  int
	highScoreNotices  int
}

func (c *capsRecorder) SetStartEnabled(enabled bool)  { c.start = enabled }
func (c *capsRecorder) SetGuessEnabled(enabled bool)  { c.guess = enabled }
func (c *capsRecorder) SetGiveUpEnabled(enabled bool) { c.giveUp = enabled }
func (c *capsRecorder) SetGuessBounds(minGuess, maxGuess, attemptsLeft int) {
	c.minGuess, c.maxGuess, c.attempts = minGuess, maxGuess, attemptsLeft
}
func (c *capsRecorder) SetGameStateVisible(visible bool) { c.visible = visible }
func (c *capsRecorder) NotifyGameState(context.Context)  { c.gameStateNotices++ }
func (c *capsRecorder) NotifyHighScores(context.Context) { c.highScoreNotices++ }

// riggedRules returns the default rules with a fixed target number.
func riggedRules(target int) Rules {
	rules := DefaultRules()
	rules.Intn = func(n int) int { return target - rules.MinGuess }
	return rules
}

func newTestContext(t *testing.T, store storage.SessionStore, caps Capabilities, rules Rules) *Context {
	t.Helper()
	cx, err := NewContext(context.Background(), "user-1", store, caps, rules)
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	if err := cx.InitializeState(context.Background()); err != nil {
		t.Fatalf("initialize state: %v", err)
	}
	return cx
}

// assertSnapshotInvariant checks that a game snapshot exists iff the session
// is in the playing state, both in memory and in the store.
func assertSnapshotInvariant(t *testing.T, store *memory.Store, cx *Context) {
	t.Helper()
	record, ok := store.Session(cx.UserID())
	if !ok {
		t.Fatal("expected session record in store")
	}
	if record.StateName != string(cx.Variant()) {
		t.Fatalf("store state %q does not match context state %q", record.StateName, cx.Variant())
	}
	playing := cx.Variant() == VariantPlaying
	if playing != (record.CurrentGame != nil) {
		t.Fatalf("snapshot invariant violated: state=%s game=%v", record.StateName, record.CurrentGame)
	}
	if playing != (cx.Game() != nil) {
		t.Fatalf("cached snapshot invariant violated in state %s", cx.Variant())
	}
}

func TestStateForUnknown(t *testing.T) {
	_, err := StateFor("Zombie")
	if err == nil {
		t.Fatal("expected error for unknown state name")
	}
	if apperrors.CodeOf(err) != apperrors.CodeStateUnknown {
		t.Fatalf("expected STATE_UNKNOWN, got %s", apperrors.CodeOf(err))
	}
}

func TestNewContextRequiresUserID(t *testing.T) {
	_, err := NewContext(context.Background(), "  ", memory.New(), nil, DefaultRules())
	if err == nil {
		t.Fatal("expected error for empty user id")
	}
	if apperrors.CodeOf(err) != apperrors.CodeAuthenticationRequired {
		t.Fatalf("expected AUTHENTICATION_REQUIRED, got %s", apperrors.CodeOf(err))
	}
}

func TestNewContextFreshSessionStartsInLobby(t *testing.T) {
	store := memory.New()
	caps := &capsRecorder{}
	cx := newTestContext(t, store, caps, DefaultRules())

	if cx.Variant() != VariantLobby {
		t.Fatalf("expected Lobby, got %s", cx.Variant())
	}
	if cx.Game() != nil {
		t.Fatal("expected no game for fresh session")
	}
	if !caps.start {
		t.Fatal("expected start capability enabled in lobby")
	}
	if caps.guess || caps.giveUp || caps.visible {
		t.Fatal("expected guess/give-up capabilities disabled in lobby")
	}
	if cx.DisplayState() != nil {
		t.Fatal("expected nil display state in lobby")
	}
	assertSnapshotInvariant(t, store, cx)
}

func TestNewContextSurfacesUnknownPersistedState(t *testing.T) {
	store := memory.New()
	if _, err := store.GetOrCreateSession(context.Background(), "user-1"); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	bogus := "Zombie"
	if err := store.UpdateSession(context.Background(), "user-1", storage.SessionUpdate{StateName: &bogus}); err != nil {
		t.Fatalf("corrupt session: %v", err)
	}

	_, err := NewContext(context.Background(), "user-1", store, nil, DefaultRules())
	if err == nil {
		t.Fatal("expected error for unresolvable state")
	}
	if apperrors.CodeOf(err) != apperrors.CodeStateUnknown {
		t.Fatalf("expected STATE_UNKNOWN, got %s", apperrors.CodeOf(err))
	}
}

func TestStartGame(t *testing.T) {
	store := memory.New()
	caps := &capsRecorder{}
	cx := newTestContext(t, store, caps, riggedRules(57))

	result, err := cx.StartGame(context.Background(), "Ann")
	if err != nil {
		t.Fatalf("start game: %v", err)
	}
	if result.Message != "Welcome, Ann! Guess 1-100. 10 attempts." {
		t.Fatalf("unexpected welcome message: %q", result.Message)
	}
	if cx.Variant() != VariantPlaying {
		t.Fatalf("expected Playing, got %s", cx.Variant())
	}

	game := cx.Game()
	if game == nil {
		t.Fatal("expected game snapshot")
	}
	if game.TargetNumber < 1 || game.TargetNumber > 100 {
		t.Fatalf("target %d out of range", game.TargetNumber)
	}
	if game.AttemptsLeft != 10 {
		t.Fatalf("expected 10 attempts, got %d", game.AttemptsLeft)
	}
	if game.MinGuess != 1 || game.MaxGuess != 100 {
		t.Fatalf("expected bounds [1,100], got [%d,%d]", game.MinGuess, game.MaxGuess)
	}

	if caps.start {
		t.Fatal("expected start capability disabled after transition")
	}
	if !caps.guess || !caps.giveUp || !caps.visible {
		t.Fatal("expected playing capabilities enabled")
	}
	if caps.minGuess != 1 || caps.maxGuess != 100 || caps.attempts != 10 {
		t.Fatalf("expected advertised bounds [1,100] with 10 attempts, got [%d,%d] %d",
			caps.minGuess, caps.maxGuess, caps.attempts)
	}
	assertSnapshotInvariant(t, store, cx)
}

func TestStartGameRejectsBadNames(t *testing.T) {
	cases := []struct {
		name       string
		playerName string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"too long", strings.Repeat("x", 51)},
		{"too many multibyte characters", strings.Repeat("별", 51)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.New()
			cx := newTestContext(t, store, &capsRecorder{}, DefaultRules())

			result, err := cx.StartGame(context.Background(), tc.playerName)
			if err != nil {
				t.Fatalf("start game: %v", err)
			}
			if result.Message != msgBadPlayerName {
				t.Fatalf("expected rejection message, got %q", result.Message)
			}
			if cx.Variant() != VariantLobby {
				t.Fatalf("expected no transition, got %s", cx.Variant())
			}
			if cx.Game() != nil {
				t.Fatal("expected no game after rejected start")
			}
		})
	}
}

func TestStartGameAcceptsMultibyteName(t *testing.T) {
	store := memory.New()
	cx := newTestContext(t, store, &capsRecorder{}, DefaultRules())

	// 20 characters, 60 bytes; the bounds count characters.
	name := strings.Repeat("김", 20)
	result, err := cx.StartGame(context.Background(), name)
	if err != nil {
		t.Fatalf("start game: %v", err)
	}
	want := "Welcome, " + name + "! Guess 1-100. 10 attempts."
	if result.Message != want {
		t.Fatalf("expected %q, got %q", want, result.Message)
	}
	if cx.Variant() != VariantPlaying {
		t.Fatalf("expected Playing, got %s", cx.Variant())
	}
	if cx.Game() == nil || cx.Game().PlayerName != name {
		t.Fatal("expected the multibyte name on the active game")
	}
}

func TestStartGameWhilePlaying(t *testing.T) {
	store := memory.New()
	cx := newTestContext(t, store, &capsRecorder{}, riggedRules(57))

	if _, err := cx.StartGame(context.Background(), "Ann"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	result, err := cx.StartGame(context.Background(), "Ben")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if result.Message != msgAlreadyPlaying {
		t.Fatalf("expected already-playing rejection, got %q", result.Message)
	}
	if game := cx.Game(); game == nil || game.PlayerName != "Ann" {
		t.Fatal("expected original game untouched")
	}
}

func TestLobbyRejectsGuessAndGiveUp(t *testing.T) {
	store := memory.New()
	cx := newTestContext(t, store, &capsRecorder{}, DefaultRules())

	result, err := cx.MakeGuess(context.Background(), 50)
	if err != nil {
		t.Fatalf("guess: %v", err)
	}
	if result.Message != msgNoGameToGuess {
		t.Fatalf("expected no-game rejection, got %q", result.Message)
	}

	result, err = cx.GiveUp(context.Background())
	if err != nil {
		t.Fatalf("give up: %v", err)
	}
	if result.Message != msgNoGameToGiveUp {
		t.Fatalf("expected no-game rejection, got %q", result.Message)
	}
	assertSnapshotInvariant(t, store, cx)
}

func TestGuessNarrowsBounds(t *testing.T) {
	store := memory.New()
	caps := &capsRecorder{}
	cx := newTestContext(t, store, caps, riggedRules(57))

	if _, err := cx.StartGame(context.Background(), "Ann"); err != nil {
		t.Fatalf("start: %v", err)
	}

	result, err := cx.MakeGuess(context.Background(), 1)
	if err != nil {
		t.Fatalf("guess 1: %v", err)
	}
	if result.Message != "Too low! 9 attempts left." {
		t.Fatalf("unexpected message: %q", result.Message)
	}
	game := cx.Game()
	if game.MinGuess != 2 || game.MaxGuess != 100 {
		t.Fatalf("expected bounds [2,100], got [%d,%d]", game.MinGuess, game.MaxGuess)
	}
	if caps.minGuess != 2 || caps.maxGuess != 100 || caps.attempts != 9 {
		t.Fatalf("expected advertised bounds [2,100] with 9 attempts, got [%d,%d] %d",
			caps.minGuess, caps.maxGuess, caps.attempts)
	}

	result, err = cx.MakeGuess(context.Background(), 90)
	if err != nil {
		t.Fatalf("guess 90: %v", err)
	}
	if result.Message != "Too high! 8 attempts left." {
		t.Fatalf("unexpected message: %q", result.Message)
	}
	game = cx.Game()
	if game.MinGuess != 2 || game.MaxGuess != 89 {
		t.Fatalf("expected bounds [2,89], got [%d,%d]", game.MinGuess, game.MaxGuess)
	}

	// Bounds only ever narrow: a redundant low guess must not widen them.
	if _, err := cx.MakeGuess(context.Background(), 1); err != nil {
		t.Fatalf("guess 1 again: %v", err)
	}
	game = cx.Game()
	if game.MinGuess != 2 || game.MaxGuess != 89 {
		t.Fatalf("expected bounds to stay [2,89], got [%d,%d]", game.MinGuess, game.MaxGuess)
	}
	assertSnapshotInvariant(t, store, cx)
}

func TestWinningGuessRecordsHighScore(t *testing.T) {
	store := memory.New()
	caps := &capsRecorder{}
	cx := newTestContext(t, store, caps, riggedRules(57))

	if _, err := cx.StartGame(context.Background(), "Ann"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := cx.MakeGuess(context.Background(), 10); err != nil {
		t.Fatalf("guess 10: %v", err)
	}
	if _, err := cx.MakeGuess(context.Background(), 80); err != nil {
		t.Fatalf("guess 80: %v", err)
	}

	result, err := cx.MakeGuess(context.Background(), 57)
	if err != nil {
		t.Fatalf("winning guess: %v", err)
	}
	if result.Message != "Congrats, Ann! Guessed 57 in 3 attempts!" {
		t.Fatalf("unexpected win message: %q", result.Message)
	}
	if cx.Variant() != VariantLobby {
		t.Fatalf("expected return to Lobby, got %s", cx.Variant())
	}
	if cx.Game() != nil {
		t.Fatal("expected game cleared after win")
	}

	var found bool
	for _, score := range cx.HighScores() {
		if score.PlayerName == "Ann" && score.Attempts == 3 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected leaderboard entry {Ann 3}, got %+v", cx.HighScores())
	}
	if caps.highScoreNotices == 0 {
		t.Fatal("expected a high-score update notification")
	}
	assertSnapshotInvariant(t, store, cx)
}

func TestExhaustingAttemptsEndsGame(t *testing.T) {
	store := memory.New()
	cx := newTestContext(t, store, &capsRecorder{}, riggedRules(57))

	if _, err := cx.StartGame(context.Background(), "Ann"); err != nil {
		t.Fatalf("start: %v", err)
	}

	var last Result
	for i := 0; i < 10; i++ {
		var err error
		last, err = cx.MakeGuess(context.Background(), 1)
		if err != nil {
			t.Fatalf("guess %d: %v", i, err)
		}
	}
	if last.Message != "Game Over, Ann. Number was 57." {
		t.Fatalf("unexpected reveal message: %q", last.Message)
	}
	if cx.Variant() != VariantLobby {
		t.Fatalf("expected Lobby after exhaustion, got %s", cx.Variant())
	}
	if cx.Game() != nil {
		t.Fatal("expected game cleared after exhaustion")
	}
	assertSnapshotInvariant(t, store, cx)
}

func TestGiveUpRevealsTarget(t *testing.T) {
	store := memory.New()
	cx := newTestContext(t, store, &capsRecorder{}, riggedRules(57))

	if _, err := cx.StartGame(context.Background(), "Ann"); err != nil {
		t.Fatalf("start: %v", err)
	}
	result, err := cx.GiveUp(context.Background())
	if err != nil {
		t.Fatalf("give up: %v", err)
	}
	if result.Message != "Game over. Ann gave up. Number was 57." {
		t.Fatalf("unexpected message: %q", result.Message)
	}
	if cx.Variant() != VariantLobby {
		t.Fatalf("expected Lobby after give up, got %s", cx.Variant())
	}
	assertSnapshotInvariant(t, store, cx)
}

func TestSessionRoundTripResumesMidGame(t *testing.T) {
	store := memory.New()
	cx := newTestContext(t, store, &capsRecorder{}, riggedRules(57))

	if _, err := cx.StartGame(context.Background(), "Ann"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := cx.MakeGuess(context.Background(), 1); err != nil {
		t.Fatalf("guess: %v", err)
	}

	// A different replica rebuilds the context from the store alone.
	caps := &capsRecorder{}
	resumed := newTestContext(t, store, caps, riggedRules(57))

	if resumed.Variant() != VariantPlaying {
		t.Fatalf("expected resumed Playing, got %s", resumed.Variant())
	}
	game := resumed.Game()
	if game == nil {
		t.Fatal("expected resumed game snapshot")
	}
	if game.TargetNumber != 57 || game.AttemptsLeft != 9 || game.MinGuess != 2 {
		t.Fatalf("unexpected resumed snapshot %+v", game)
	}
	if !caps.guess || !caps.giveUp {
		t.Fatal("expected resumed session to re-enable playing capabilities")
	}
	if caps.minGuess != 2 || caps.maxGuess != 100 || caps.attempts != 9 {
		t.Fatalf("expected advertised bounds [2,100] with 9 attempts, got [%d,%d] %d",
			caps.minGuess, caps.maxGuess, caps.attempts)
	}

	view := resumed.DisplayState()
	if view == nil {
		t.Fatal("expected display state while playing")
	}
	if view.AttemptsLeft != 9 || view.MinGuess != 2 || view.MaxGuess != 100 {
		t.Fatalf("unexpected display state %+v", view)
	}
	if view.Message != "Too low! 9 attempts left." {
		t.Fatalf("unexpected display message %q", view.Message)
	}
}

func TestConcurrentWinnersBothRecorded(t *testing.T) {
	store := memory.New()

	play := func(userID string, target int, guesses []int) error {
		rules := riggedRules(target)
		cx, err := NewContext(context.Background(), userID, store, nil, rules)
		if err != nil {
			return err
		}
		if err := cx.InitializeState(context.Background()); err != nil {
			return err
		}
		if _, err := cx.StartGame(context.Background(), userID); err != nil {
			return err
		}
		for _, guess := range guesses {
			if _, err := cx.MakeGuess(context.Background(), guess); err != nil {
				return err
			}
		}
		return nil
	}

	done := make(chan error, 2)
	go func() { done <- play("ann", 57, []int{10, 57}) }()
	go func() { done <- play("ben", 31, []int{80, 50, 31}) }()
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("player %d: %v", i, err)
		}
	}

	scores, err := store.GetHighScores(context.Background())
	if err != nil {
		t.Fatalf("get high scores: %v", err)
	}
	var foundAnn, foundBen bool
	for i, score := range scores {
		if i > 0 && scores[i-1].Attempts > score.Attempts {
			t.Fatalf("leaderboard not ascending: %+v", scores)
		}
		if score.PlayerName == "ann" && score.Attempts == 2 {
			foundAnn = true
		}
		if score.PlayerName == "ben" && score.Attempts == 3 {
			foundBen = true
		}
	}
	if !foundAnn || !foundBen {
		t.Fatalf("expected both winners recorded, got %+v", scores)
	}
	if len(scores) > storage.MaxHighScores {
		t.Fatalf("leaderboard overlong: %d entries", len(scores))
	}
}

func TestStoreFailureSurfaces(t *testing.T) {
	store := memory.New()
	cx := newTestContext(t, store, &capsRecorder{}, riggedRules(57))

	store.FailWith = apperrors.New(apperrors.CodeStoreUnavailable, "store offline")
	_, err := cx.StartGame(context.Background(), "Ann")
	if err == nil {
		t.Fatal("expected store failure to propagate")
	}
	if !errors.Is(err, apperrors.New(apperrors.CodeStoreUnavailable, "")) {
		t.Fatalf("expected STORE_UNAVAILABLE, got %v", err)
	}
}

func TestFullScenario(t *testing.T) {
	store := memory.New()
	caps := &capsRecorder{}
	cx := newTestContext(t, store, caps, riggedRules(57))

	result, err := cx.StartGame(context.Background(), "Ann")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if result.Message != "Welcome, Ann! Guess 1-100. 10 attempts." {
		t.Fatalf("unexpected welcome: %q", result.Message)
	}
	if cx.Variant() != VariantPlaying {
		t.Fatalf("expected Playing, got %s", cx.Variant())
	}

	result, err = cx.MakeGuess(context.Background(), 1)
	if err != nil {
		t.Fatalf("guess 1: %v", err)
	}
	if result.Message != "Too low! 9 attempts left." {
		t.Fatalf("unexpected response: %q", result.Message)
	}
	game := cx.Game()
	if game.MinGuess != 2 || game.MaxGuess != 100 {
		t.Fatalf("expected bounds [2,100], got [%d,%d]", game.MinGuess, game.MaxGuess)
	}

	result, err = cx.MakeGuess(context.Background(), 57)
	if err != nil {
		t.Fatalf("winning guess: %v", err)
	}
	if result.Message != "Congrats, Ann! Guessed 57 in 2 attempts!" {
		t.Fatalf("unexpected win message: %q", result.Message)
	}
	if cx.Variant() != VariantLobby {
		t.Fatalf("expected Lobby, got %s", cx.Variant())
	}
	if cx.Game() != nil {
		t.Fatal("expected currentGame nil after win")
	}

	var found bool
	for _, score := range cx.HighScores() {
		if score.PlayerName == "Ann" && score.Attempts == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected {Ann 2} on leaderboard, got %+v", cx.HighScores())
	}
	assertSnapshotInvariant(t, store, cx)
}
