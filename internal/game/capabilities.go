package game

import "context"

// Capabilities is the boundary-layer collaborator that states toggle on
// transition. The transport implements it by adding and removing tools and
// resources for one live session; tests substitute a recorder.
//
// Toggles are advisory: if the store persisted a transition but a toggle
// fails, the store wins and capabilities reconcile on the next Enter.
type Capabilities interface {
	SetStartEnabled(enabled bool)
	SetGuessEnabled(enabled bool)
	SetGiveUpEnabled(enabled bool)

	// SetGuessBounds narrows the advertised guess input constraints.
	SetGuessBounds(minGuess, maxGuess, attemptsLeft int)

	// SetGameStateVisible shows or hides the per-session game-state view.
	SetGameStateVisible(visible bool)

	NotifyGameState(ctx context.Context)
	NotifyHighScores(ctx context.Context)
}

// NopCapabilities discards every toggle. It backs contexts built outside a
// live transport session, where there is nothing to toggle.
type NopCapabilities struct{}

func (NopCapabilities) SetStartEnabled(bool)              {}
func (NopCapabilities) SetGuessEnabled(bool)              {}
func (NopCapabilities) SetGiveUpEnabled(bool)             {}
func (NopCapabilities) SetGuessBounds(int, int, int)      {}
func (NopCapabilities) SetGameStateVisible(bool)          {}
func (NopCapabilities) NotifyGameState(context.Context)   {}
func (NopCapabilities) NotifyHighScores(context.Context)  {}
