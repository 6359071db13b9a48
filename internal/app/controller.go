// Package app coordinates the four learner-facing views and mediates every
// call into the tutor gateway and the notebook store. All transient view
// state lives here; nothing outside the controller mutates it.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wortschatz/internal/chat"
	"github.com/fyrsmithlabs/wortschatz/internal/notebook"
	"github.com/fyrsmithlabs/wortschatz/internal/tutor"
)

// View identifies one of the four mutually exclusive screens.
type View string

const (
	ViewSearch    View = "search"
	ViewNotebook  View = "notebook"
	ViewChecker   View = "checker"
	ViewAssistant View = "assistant"
)

// notificationTTL is how long a transient notification stays visible.
const notificationTTL = 2500 * time.Millisecond

// suggestedTerms seed the empty search view.
var suggestedTerms = []string{
	"Haus", "Auto", "Lernen", "Sprache", "Essen", "Schule", "Arbeit", "Zeit",
}

var (
	// ErrBusy means the view already has a primary request in flight.
	ErrBusy = errors.New("request already in flight")
	// ErrUnknownView means the requested view selector is not one of the four.
	ErrUnknownView = errors.New("unknown view")
	// ErrNoResult means an operation needs a displayed lookup result and
	// there is none.
	ErrNoResult = errors.New("no lookup result displayed")
)

// Gateway is the slice of the tutor gateway the controller drives.
type Gateway interface {
	AnalyzeWord(ctx context.Context, term string) (tutor.WordEntry, error)
	CheckSentence(ctx context.Context, text string) (tutor.SentenceAnalysis, error)
	Converse(ctx context.Context, history []tutor.Turn, text string) (string, error)
	SynthesizeImage(ctx context.Context, prompt string) *tutor.Media
	SynthesizeSpeech(ctx context.Context, text string) *tutor.Media
}

// Store is the slice of the notebook store the controller drives.
type Store interface {
	Load() []notebook.SavedWord
	Get(id string) (notebook.SavedWord, bool)
	Add(entry tutor.WordEntry) (notebook.SavedWord, error)
	Remove(id string) error
}

// Level classifies a notification for display.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is the single transient message shown to the user. A new
// notification replaces the current one; none are queued.
type Notification struct {
	Text    string    `json:"text"`
	Level   Level     `json:"level"`
	ShownAt time.Time `json:"shown_at"`
}

// SearchState is the transient state of the search view.
type SearchState struct {
	Term   string           `json:"term"`
	Result *tutor.WordEntry `json:"result,omitempty"`
	Image  *tutor.Media     `json:"image,omitempty"`
	Busy   bool             `json:"busy"`
}

// CheckerState is the transient state of the sentence-checker view.
type CheckerState struct {
	Text     string                  `json:"text"`
	Analysis *tutor.SentenceAnalysis `json:"analysis,omitempty"`
	Busy     bool                    `json:"busy"`
}

// Snapshot is a point-in-time copy of all controller state.
type Snapshot struct {
	ActiveView   View           `json:"active_view"`
	Search       SearchState    `json:"search"`
	Checker      CheckerState   `json:"checker"`
	Chat         []chat.Message `json:"chat"`
	ChatBusy     bool           `json:"chat_busy"`
	Notification *Notification  `json:"notification,omitempty"`
}

// Controller owns the active view selector, the per-view transient state,
// and the conversation session. Each view has its own busy flag; the flags
// throttle the triggering control and are not a data-layer lock.
type Controller struct {
	mu      sync.Mutex
	gateway Gateway
	store   Store
	session *chat.Session
	logger  *zap.Logger

	activeView View
	search     SearchState
	checker    CheckerState
	chatBusy   bool

	// lookupSeq tags each lookup so a late image arrival for an abandoned
	// lookup is detected and discarded instead of overwriting the current
	// result's image.
	lookupSeq uint64

	notification *Notification

	background sync.WaitGroup
	now        func() time.Time
}

// NewController wires the views to their collaborators. The conversation
// session starts empty.
func NewController(gateway Gateway, store Store, logger *zap.Logger) (*Controller, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		gateway:    gateway,
		store:      store,
		session:    chat.NewSession(gateway, logger.Named("chat")),
		logger:     logger,
		activeView: ViewSearch,
		now:        time.Now,
	}, nil
}

// Close waits for in-flight background media requests to finish.
func (c *Controller) Close() {
	c.background.Wait()
}

// ActiveView returns the current view selector.
func (c *Controller) ActiveView() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeView
}

// SetView activates one of the four views. Switching away never clears the
// other views' transient state.
func (c *Controller) SetView(v View) error {
	switch v {
	case ViewSearch, ViewNotebook, ViewChecker, ViewAssistant:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownView, v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeView = v
	return nil
}

// State returns a copy of all transient state plus the live notification.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ActiveView:   c.activeView,
		Search:       c.search,
		Checker:      c.checker,
		Chat:         c.session.Messages(),
		ChatBusy:     c.chatBusy,
		Notification: c.liveNotification(),
	}
}

// Suggestions returns seed terms for an empty search view.
func (c *Controller) Suggestions() []string {
	out := make([]string, len(suggestedTerms))
	copy(out, suggestedTerms)
	return out
}

// Search clears any prior result, performs the lookup, and on success
// kicks off image synthesis in the background. The textual result returns
// immediately; the image may arrive later, or never.
func (c *Controller) Search(ctx context.Context, term string) (tutor.WordEntry, error) {
	term = strings.TrimSpace(term)

	c.mu.Lock()
	if c.search.Busy {
		c.mu.Unlock()
		return tutor.WordEntry{}, ErrBusy
	}
	c.lookupSeq++
	seq := c.lookupSeq
	c.search = SearchState{Term: term, Busy: true}
	c.mu.Unlock()

	entry, err := c.gateway.AnalyzeWord(ctx, term)

	c.mu.Lock()
	c.search.Busy = false
	if err != nil {
		c.notifyLocked("দুঃখিত, কোনো তথ্য পাওয়া যায়নি।", LevelError)
		c.mu.Unlock()
		return tutor.WordEntry{}, err
	}
	c.search.Result = &entry
	c.mu.Unlock()

	c.fetchImage(seq, entry.ImagePrompt)
	return entry, nil
}

// SearchState returns the current search view state, including any image
// that has arrived since the lookup completed.
func (c *Controller) SearchState() SearchState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.search
}

// fetchImage requests an illustration for the lookup tagged seq. The
// result is dropped if another lookup has started in the meantime.
func (c *Controller) fetchImage(seq uint64, prompt string) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		img := c.gateway.SynthesizeImage(context.Background(), prompt)
		if img == nil {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if seq != c.lookupSeq {
			c.logger.Debug("discarding stale image", zap.Uint64("lookup", seq))
			return
		}
		c.search.Image = img
	}()
}

// SaveCurrent promotes the displayed lookup result into the notebook.
// Duplicate words are rejected with a notification and no state change.
func (c *Controller) SaveCurrent() (notebook.SavedWord, error) {
	c.mu.Lock()
	if c.search.Result == nil {
		c.mu.Unlock()
		return notebook.SavedWord{}, ErrNoResult
	}
	entry := *c.search.Result
	c.mu.Unlock()

	saved, err := c.store.Add(entry)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if errors.Is(err, notebook.ErrDuplicateWord) {
			c.notifyLocked("এটি ইতিমধ্যে আপনার নোটবুকে আছে।", LevelInfo)
		} else {
			c.notifyLocked("শব্দটি সংরক্ষণ করা যায়নি।", LevelError)
		}
		return notebook.SavedWord{}, err
	}
	c.notifyLocked("নোটবুকে সেভ হয়েছে!", LevelInfo)
	return saved, nil
}

// SavedWords returns the notebook contents, most recent first.
func (c *Controller) SavedWords() []notebook.SavedWord {
	return c.store.Load()
}

// DeleteSaved removes a saved word. Deleting an unknown id is a no-op.
func (c *Controller) DeleteSaved(id string) error {
	err := c.store.Remove(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.notifyLocked("শব্দটি মুছে ফেলা যায়নি।", LevelError)
		return err
	}
	c.notifyLocked("নোটবুক থেকে মুছে ফেলা হয়েছে।", LevelInfo)
	return nil
}

// OpenSaved displays a saved word in the search view and activates that
// view. No remote call is made; the entry is shown without an image.
func (c *Controller) OpenSaved(id string) (notebook.SavedWord, error) {
	saved, ok := c.store.Get(id)
	if !ok {
		return notebook.SavedWord{}, fmt.Errorf("saved word %q not found", id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A pending image for an earlier lookup must not attach to this entry.
	c.lookupSeq++
	entry := saved.WordEntry
	c.search = SearchState{Term: saved.Word, Result: &entry}
	c.activeView = ViewSearch
	return saved, nil
}

// Check runs the sentence checker. An empty sentence is rejected before
// any remote call.
func (c *Controller) Check(ctx context.Context, text string) (tutor.SentenceAnalysis, error) {
	c.mu.Lock()
	if c.checker.Busy {
		c.mu.Unlock()
		return tutor.SentenceAnalysis{}, ErrBusy
	}
	// The prior analysis stays displayed until a new one arrives; a failed
	// check rolls back to it.
	c.checker.Text = text
	c.checker.Busy = true
	c.mu.Unlock()

	analysis, err := c.gateway.CheckSentence(ctx, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.checker.Busy = false
	if err != nil {
		c.notifyLocked("চেকিং সফল হয়নি।", LevelError)
		return tutor.SentenceAnalysis{}, err
	}
	c.checker.Analysis = &analysis
	return analysis, nil
}

// CheckerState returns the current sentence-checker view state.
func (c *Controller) CheckerState() CheckerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checker
}

// SendChat dispatches one conversation turn. A failed send leaves the
// user's message in the transcript and surfaces a notification.
func (c *Controller) SendChat(ctx context.Context, text string) (chat.Message, error) {
	c.mu.Lock()
	if c.chatBusy {
		c.mu.Unlock()
		return chat.Message{}, ErrBusy
	}
	c.chatBusy = true
	c.mu.Unlock()

	msg, err := c.session.Send(ctx, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatBusy = false
	if err != nil {
		c.notifyLocked("টিউটরের সাথে যোগাযোগ করা যাচ্ছে না।", LevelError)
		return chat.Message{}, err
	}
	return msg, nil
}

// ChatMessages returns the visible transcript.
func (c *Controller) ChatMessages() []chat.Message {
	return c.session.Messages()
}

// ResetChat discards the transcript and starts a fresh exchange.
func (c *Controller) ResetChat() {
	c.session.Reset()
	c.mu.Lock()
	c.notifyLocked("চ্যাট পরিষ্কার করা হয়েছে।", LevelInfo)
	c.mu.Unlock()
}

// Speak synthesizes pronunciation audio for a text. Absence of audio is
// not an error; callers do nothing when nil is returned.
func (c *Controller) Speak(ctx context.Context, text string) *tutor.Media {
	return c.gateway.SynthesizeSpeech(ctx, text)
}

// Notification returns the current notification, or false once it has
// expired or none was shown.
func (c *Controller) Notification() (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.liveNotification(); n != nil {
		return *n, true
	}
	return Notification{}, false
}

// liveNotification expires the slot lazily. Callers hold c.mu.
func (c *Controller) liveNotification() *Notification {
	if c.notification == nil {
		return nil
	}
	if c.now().Sub(c.notification.ShownAt) >= notificationTTL {
		c.notification = nil
		return nil
	}
	n := *c.notification
	return &n
}

// notifyLocked replaces the current notification. Callers hold c.mu.
func (c *Controller) notifyLocked(text string, level Level) {
	c.notification = &Notification{Text: text, Level: level, ShownAt: c.now()}
}
