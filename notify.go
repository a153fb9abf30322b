package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"
)

// ============================================================================
// Notifier
// ============================================================================

// Signal is one control activation: a user pressed one of the controls
// attached to a posted message.
type Signal struct {
	User    snowflake.ID
	Control string
}

// MessageRef identifies a posted message.
type MessageRef struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
}

// Notifier is the channel the duel subsystem talks through. The production
// implementation posts Discord messages and models controls as reactions;
// tests swap in a scripted fake.
type Notifier interface {
	Post(content string) (MessageRef, error)
	Edit(ref MessageRef, content string) error
	AddControl(ref MessageRef, control string) error
	ClearControls(ref MessageRef, controls ...string) error

	// Await blocks until one of the listed users activates one of the
	// listed controls on the message, or the timeout passes. The first
	// matching signal wins; later ones are dropped.
	Await(ref MessageRef, controls []string, users []snowflake.ID, timeout time.Duration) (Signal, bool)
}

// --- Signal routing ---

type signalWaiter struct {
	messageID snowflake.ID
	controls  map[string]struct{}
	users     map[snowflake.ID]struct{}
	ch        chan Signal
}

// signalRouter fans incoming reaction events out to whichever stage is
// currently waiting on them. Waiters are keyed by message so concurrent
// stages in different channels never see each other's signals.
type signalRouter struct {
	mu      sync.Mutex
	waiters map[snowflake.ID][]*signalWaiter
}

func newSignalRouter() *signalRouter {
	return &signalRouter{waiters: make(map[snowflake.ID][]*signalWaiter)}
}

func (r *signalRouter) register(messageID snowflake.ID, controls []string, users []snowflake.ID) *signalWaiter {
	w := &signalWaiter{
		messageID: messageID,
		controls:  make(map[string]struct{}, len(controls)),
		users:     make(map[snowflake.ID]struct{}, len(users)),
		ch:        make(chan Signal, 1),
	}
	for _, c := range controls {
		w.controls[c] = struct{}{}
	}
	for _, u := range users {
		w.users[u] = struct{}{}
	}

	r.mu.Lock()
	r.waiters[messageID] = append(r.waiters[messageID], w)
	r.mu.Unlock()
	return w
}

func (r *signalRouter) unregister(w *signalWaiter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.waiters[w.messageID]
	for i, candidate := range list {
		if candidate == w {
			r.waiters[w.messageID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.waiters[w.messageID]) == 0 {
		delete(r.waiters, w.messageID)
	}
}

// Dispatch delivers a signal to every matching waiter. A waiter's buffer
// holds a single signal, so the first arriving activation wins any race and
// extra activations fall on the floor.
func (r *signalRouter) Dispatch(messageID snowflake.ID, sig Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.waiters[messageID] {
		if _, ok := w.users[sig.User]; !ok {
			continue
		}
		if _, ok := w.controls[sig.Control]; !ok {
			continue
		}
		select {
		case w.ch <- sig:
		default:
		}
	}
}

// duelRouter receives every guild reaction event once the client is up.
var duelRouter = newSignalRouter()

func init() {
	RegisterReactionHandler(func(event *events.MessageReactionAdd) {
		var emojiStr string
		if event.Emoji.ID != nil {
			name := ""
			if event.Emoji.Name != nil {
				name = *event.Emoji.Name
			}
			emojiStr = fmt.Sprintf("%s:%s", name, event.Emoji.ID.String())
		} else if event.Emoji.Name != nil {
			emojiStr = *event.Emoji.Name
		}
		if emojiStr == "" {
			return
		}
		duelRouter.Dispatch(event.MessageID, Signal{User: event.UserID, Control: emojiStr})
	})
}

// --- Discord implementation ---

// DiscordNotifier posts into a single channel via the REST client. Posting is
// throttled so a burst of duel traffic cannot trip Discord's rate limits.
type DiscordNotifier struct {
	client    bot.Client
	channelID snowflake.ID
	router    *signalRouter
	limiter   *rate.Limiter
}

func NewDiscordNotifier(client bot.Client, channelID snowflake.ID) *DiscordNotifier {
	return &DiscordNotifier{
		client:    client,
		channelID: channelID,
		router:    duelRouter,
		limiter:   rate.NewLimiter(rate.Limit(1), 5),
	}
}

func (n *DiscordNotifier) ctx() context.Context {
	if AppContext != nil {
		return AppContext
	}
	return context.Background()
}

func (n *DiscordNotifier) Post(content string) (MessageRef, error) {
	if err := n.limiter.Wait(n.ctx()); err != nil {
		return MessageRef{}, err
	}
	msg, err := n.client.Rest.CreateMessage(n.channelID, discord.NewMessageCreateBuilder().
		SetContent(content).
		Build())
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChannelID: n.channelID, MessageID: msg.ID}, nil
}

func (n *DiscordNotifier) Edit(ref MessageRef, content string) error {
	_, err := n.client.Rest.UpdateMessage(ref.ChannelID, ref.MessageID, discord.NewMessageUpdateBuilder().
		SetContent(content).
		Build())
	return err
}

func (n *DiscordNotifier) AddControl(ref MessageRef, control string) error {
	return n.client.Rest.AddReaction(ref.ChannelID, ref.MessageID, control)
}

func (n *DiscordNotifier) ClearControls(ref MessageRef, controls ...string) error {
	var firstErr error
	for _, control := range controls {
		if err := n.client.Rest.RemoveOwnReaction(ref.ChannelID, ref.MessageID, control); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *DiscordNotifier) Await(ref MessageRef, controls []string, users []snowflake.ID, timeout time.Duration) (Signal, bool) {
	w := n.router.register(ref.MessageID, controls, users)
	defer n.router.unregister(w)

	select {
	case sig := <-w.ch:
		return sig, true
	case <-time.After(timeout):
		return Signal{}, false
	}
}
