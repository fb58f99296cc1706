package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"groupchat/pkg/client"
	"groupchat/pkg/config"
	"groupchat/pkg/logger"
	"groupchat/pkg/models"
	"groupchat/pkg/sse"
)

// fallbackApology is what a persona says when its turn produced nothing.
// The product speaks Chinese.
const fallbackApology = "对不起，我还不够智能，服务又断开了。"

func apologyWith(msg string) string {
	return "对不起，我还不够智能，服务又断开了（错误：" + msg + "）"
}

// ErrBusy is returned when Send is called while a cycle is running.
var ErrBusy = errors.New("chat: a send cycle is already in progress")

// TurnRequest is the body of one persona turn against the chat endpoints.
// History excludes the user message being answered; the server splices it
// in at len(history)-Index.
type TurnRequest struct {
	Message      string             `json:"message"`
	History      []models.ChatEntry `json:"history"`
	Index        int                `json:"index"`
	AIName       string             `json:"aiName"`
	Personality  string             `json:"personality"`
	CustomPrompt string             `json:"customPrompt,omitempty"`
	Model        string             `json:"model"`
	UserName     string             `json:"userName"`
	Knowledge    string             `json:"knowledge,omitempty"`
	Members      []string           `json:"members,omitempty"`
}

// Orchestrator runs the reply cycle: pick speakers, stream each persona's
// turn into the session, keep the rolling history coherent.
type Orchestrator struct {
	session *Session
	http    *client.Client
	sched   Scheduler
	roster  *config.Roster
	group   models.Group

	userName    string
	turnDelay   time.Duration
	readTimeout time.Duration

	mu      sync.Mutex
	history []models.ChatEntry
	muted   map[string]bool
	sending bool

	// onCycleEnd, when set, receives a snapshot of the session after
	// every completed (or cancelled) cycle. The history bridge hangs
	// its sync off this.
	onCycleEnd func([]models.Message)
}

// Options bundles the orchestrator knobs.
type Options struct {
	UserName    string
	TurnDelay   time.Duration
	ReadTimeout time.Duration
	OnCycleEnd  func([]models.Message)
}

// NewOrchestrator wires an orchestrator for one group.
func NewOrchestrator(session *Session, httpc *client.Client, sched Scheduler, roster *config.Roster, group models.Group, opts Options) *Orchestrator {
	if opts.UserName == "" {
		opts.UserName = "我"
	}
	if opts.TurnDelay == 0 {
		opts.TurnDelay = time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = sse.DefaultReadTimeout
	}
	return &Orchestrator{
		session:     session,
		http:        httpc,
		sched:       sched,
		roster:      roster,
		group:       group,
		userName:    opts.UserName,
		turnDelay:   opts.TurnDelay,
		readTimeout: opts.ReadTimeout,
		muted:       make(map[string]bool),
		onCycleEnd:  opts.OnCycleEnd,
	}
}

// Mute stops a persona from speaking; it stays in the roster.
func (o *Orchestrator) Mute(personaID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.muted[personaID] = true
}

// Unmute lets a persona speak again.
func (o *Orchestrator) Unmute(personaID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.muted, personaID)
}

// Muted reports whether a persona is muted.
func (o *Orchestrator) Muted(personaID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted[personaID]
}

// SeedHistory replaces the rolling history from a stored transcript,
// used after hydrating the session.
func (o *Orchestrator) SeedHistory(msgs []models.StoredMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = o.history[:0]
	for _, m := range msgs {
		if m.IsAI {
			o.history = append(o.history, models.ChatEntry{
				Role: "assistant", Content: m.SenderName + "：" + m.Content, Name: m.SenderName,
			})
		} else {
			o.history = append(o.history, models.ChatEntry{
				Role: "user", Content: m.Content, Name: m.SenderName,
			})
		}
	}
	o.history = models.CapHistory(o.history)
}

// ResetHistory drops the rolling history, used when the transcript is
// cleared.
func (o *Orchestrator) ResetHistory() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
}

func (o *Orchestrator) rosterNames() []string {
	members := o.roster.Members(o.group)
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	return names
}

// Send appends the user message and runs the full reply cycle. It blocks
// until the cycle finishes; cancel ctx to stop it early. One cycle runs
// at a time.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	o.mu.Lock()
	if o.sending {
		o.mu.Unlock()
		return ErrBusy
	}
	o.sending = true
	// The per-turn request history excludes the message being answered;
	// the server splices it in.
	requestHist := models.CapHistory(append([]models.ChatEntry(nil), o.history...))
	o.history = models.CapHistory(append(o.history, models.ChatEntry{
		Role: "user", Content: text, Name: o.userName,
	}))
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.sending = false
		o.mu.Unlock()
		if o.onCycleEnd != nil {
			o.onCycleEnd(o.session.Messages())
		}
	}()

	o.session.Append(models.HumanSender(o.userName, ""), text, false)

	speakers := o.pickSpeakers(ctx, text, requestHist)
	names := o.rosterNames()

	appended := 0
	for i, p := range speakers {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := o.takeTurn(ctx, p, text, &requestHist, appended, names)
		if err != nil {
			return err
		}
		appended += n
		if i < len(speakers)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.turnDelay):
			}
		}
	}
	return nil
}

// pickSpeakers decides who replies and in what order. Discussion mode
// means everyone, roster order. Otherwise the scheduler chooses; if it
// fails, everyone replies rather than nobody.
func (o *Orchestrator) pickSpeakers(ctx context.Context, text string, hist []models.ChatEntry) []models.Persona {
	members := o.roster.Members(o.group)

	ordered := members
	if !o.group.IsGroupDiscussionMode && o.sched != nil {
		req := SchedulerRequest{Message: text, History: hist}
		for _, m := range members {
			req.Members = append(req.Members, SchedulerMember{ID: m.ID, Name: m.Name, Personality: m.Personality})
		}
		ids, err := o.sched.Pick(ctx, req)
		if err != nil {
			logger.Warn("scheduler_failed", "group", o.group.ID, "error", err)
		} else if ids != nil {
			picked := make([]models.Persona, 0, len(ids))
			for _, id := range ids {
				if p, ok := o.roster.Persona(id); ok {
					picked = append(picked, p)
				}
			}
			ordered = picked
		}
	}

	out := ordered[:0:0]
	for _, p := range ordered {
		if !o.Muted(p.ID) {
			out = append(out, p)
		}
	}
	return out
}

// composePrompt fills the persona's prompt template: the group-name
// placeholder is substituted and the group description appended.
func (o *Orchestrator) composePrompt(p models.Persona) string {
	custom := strings.ReplaceAll(p.CustomPrompt, "#groupName#", o.group.Name)
	if o.group.Description != "" {
		if custom != "" {
			custom += "\n"
		}
		custom += o.group.Description
	}
	return custom
}

// takeTurn streams one persona's reply into the session and reports how
// many entries it appended to the rolling history. A failed turn
// apologizes in place and the cycle moves on; an empty reply leaves no
// history entry, a hard failure leaves a failure note so later personas
// know the turn broke. Only cancellation aborts the cycle.
func (o *Orchestrator) takeTurn(ctx context.Context, p models.Persona, text string, requestHist *[]models.ChatEntry, index int, names []string) (appended int, err error) {
	id := o.session.Append(models.PersonaSender(p), "", true)

	path := "/api/chat"
	if p.UseRAG {
		path = "/api/rag-chat"
	}
	req := TurnRequest{
		Message:      text,
		History:      models.CapHistory(*requestHist),
		Index:        index,
		AIName:       p.Name,
		Personality:  p.Personality,
		CustomPrompt: o.composePrompt(p),
		Model:        p.Model,
		UserName:     o.userName,
		Knowledge:    p.Knowledge,
		Members:      names,
	}

	appendEntry := func(content string) {
		entry := models.ChatEntry{Role: "assistant", Content: p.Name + "：" + content, Name: p.Name}
		*requestHist = models.CapHistory(append(*requestHist, entry))
		o.mu.Lock()
		o.history = models.CapHistory(append(o.history, entry))
		o.mu.Unlock()
	}

	body, err := o.http.PostStream(ctx, path, req)
	if err != nil {
		if ctx.Err() != nil {
			o.session.Cancel(id)
			return 0, ctx.Err()
		}
		logger.Warn("turn_request_failed", "persona", p.ID, "error", err)
		o.session.Fail(id, apologyWith(err.Error()))
		appendEntry(apologyWith(err.Error()))
		return 1, nil
	}

	// re-strip the name prefix on every delta so a "悟空：" echo never
	// shows up mid-stream
	var streamed strings.Builder
	acc, decErr := sse.Decode(ctx, body, o.readTimeout, func(delta string) {
		streamed.WriteString(delta)
		o.session.SetContent(id, sse.StripNamePrefix(streamed.String(), names))
	})
	body.Close()

	if ctx.Err() != nil {
		o.session.Cancel(id)
		return 0, ctx.Err()
	}
	if decErr != nil && !errors.Is(decErr, sse.ErrStalled) {
		logger.Warn("turn_stream_failed", "persona", p.ID, "error", decErr)
		o.session.Fail(id, apologyWith(decErr.Error()))
		appendEntry(apologyWith(decErr.Error()))
		return 1, nil
	}
	if strings.TrimSpace(acc) == "" {
		// nothing arrived; a plain apology, not an error, and no
		// history entry
		logger.Warn("turn_empty_reply", "persona", p.ID)
		o.session.SetContent(id, fallbackApology)
		return 0, nil
	}

	final := sse.StripNamePrefix(acc, names)
	o.session.SetContent(id, final)
	appendEntry(final)
	logger.Info("turn_done", "persona", p.ID, "chars", len(final))
	return 1, nil
}
