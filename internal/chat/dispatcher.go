package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/pkg/money"
)

// SubscriptionStore is the subscription storage the bot works on. It is
// already scoped to the bot owner.
type SubscriptionStore interface {
	List(ctx context.Context) ([]*domain.Subscription, error)
	Create(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
}

// Extractor turns free text into a candidate subscription. It returns
// nil, nil when the text lacks a name or a price.
type Extractor interface {
	Extract(ctx context.Context, text string) (*domain.Subscription, error)
}

// RenewalChecker runs an on-demand reminder evaluation.
type RenewalChecker interface {
	CheckNow(ctx context.Context) (int, error)
}

// BackupRenderer renders the readable part of a backup.
type BackupRenderer interface {
	RenderBackup(backup domain.Backup) (string, error)
}

// Document is a file attached to a reply.
type Document struct {
	Filename string
	Data     []byte
	Caption  string
}

// Reply is everything sent back for one incoming message.
type Reply struct {
	Parts    []string
	Document *Document
}

// Outbound delivers replies to a chat session.
type Outbound interface {
	Send(ctx context.Context, sessionID string, reply Reply) error
}

// AbandonPolicy decides what happens to an unfinished conversation when a
// new guided command arrives.
type AbandonPolicy string

// Abandon policies.
const (
	AbandonSilently AbandonPolicy = "silent"
	AbandonNotify   AbandonPolicy = "notify"
)

// IsValid checks if the policy is known.
func (p AbandonPolicy) IsValid() bool {
	return p == AbandonSilently || p == AbandonNotify
}

// Config contains dispatcher configuration.
type Config struct {
	Location          *time.Location
	Currency          money.Currency
	AbandonPolicy     AbandonPolicy
	RenewalWindowDays int
}

// Option configures optional dispatcher collaborators.
type Option func(*Dispatcher)

// WithExtractor enables free-text registration.
func WithExtractor(e Extractor) Option {
	return func(d *Dispatcher) { d.extractor = e }
}

// WithRenewalChecker enables the check command.
func WithRenewalChecker(c RenewalChecker) Option {
	return func(d *Dispatcher) { d.checker = c }
}

// WithBackupRenderer enables the backup command.
func WithBackupRenderer(r BackupRenderer) Option {
	return func(d *Dispatcher) { d.backups = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher classifies incoming messages and produces exactly one reply
// per message.
type Dispatcher struct {
	config    Config
	store     SubscriptionStore
	states    StateStore
	out       Outbound
	locks     *SessionLocker
	tracker   *Tracker
	format    formatter
	extractor Extractor
	checker   RenewalChecker
	backups   BackupRenderer
	now       func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(config Config, store SubscriptionStore, states StateStore, out Outbound, opts ...Option) *Dispatcher {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Currency.Code == "" {
		config.Currency = money.New("BRL")
	}
	if !config.AbandonPolicy.IsValid() {
		config.AbandonPolicy = AbandonSilently
	}
	if config.RenewalWindowDays <= 0 {
		config.RenewalWindowDays = 30
	}

	f := formatter{loc: config.Location, currency: config.Currency}
	d := &Dispatcher{
		config: config,
		store:  store,
		states: states,
		out:    out,
		locks:  NewSessionLocker(),
		format: f,
		tracker: &Tracker{
			store:           store,
			format:          f,
			defaultCurrency: config.Currency.Symbol(),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle processes one incoming message for sessionID and sends the reply.
func (d *Dispatcher) Handle(ctx context.Context, sessionID, text string) error {
	unlock := d.locks.Lock(sessionID)
	defer unlock()

	reply := d.route(ctx, sessionID, strings.TrimSpace(text))

	if err := d.out.Send(ctx, sessionID, reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (d *Dispatcher) route(ctx context.Context, sessionID, text string) Reply {
	st, ok := d.states.Get(sessionID)

	if ok && st.PendingConfirmation {
		recordMessage("confirmation")
		return d.handleConfirmation(ctx, sessionID, st, text)
	}

	if ok && st.Active() {
		if isCancel(text) {
			recordMessage("cancel")
			d.states.Delete(sessionID)
			return text1(msgCancelled)
		}
		if cmd, isCmd := parseCommand(text); isCmd && (cmd.Name == cmdAdd || cmd.Name == cmdEdit) {
			recordMessage(cmd.Name)
			return d.restart(ctx, sessionID, cmd)
		}
		recordMessage("conversation")
		return d.apply(sessionID, d.tracker.advance(ctx, st, text))
	}

	if cmd, isCmd := parseCommand(text); isCmd {
		recordMessage(commandLabel(cmd.Name))
		return d.runCommand(ctx, sessionID, cmd)
	}

	if text == "" {
		recordMessage("empty")
		return text1(msgNonText)
	}
	if isCancel(text) {
		recordMessage("cancel")
		return text1(msgNothingToCancel)
	}

	recordMessage("extraction")
	return d.extract(ctx, sessionID, text)
}

// apply stores or clears the session state according to t.
func (d *Dispatcher) apply(sessionID string, t turn) Reply {
	if t.state == nil {
		d.states.Delete(sessionID)
	} else {
		d.states.Set(sessionID, t.state)
	}
	return Reply{Parts: t.parts}
}

// restart abandons the active conversation for a new guided command.
func (d *Dispatcher) restart(ctx context.Context, sessionID string, cmd command) Reply {
	slog.Debug("abandoning unfinished conversation", "session", sessionID, "command", cmd.Name)
	d.states.Delete(sessionID)

	reply := d.runCommand(ctx, sessionID, cmd)
	if d.config.AbandonPolicy == AbandonNotify {
		reply.Parts = append([]string{msgAbandoned}, reply.Parts...)
	}
	return reply
}

func (d *Dispatcher) handleConfirmation(ctx context.Context, sessionID string, st *ConversationState, text string) Reply {
	switch confirmationIntent(text) {
	case intentConfirm:
		saved, err := d.tracker.createCandidate(ctx, &st.Data)
		if err != nil {
			slog.Error("failed to create confirmed subscription", "session", sessionID, "error", err)
			return text1(saveFailedMessage(err))
		}
		d.states.Delete(sessionID)
		return text1(d.format.created(saved))

	case intentCancel:
		d.states.Delete(sessionID)
		return text1(msgCancelled)

	case intentEdit:
		return d.apply(sessionID, d.tracker.startReview(&st.Data))
	}

	return Reply{Parts: []string{d.format.candidate(&st.Data), msgConfirmPrompt}}
}

func (d *Dispatcher) runCommand(ctx context.Context, sessionID string, cmd command) Reply {
	switch cmd.Name {
	case cmdStart, cmdHelp:
		return text1(helpText)
	case cmdList:
		return d.list(ctx)
	case cmdSearch:
		return d.search(ctx, cmd.Args)
	case cmdEdit:
		return d.edit(ctx, sessionID, cmd.Args)
	case cmdAdd:
		return d.apply(sessionID, d.tracker.startAdd())
	case cmdCancel:
		return text1(msgNothingToCancel)
	case cmdRenewals:
		return d.renewals(ctx)
	case cmdCheck:
		return d.check(ctx)
	case cmdSummary:
		return d.summary(ctx)
	case cmdBackup:
		return d.backup(ctx)
	}
	return text1(fmt.Sprintf(msgUnrecognized, html.EscapeString(commandPrefix+cmd.Name)))
}

func (d *Dispatcher) loadSubscriptions(ctx context.Context) ([]*domain.Subscription, bool) {
	subs, err := d.store.List(ctx)
	if err != nil {
		slog.Error("failed to list subscriptions", "error", err)
		return nil, false
	}
	return subs, true
}

func (d *Dispatcher) list(ctx context.Context) Reply {
	subs, ok := d.loadSubscriptions(ctx)
	if !ok {
		return text1(msgStoreFailed)
	}
	if len(subs) == 0 {
		return text1(msgEmptyList)
	}
	sortForList(subs)
	return text1(d.format.list("Your subscriptions", subs, d.localNow()))
}

func (d *Dispatcher) search(ctx context.Context, term string) Reply {
	if term == "" {
		return text1(msgSearchUsage)
	}
	subs, ok := d.loadSubscriptions(ctx)
	if !ok {
		return text1(msgStoreFailed)
	}

	needle := strings.ToLower(term)
	var found []*domain.Subscription
	for _, s := range subs {
		if strings.Contains(strings.ToLower(s.Name), needle) ||
			strings.Contains(strings.ToLower(s.Description), needle) {
			found = append(found, s)
		}
	}
	if len(found) == 0 {
		return text1(fmt.Sprintf(msgNoSearchResults, html.EscapeString(term)))
	}
	sortForList(found)
	return text1(d.format.list("Results for \""+html.EscapeString(term)+"\"", found, d.localNow()))
}

func (d *Dispatcher) edit(ctx context.Context, sessionID, id string) Reply {
	if id == "" {
		return text1(msgEditUsage)
	}
	subs, ok := d.loadSubscriptions(ctx)
	if !ok {
		return text1(msgStoreFailed)
	}

	sub, err := findByID(subs, id)
	switch {
	case errors.Is(err, errAmbiguousID):
		return text1(fmt.Sprintf(msgAmbiguousID, html.EscapeString(id)))
	case err != nil:
		return text1(fmt.Sprintf(msgNotFound, html.EscapeString(id)))
	}
	return d.apply(sessionID, d.tracker.startEdit(sub))
}

func (d *Dispatcher) renewals(ctx context.Context) Reply {
	subs, ok := d.loadSubscriptions(ctx)
	if !ok {
		return text1(msgStoreFailed)
	}

	now := d.localNow()
	window := d.config.RenewalWindowDays
	var items []renewal
	for _, s := range subs {
		if !s.IsActive {
			continue
		}
		days := s.DaysUntilRenewal(now)
		if days >= 0 && days <= window {
			items = append(items, renewal{sub: s, days: days})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].days != items[j].days {
			return items[i].days < items[j].days
		}
		return strings.ToLower(items[i].sub.Name) < strings.ToLower(items[j].sub.Name)
	})
	return text1(d.format.renewals(items, window))
}

func (d *Dispatcher) check(ctx context.Context) Reply {
	if d.checker == nil {
		return text1(msgCheckDisabled)
	}
	sent, err := d.checker.CheckNow(ctx)
	if err != nil {
		slog.Error("on-demand renewal check failed", "error", err)
		return text1(msgCheckFailed)
	}
	return text1(fmt.Sprintf("Renewal check finished: %d reminder(s) sent.", sent))
}

func (d *Dispatcher) summary(ctx context.Context) Reply {
	subs, ok := d.loadSubscriptions(ctx)
	if !ok {
		return text1(msgStoreFailed)
	}
	return text1(d.format.summary(domain.Summarize(subs, d.localNow())))
}

func (d *Dispatcher) backup(ctx context.Context) Reply {
	if d.backups == nil {
		return text1(msgBackupDisabled)
	}
	subs, ok := d.loadSubscriptions(ctx)
	if !ok {
		return text1(msgStoreFailed)
	}

	reply, err := BuildBackup(subs, d.localNow(), d.backups)
	if err != nil {
		slog.Error("failed to build backup", "error", err)
		return text1(msgBackupFailed)
	}
	return reply
}

// BuildBackup produces the backup reply: a JSON document of all
// subscriptions plus a readable summary.
func BuildBackup(subs []*domain.Subscription, now time.Time, renderer BackupRenderer) (Reply, error) {
	backup := domain.NewBackup(subs, now)

	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return Reply{}, fmt.Errorf("encode backup: %w", err)
	}
	text, err := renderer.RenderBackup(backup)
	if err != nil {
		return Reply{}, fmt.Errorf("render backup summary: %w", err)
	}

	return Reply{
		Parts: []string{text},
		Document: &Document{
			Filename: BackupFilename(now),
			Data:     data,
			Caption:  "Subscription backup",
		},
	}, nil
}

func (d *Dispatcher) extract(ctx context.Context, sessionID, text string) Reply {
	if d.extractor == nil {
		return text1(msgExtractorDisabled)
	}

	candidate, err := d.extractor.Extract(ctx, text)
	if err != nil {
		slog.Warn("free-text extraction failed", "session", sessionID, "error", err)
		return text1(msgExtractorFailed)
	}
	if candidate == nil {
		return text1(msgNotUnderstood)
	}

	st := &ConversationState{
		Step:                StepIdle,
		Data:                *candidate,
		PendingConfirmation: true,
	}
	d.states.Set(sessionID, st)

	return Reply{Parts: []string{d.format.candidate(candidate), msgConfirmPrompt}}
}

func (d *Dispatcher) localNow() time.Time {
	return d.now().In(d.config.Location)
}

// BackupFilename names the backup document for the given time.
func BackupFilename(now time.Time) string {
	return "subtrack-backup-" + domain.DateKey(now) + ".json"
}

var (
	errIDNotFound  = errors.New("subscription not found")
	errAmbiguousID = errors.New("ambiguous id")
)

// findByID matches a full id or a unique prefix of at least four characters.
func findByID(subs []*domain.Subscription, id string) (*domain.Subscription, error) {
	id = strings.ToLower(id)
	var match *domain.Subscription
	for _, s := range subs {
		sid := strings.ToLower(s.ID)
		if sid == id {
			return s, nil
		}
		if len(id) >= 4 && strings.HasPrefix(sid, id) {
			if match != nil {
				return nil, errAmbiguousID
			}
			match = s
		}
	}
	if match == nil {
		return nil, errIDNotFound
	}
	return match, nil
}

// sortForList puts active subscriptions first, then orders by renewal date.
func sortForList(subs []*domain.Subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].IsActive != subs[j].IsActive {
			return subs[i].IsActive
		}
		return subs[i].RenewalDate.Before(subs[j].RenewalDate)
	})
}

func commandLabel(name string) string {
	switch name {
	case cmdStart, cmdHelp, cmdList, cmdSearch, cmdEdit, cmdAdd, cmdCancel,
		cmdRenewals, cmdCheck, cmdSummary, cmdBackup:
		return name
	}
	return "unknown_command"
}

func text1(s string) Reply {
	return Reply{Parts: []string{s}}
}
