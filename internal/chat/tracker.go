package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/subtrack/subtrack/internal/domain"
)

// Tracker advances the guided add/edit flow one message at a time.
type Tracker struct {
	store           SubscriptionStore
	format          formatter
	defaultCurrency string
}

// turn is the outcome of one tracker step. A nil state means the
// conversation ended and the session entry must be removed.
type turn struct {
	state *ConversationState
	parts []string
}

// startAdd begins a create flow.
func (t *Tracker) startAdd() turn {
	st := &ConversationState{Step: StepName}
	return turn{state: st, parts: []string{t.format.prompt(StepName, st)}}
}

// startEdit begins an edit flow for an existing subscription.
func (t *Tracker) startEdit(sub *domain.Subscription) turn {
	original := *sub
	st := &ConversationState{
		Step:      StepName,
		Data:      original,
		EditingID: sub.ID,
		Original:  &original,
	}
	return turn{state: st, parts: []string{t.format.prompt(StepName, st)}}
}

// startReview begins a guided flow pre-filled with an extracted candidate.
// The result is created, not updated.
func (t *Tracker) startReview(candidate *domain.Subscription) turn {
	original := *candidate
	st := &ConversationState{
		Step:     StepName,
		Data:     original,
		Original: &original,
	}
	return turn{state: st, parts: []string{t.format.prompt(StepName, st)}}
}

func (t *Tracker) keep(st *ConversationState, text string) bool {
	return st.Editing() && matches(keepWords, text)
}

// advance applies text to the current step.
func (t *Tracker) advance(ctx context.Context, st *ConversationState, text string) turn {
	text = strings.TrimSpace(text)
	next := *st

	switch st.Step {
	case StepName:
		if !t.keep(st, text) {
			if text == "" {
				return t.reprompt(st, msgEmptyName)
			}
			next.Data.Name = text
		}
		return t.moveTo(&next, StepPrice)

	case StepPrice:
		if !t.keep(st, text) {
			price, err := domain.ParsePrice(text)
			if err != nil {
				return t.reprompt(st, msgInvalidPrice)
			}
			next.Data.Price = price
		}
		return t.moveTo(&next, StepDate)

	case StepDate:
		if !t.keep(st, text) {
			date, err := domain.ParseDate(text, t.format.loc)
			if err != nil {
				return t.reprompt(st, msgInvalidDate)
			}
			next.Data.RenewalDate = date
		}
		return t.moveTo(&next, StepDescription)

	case StepDescription:
		switch {
		case t.keep(st, text):
		case matches(skipWords, text):
			next.Data.Description = ""
		default:
			next.Data.Description = text
		}
		return t.moveTo(&next, StepBilling)

	case StepBilling:
		if !t.keep(st, text) {
			period, err := domain.ParseBillingPeriod(text)
			if err != nil {
				return t.reprompt(st, msgInvalidBilling)
			}
			next.Data.BillingPeriod = period
		}
		return t.commit(ctx, &next)
	}

	// Idle or unknown step: nothing to advance.
	return turn{state: nil, parts: []string{msgCancelled}}
}

func (t *Tracker) moveTo(st *ConversationState, step Step) turn {
	st.Step = step
	return turn{state: st, parts: []string{t.format.prompt(step, st)}}
}

func (t *Tracker) reprompt(st *ConversationState, msg string) turn {
	return turn{state: st, parts: []string{msg}}
}

// commit writes the collected subscription. On failure the state stays at
// the billing step so the user can resend the answer.
func (t *Tracker) commit(ctx context.Context, st *ConversationState) turn {
	sub := st.Data
	if sub.Currency == "" {
		sub.Currency = t.defaultCurrency
	}
	if !sub.Category.IsValid() {
		sub.Category = domain.CategoryOther
	}

	var (
		saved *domain.Subscription
		err   error
	)
	if st.EditingID != "" {
		sub.ID = st.EditingID
		saved, err = t.store.Update(ctx, &sub)
	} else {
		sub.ID = ""
		sub.IsActive = true
		saved, err = t.store.Create(ctx, &sub)
	}

	if err != nil {
		failed := *st
		failed.Step = StepBilling
		return turn{state: &failed, parts: []string{saveFailedMessage(err)}}
	}

	if st.EditingID != "" {
		return turn{state: nil, parts: []string{t.format.updated(saved)}}
	}
	return turn{state: nil, parts: []string{t.format.created(saved)}}
}

// createCandidate stores a confirmed extraction result.
func (t *Tracker) createCandidate(ctx context.Context, candidate *domain.Subscription) (*domain.Subscription, error) {
	sub := *candidate
	sub.ID = ""
	sub.IsActive = true
	if sub.Currency == "" {
		sub.Currency = t.defaultCurrency
	}
	if !sub.Category.IsValid() {
		sub.Category = domain.CategoryOther
	}
	return t.store.Create(ctx, &sub)
}

var validationErrors = []error{
	domain.ErrNameRequired,
	domain.ErrNameTooLong,
	domain.ErrPriceNotPositive,
	domain.ErrInvalidCategory,
	domain.ErrInvalidBillingPeriod,
	domain.ErrRenewalDateRequired,
}

func saveFailedMessage(err error) string {
	reason := "the service is unavailable"
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			reason = v.Error()
			break
		}
	}
	return fmt.Sprintf(msgSaveFailed, reason)
}
