// Package support backs the help-desk intents: FAQs, coupons and the
// contact/feedback forms.
package support

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storebot/internal/display"
	"storebot/pkg/log"
	"storebot/pkg/payload"
	"storebot/pkg/textnorm"
	"storebot/pkg/utils"
)

// Source is the slice of the storefront API support reads and writes.
type Source interface {
	FAQs(ctx context.Context) (payload.Value, error)
	Coupons(ctx context.Context) (payload.Value, error)
	SubmitContact(ctx context.Context, body any) error
	SubmitFeedback(ctx context.Context, body any) error
}

// FormKind selects where a form is delivered.
type FormKind string

const (
	FormContact  FormKind = "contact"
	FormFeedback FormKind = "feedback"
)

// Form is a contact request or a piece of feedback typed into the chat.
type Form struct {
	Kind    FormKind `json:"kind" binding:"required,oneof=contact feedback"`
	Name    string   `json:"name" binding:"max=100"`
	Email   string   `json:"email" binding:"omitempty,email"`
	Phone   string   `json:"phone" binding:"omitempty,phone"`
	Message string   `json:"message" binding:"required,max=2000"`
	Rating  int      `json:"rating,omitempty" binding:"omitempty,min=1,max=5"`
}

// Validate checks the form with the shared request validator.
func (f *Form) Validate() error {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
	f.Message = strings.TrimSpace(f.Message)
	return utils.ValidateStruct(f)
}

// Service is stateless and safe for concurrent use.
type Service struct {
	src     Source
	maxFAQs int
	now     func() time.Time
}

// New builds a support service. maxFAQs <= 0 means 5.
func New(src Source, maxFAQs int) *Service {
	if maxFAQs <= 0 {
		maxFAQs = 5
	}
	return &Service{src: src, maxFAQs: maxFAQs, now: time.Now}
}

// FAQs returns entries relevant to topic, or the first few when topic is
// empty or matches nothing.
func (s *Service) FAQs(ctx context.Context, topic string) ([]display.FAQ, error) {
	v, err := s.src.FAQs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list faqs: %w", err)
	}
	all := display.NormalizeFAQs(payload.Records(v))

	var matched []display.FAQ
	if words := significantWords(topic); len(words) > 0 {
		for _, f := range all {
			text := textnorm.Fold(f.Question + " " + f.Answer)
			for _, w := range words {
				if strings.Contains(text, w) {
					matched = append(matched, f)
					break
				}
			}
		}
	}
	if len(matched) == 0 {
		matched = all
	}
	if len(matched) > s.maxFAQs {
		matched = matched[:s.maxFAQs]
	}
	return matched, nil
}

// significantWords folds topic and keeps words long enough to be useful.
func significantWords(topic string) []string {
	var out []string
	for _, w := range strings.Fields(textnorm.Fold(topic)) {
		w = textnorm.Trim(w)
		if len([]rune(w)) >= 4 {
			out = append(out, w)
		}
	}
	return out
}

// Coupons returns the coupons that have not expired.
func (s *Service) Coupons(ctx context.Context) ([]display.Coupon, error) {
	v, err := s.src.Coupons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	now := s.now()
	all := display.NormalizeCoupons(payload.Records(v))
	valid := all[:0]
	for _, c := range all {
		if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
			continue
		}
		valid = append(valid, c)
	}
	return valid, nil
}

// Submit validates and delivers form.
func (s *Service) Submit(ctx context.Context, form Form) error {
	if err := form.Validate(); err != nil {
		return err
	}

	var err error
	switch form.Kind {
	case FormContact:
		err = s.src.SubmitContact(ctx, form)
	case FormFeedback:
		err = s.src.SubmitFeedback(ctx, form)
	default:
		return utils.NewError(utils.CodeInvalidParam, "unknown form kind")
	}
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"form":  form.Kind,
		"email": utils.MaskEmail(form.Email),
		"phone": utils.MaskPhone(form.Phone),
	}).Info("Form delivered")
	return nil
}
