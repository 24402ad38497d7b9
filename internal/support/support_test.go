package support

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storebot/pkg/payload"
	"storebot/pkg/utils"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) FAQs(ctx context.Context) (payload.Value, error) {
	args := m.Called(ctx)
	return args.Get(0).(payload.Value), args.Error(1)
}

func (m *mockSource) Coupons(ctx context.Context) (payload.Value, error) {
	args := m.Called(ctx)
	return args.Get(0).(payload.Value), args.Error(1)
}

func (m *mockSource) SubmitContact(ctx context.Context, body any) error {
	return m.Called(ctx, body).Error(0)
}

func (m *mockSource) SubmitFeedback(ctx context.Context, body any) error {
	return m.Called(ctx, body).Error(0)
}

func decode(t *testing.T, raw string) payload.Value {
	t.Helper()
	v, err := payload.Decode([]byte(raw))
	require.NoError(t, err)
	return v
}

const faqs = `{"data":[
	{"question":"Bao lâu thì giao hàng?","answer":"2-4 ngày làm việc"},
	{"question":"How do returns work?","answer":"Return within 7 days"},
	{"question":"Payment methods?","answer":"COD, card, e-wallet"}
]}`

func TestFAQsFilterByTopic(t *testing.T) {
	src := new(mockSource)
	src.On("FAQs", mock.Anything).Return(decode(t, faqs), nil)
	svc := New(src, 0)

	got, err := svc.FAQs(context.Background(), "giao hàng mất bao lâu")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2-4 ngày làm việc", got[0].Answer)

	got, err = svc.FAQs(context.Background(), "returns?")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Question, "returns")
}

func TestFAQsFallBackToAll(t *testing.T) {
	src := new(mockSource)
	src.On("FAQs", mock.Anything).Return(decode(t, faqs), nil)
	svc := New(src, 2)

	got, err := svc.FAQs(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.FAQs(context.Background(), "quantum entanglement")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFAQsError(t *testing.T) {
	src := new(mockSource)
	src.On("FAQs", mock.Anything).Return(payload.Null(), errors.New("503"))

	_, err := New(src, 0).FAQs(context.Background(), "")
	assert.Error(t, err)
}

func TestCouponsDropExpired(t *testing.T) {
	src := new(mockSource)
	src.On("Coupons", mock.Anything).Return(decode(t, `[
		{"code":"OLD","percent":5,"end_date":"2020-01-01"},
		{"code":"NEW","percent":10,"end_date":"2031-01-01"},
		{"code":"FOREVER","discount":20000}
	]`), nil)
	svc := New(src, 0)
	svc.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	got, err := svc.Coupons(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "NEW", got[0].Code)
	assert.Equal(t, "FOREVER", got[1].Code)
}

func TestSubmitRoutesByKind(t *testing.T) {
	src := new(mockSource)
	src.On("SubmitContact", mock.Anything, mock.MatchedBy(func(f Form) bool {
		return f.Name == "Lan" && f.Message == "Call me"
	})).Return(nil).Once()
	src.On("SubmitFeedback", mock.Anything, mock.Anything).Return(errors.New("502")).Once()
	svc := New(src, 0)

	err := svc.Submit(context.Background(), Form{Kind: FormContact, Name: " Lan ", Phone: "0912345678", Message: " Call me "})
	assert.NoError(t, err)

	err = svc.Submit(context.Background(), Form{Kind: FormFeedback, Message: "Great shop", Rating: 5})
	assert.Error(t, err)

	src.AssertExpectations(t)
}

func TestSubmitValidation(t *testing.T) {
	src := new(mockSource)
	svc := New(src, 0)

	err := svc.Submit(context.Background(), Form{Kind: "complaint", Message: "x"})
	assert.Equal(t, utils.CodeInvalidParam, utils.GetErrorCode(err))

	err = svc.Submit(context.Background(), Form{Kind: FormContact, Message: "  "})
	assert.Equal(t, utils.CodeInvalidParam, utils.GetErrorCode(err))

	err = svc.Submit(context.Background(), Form{Kind: FormFeedback, Message: "ok", Email: "bad"})
	assert.Error(t, err)

	src.AssertNotCalled(t, "SubmitContact", mock.Anything, mock.Anything)
	src.AssertNotCalled(t, "SubmitFeedback", mock.Anything, mock.Anything)
}
