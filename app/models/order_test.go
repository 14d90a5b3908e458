package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderState
		want     bool
	}{
		{OrderStatePendingPayment, OrderStatePaid, true},
		{OrderStatePaid, OrderStateComputing, true},
		{OrderStateComputing, OrderStateInterpreting, true},
		{OrderStateInterpreting, OrderStateInterpreting, true},
		{OrderStateInterpreting, OrderStateRendering, true},
		{OrderStateRendering, OrderStateDelivered, true},
		{OrderStateRendering, OrderStateFailedTerminal, true},
		{OrderStatePendingPayment, OrderStateComputing, false},
		{OrderStatePaid, OrderStatePaid, false},
		{OrderStateDelivered, OrderStateRendering, false},
		{OrderStateFailedTerminal, OrderStatePaid, false},
		{OrderStateRendering, OrderStateInterpreting, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []OrderState{OrderStateDelivered, OrderStateFailedTerminal} {
		assert.True(t, s.IsTerminal())
		for _, to := range append(PipelineStates(), OrderStatePendingPayment, OrderStateDelivered, OrderStateFailedTerminal) {
			assert.False(t, CanTransition(s, to), "%s -> %s", s, to)
		}
	}
}

func TestOrderValidate(t *testing.T) {
	valid := func() *Order {
		return &Order{
			ID:         "6d1f0d51-3b0f-4d55-9d6b-0a9f1d0f2c11",
			Code:       "Ab3dEf9H",
			UserID:     "42",
			ReportType: ReportTypeFull,
			Payload:    OrderPayload{Person: Person{Name: "Иван Иванов", Birthdate: "1990-05-14"}},
		}
	}

	require.NoError(t, valid().Validate())

	o := valid()
	o.Payload.Person.Birthdate = "14.05.1990"
	assert.Error(t, o.Validate(), "birthdate must be canonical")

	o = valid()
	o.ReportType = ReportTypeCompatibility
	assert.Error(t, o.Validate(), "compatibility needs a partner")
	o.Payload.Partner = &Person{Name: "Мария", Birthdate: "1992-02-01"}
	assert.NoError(t, o.Validate())

	o = valid()
	o.ReportType = ReportTypePreview
	assert.Error(t, o.Validate(), "previews are never persisted as orders")
}

func TestOrderPatchApplyAndColumns(t *testing.T) {
	ref := "pay_1"
	amount := int64(14900)
	next := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := "timeout"

	p := OrderPatch{
		PaymentRef:           &ref,
		PaidAmount:           &amount,
		IncInterpretAttempts: true,
		NextAttemptAt:        &next,
		LastError:            &msg,
	}

	o := &Order{InterpretAttempts: 1}
	p.ApplyTo(o)
	require.NotNil(t, o.PaymentRef)
	assert.Equal(t, "pay_1", *o.PaymentRef)
	assert.Equal(t, amount, o.PaidAmount)
	assert.Equal(t, 2, o.InterpretAttempts)
	assert.Equal(t, next, *o.NextAttemptAt)
	assert.Equal(t, "timeout", o.LastError)

	cols := p.Columns()
	assert.Equal(t, "pay_1", cols["payment_ref"])
	assert.Equal(t, next, cols["next_attempt_at"])
	assert.Equal(t, []string{"interpret_attempts"}, p.IncrementedCounters())

	clear := OrderPatch{ClearNextAttempt: true, NextAttemptAt: &next}
	clear.ApplyTo(o)
	assert.Nil(t, o.NextAttemptAt)
	v, ok := clear.Columns()["next_attempt_at"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestOrderPayloadScan(t *testing.T) {
	in := OrderPayload{Person: Person{Name: "A B", Birthdate: "2000-01-01"}, Partner: &Person{Name: "C", Birthdate: "2001-02-03"}}
	raw, err := in.Value()
	require.NoError(t, err)

	var out OrderPayload
	require.NoError(t, out.Scan([]byte(raw.(string))))
	assert.Equal(t, in, out)

	assert.Error(t, out.Scan(42))
}

func TestOrderCloneIsDeep(t *testing.T) {
	ref := "x"
	o := &Order{PaymentRef: &ref, Payload: OrderPayload{Partner: &Person{Name: "P"}}}
	c := o.Clone()
	*c.PaymentRef = "y"
	c.Payload.Partner.Name = "Q"
	assert.Equal(t, "x", *o.PaymentRef)
	assert.Equal(t, "P", o.Payload.Partner.Name)
}
