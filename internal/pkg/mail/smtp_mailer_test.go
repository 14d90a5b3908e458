package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupportAlerterEscapesBody(t *testing.T) {
	var gotTo, gotSubject, gotBody string
	a := &SupportAlerter{to: "support@example.com", send: func(to, subject, body string) error {
		gotTo, gotSubject, gotBody = to, subject, body
		return nil
	}}

	err := a.AlertOperator(context.Background(), "Order failed", "order <x> failed")
	assert.NoError(t, err)
	assert.Equal(t, "support@example.com", gotTo)
	assert.Equal(t, "[NumeroFox] Order failed", gotSubject)
	assert.Equal(t, "<pre>order &lt;x&gt; failed</pre>", gotBody)
}

func TestSupportAlerterWithoutSMTPOnlyLogs(t *testing.T) {
	t.Setenv("SMTP_HOST", "")
	a := NewSupportAlerter()
	assert.NoError(t, a.AlertOperator(context.Background(), "s", "b"))
}

func TestSupportAlerterPropagatesSendErrors(t *testing.T) {
	a := &SupportAlerter{to: "x@example.com", send: func(string, string, string) error { return errors.New("smtp down") }}
	assert.Error(t, a.AlertOperator(context.Background(), "s", "b"))
}
