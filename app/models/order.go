package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

type OrderState string

const (
	OrderStatePendingPayment OrderState = "PENDING_PAYMENT"
	OrderStatePaid           OrderState = "PAID"
	OrderStateComputing      OrderState = "COMPUTING"
	OrderStateInterpreting   OrderState = "INTERPRETING"
	OrderStateRendering      OrderState = "RENDERING"
	OrderStateDelivered      OrderState = "DELIVERED"
	OrderStateFailedTerminal OrderState = "FAILED_TERMINAL"
)

type ReportType string

const (
	ReportTypePreview       ReportType = "preview"
	ReportTypeFull          ReportType = "full"
	ReportTypeCompatibility ReportType = "compatibility"
)

// orderTransitions is the complete edge set of the order lifecycle.
// INTERPRETING -> INTERPRETING records a retry.
var orderTransitions = map[OrderState][]OrderState{
	OrderStatePendingPayment: {OrderStatePaid, OrderStateFailedTerminal},
	OrderStatePaid:           {OrderStateComputing, OrderStateFailedTerminal},
	OrderStateComputing:      {OrderStateInterpreting, OrderStateFailedTerminal},
	OrderStateInterpreting:   {OrderStateInterpreting, OrderStateRendering, OrderStateFailedTerminal},
	OrderStateRendering:      {OrderStateDelivered, OrderStateFailedTerminal},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to OrderState) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderState) Valid() bool {
	switch s {
	case OrderStatePendingPayment, OrderStatePaid, OrderStateComputing, OrderStateInterpreting,
		OrderStateRendering, OrderStateDelivered, OrderStateFailedTerminal:
		return true
	}
	return false
}

func (s OrderState) IsTerminal() bool {
	return s == OrderStateDelivered || s == OrderStateFailedTerminal
}

// InPipeline is true for states the fulfillment pipeline is expected to move forward.
func (s OrderState) InPipeline() bool {
	switch s {
	case OrderStatePaid, OrderStateComputing, OrderStateInterpreting, OrderStateRendering:
		return true
	}
	return false
}

// PipelineStates lists the non-terminal states after payment.
func PipelineStates() []OrderState {
	return []OrderState{OrderStatePaid, OrderStateComputing, OrderStateInterpreting, OrderStateRendering}
}

func (t ReportType) Purchasable() bool {
	return t == ReportTypeFull || t == ReportTypeCompatibility
}

// Person is the subject of a reading. Birthdate is stored as YYYY-MM-DD.
type Person struct {
	Name      string `json:"name" validate:"required,max=200"`
	Birthdate string `json:"birthdate" validate:"required,datetime=2006-01-02"`
}

// OrderPayload holds the subjects of an order and is persisted as JSON.
type OrderPayload struct {
	Person  Person  `json:"person" validate:"required"`
	Partner *Person `json:"partner,omitempty" validate:"omitempty"`
}

func (p OrderPayload) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *OrderPayload) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*p = OrderPayload{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("invalid scan source for order payload")
	}
	return json.Unmarshal(raw, p)
}

type Order struct {
	ID                string       `gorm:"type:char(36);primaryKey" json:"id"`
	Code              string       `gorm:"type:varchar(16);uniqueIndex;not null" json:"code" validate:"required,alphanum,min=6,max=16"`
	UserID            string       `gorm:"type:varchar(64);index;not null" json:"user_id" validate:"required,max=64"`
	ReportType        ReportType   `gorm:"type:varchar(20);not null" json:"report_type" validate:"required,oneof=full compatibility"`
	Payload           OrderPayload `gorm:"type:text;not null" json:"payload"`
	State             OrderState   `gorm:"type:varchar(32);index;not null" json:"state"`
	PriceAmount       int64        `gorm:"not null;default:0" json:"price_amount" validate:"gte=0"`
	Currency          string       `gorm:"type:varchar(3);not null;default:''" json:"currency"`
	PaymentRef        *string      `gorm:"type:varchar(191);uniqueIndex" json:"payment_ref,omitempty"`
	PaidAmount        int64        `gorm:"not null;default:0" json:"paid_amount"`
	PaidAt            *time.Time   `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	ComputeAttempts   int          `gorm:"not null;default:0" json:"compute_attempts"`
	InterpretAttempts int          `gorm:"not null;default:0" json:"interpret_attempts"`
	RenderAttempts    int          `gorm:"not null;default:0" json:"render_attempts"`
	NextAttemptAt     *time.Time   `gorm:"type:timestamp;default:null;index" json:"next_attempt_at,omitempty"`
	LastError         string       `gorm:"type:text" json:"last_error,omitempty"`
	ProfileJSON       string       `gorm:"type:text" json:"-"`
	NarrativeJSON     string       `gorm:"type:longtext" json:"-"`
	DocumentRef       *string      `gorm:"type:varchar(512)" json:"document_ref,omitempty"`
	DeliveredAt       *time.Time   `gorm:"type:timestamp;default:null" json:"delivered_at,omitempty"`
	CreatedAt         time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (o *Order) Validate() error {
	v := validator.New()
	if err := v.Struct(o); err != nil {
		return err
	}
	if err := v.Struct(o.Payload.Person); err != nil {
		return err
	}
	switch o.ReportType {
	case ReportTypeCompatibility:
		if o.Payload.Partner == nil {
			return errors.New("compatibility order requires a partner")
		}
		return v.Struct(o.Payload.Partner)
	default:
		if o.Payload.Partner != nil {
			return fmt.Errorf("%s order must not carry a partner", o.ReportType)
		}
	}
	return nil
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.State == "" {
		o.State = OrderStatePendingPayment
	}
	return nil
}

// Clone returns a deep copy so callers never share pointer fields.
func (o *Order) Clone() *Order {
	c := *o
	if o.Payload.Partner != nil {
		p := *o.Payload.Partner
		c.Payload.Partner = &p
	}
	c.PaymentRef = cloneString(o.PaymentRef)
	c.DocumentRef = cloneString(o.DocumentRef)
	c.PaidAt = cloneTime(o.PaidAt)
	c.NextAttemptAt = cloneTime(o.NextAttemptAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	return &c
}

// OrderPatch carries the column changes written together with a state transition.
// Nil fields are left untouched.
type OrderPatch struct {
	PaymentRef           *string
	PaidAmount           *int64
	PaidAt               *time.Time
	IncComputeAttempts   bool
	IncInterpretAttempts bool
	IncRenderAttempts    bool
	NextAttemptAt        *time.Time
	ClearNextAttempt     bool
	LastError            *string
	ProfileJSON          *string
	NarrativeJSON        *string
	DocumentRef          *string
	DeliveredAt          *time.Time

	// Reason is recorded on the OrderTransition row only.
	Reason string
}

// Columns returns the patch as a column map. Attempt counters are returned
// separately so SQL stores can increment them in place.
func (p OrderPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.PaymentRef != nil {
		cols["payment_ref"] = *p.PaymentRef
	}
	if p.PaidAmount != nil {
		cols["paid_amount"] = *p.PaidAmount
	}
	if p.PaidAt != nil {
		cols["paid_at"] = *p.PaidAt
	}
	if p.ClearNextAttempt {
		cols["next_attempt_at"] = nil
	} else if p.NextAttemptAt != nil {
		cols["next_attempt_at"] = *p.NextAttemptAt
	}
	if p.LastError != nil {
		cols["last_error"] = *p.LastError
	}
	if p.ProfileJSON != nil {
		cols["profile_json"] = *p.ProfileJSON
	}
	if p.NarrativeJSON != nil {
		cols["narrative_json"] = *p.NarrativeJSON
	}
	if p.DocumentRef != nil {
		cols["document_ref"] = *p.DocumentRef
	}
	if p.DeliveredAt != nil {
		cols["delivered_at"] = *p.DeliveredAt
	}
	return cols
}

// IncrementedCounters lists the attempt columns the patch bumps by one.
func (p OrderPatch) IncrementedCounters() []string {
	var out []string
	if p.IncComputeAttempts {
		out = append(out, "compute_attempts")
	}
	if p.IncInterpretAttempts {
		out = append(out, "interpret_attempts")
	}
	if p.IncRenderAttempts {
		out = append(out, "render_attempts")
	}
	return out
}

// ApplyTo writes the patch into an in-memory order.
func (p OrderPatch) ApplyTo(o *Order) {
	if p.PaymentRef != nil {
		o.PaymentRef = cloneString(p.PaymentRef)
	}
	if p.PaidAmount != nil {
		o.PaidAmount = *p.PaidAmount
	}
	if p.PaidAt != nil {
		o.PaidAt = cloneTime(p.PaidAt)
	}
	if p.IncComputeAttempts {
		o.ComputeAttempts++
	}
	if p.IncInterpretAttempts {
		o.InterpretAttempts++
	}
	if p.IncRenderAttempts {
		o.RenderAttempts++
	}
	if p.ClearNextAttempt {
		o.NextAttemptAt = nil
	} else if p.NextAttemptAt != nil {
		o.NextAttemptAt = cloneTime(p.NextAttemptAt)
	}
	if p.LastError != nil {
		o.LastError = *p.LastError
	}
	if p.ProfileJSON != nil {
		o.ProfileJSON = *p.ProfileJSON
	}
	if p.NarrativeJSON != nil {
		o.NarrativeJSON = *p.NarrativeJSON
	}
	if p.DocumentRef != nil {
		o.DocumentRef = cloneString(p.DocumentRef)
	}
	if p.DeliveredAt != nil {
		o.DeliveredAt = cloneTime(p.DeliveredAt)
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
