package crm

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Field string

const (
	FieldSubject           Field = "subject"
	FieldStart             Field = "start_time"
	FieldStartClock        Field = "start_clock"
	FieldEnd               Field = "end_time"
	FieldEndClock          Field = "end_clock"
	FieldLocation          Field = "location"
	FieldDescription       Field = "description"
	FieldOrganizer         Field = "organizer_id"
	FieldFirstName         Field = "first_name"
	FieldLastName          Field = "last_name"
	FieldCompany           Field = "company"
	FieldEmail             Field = "email"
	FieldPhone             Field = "phone"
	FieldStatus            Field = "status"
	FieldSource            Field = "source"
	FieldOwner             Field = "owner_id"
	FieldFollowUpDate      Field = "follow_up_date"
	FieldJobTitle          Field = "job_title"
	FieldAccount           Field = "account_name"
	FieldDealName          Field = "deal_name"
	FieldAmount            Field = "amount"
	FieldStage             Field = "stage"
	FieldExpectedCloseDate Field = "expected_close_date"
	FieldContactName       Field = "contact_name"
	FieldTitle             Field = "title"
	FieldDueDate           Field = "due_date"
	FieldDueClock          Field = "due_clock"
	FieldPriority          Field = "priority"
	FieldAssignee          Field = "assignee_id"
)

type Kind uint8

const (
	KindText Kind = iota + 1
	KindEmail
	KindPhone
	KindEnum
	KindMoney
	KindDate
	KindClock
	KindTimestamp
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindEmail:
		return "email"
	case KindPhone:
		return "phone"
	case KindEnum:
		return "enum"
	case KindMoney:
		return "money"
	case KindDate:
		return "date"
	case KindClock:
		return "clock"
	case KindTimestamp:
		return "timestamp"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// Value is one typed cell of a normalized record. Text carries text, email,
// phone, enum and user-id values; Time carries dates and timestamps.
type Value struct {
	Kind  Kind
	Text  string
	Time  time.Time
	Money decimal.Decimal
}

func TextValue(kind Kind, text string) Value {
	return Value{Kind: kind, Text: text}
}

func TimeValue(kind Kind, t time.Time) Value {
	return Value{Kind: kind, Time: t}
}

func MoneyValue(amount decimal.Decimal) Value {
	return Value{Kind: KindMoney, Money: amount}
}

func (v Value) IsZero() bool {
	switch v.Kind {
	case KindDate, KindTimestamp:
		return v.Time.IsZero()
	case KindMoney:
		return false
	case 0:
		return true
	default:
		return v.Text == ""
	}
}

// Record is the normalized form of one imported or exported row.
type Record struct {
	ID        string
	CreatedAt time.Time
	Values    map[Field]Value
}

func NewRecord() Record {
	return Record{Values: map[Field]Value{}}
}

func (r Record) Set(field Field, value Value) {
	r.Values[field] = value
}

func (r Record) Get(field Field) (Value, bool) {
	v, ok := r.Values[field]
	return v, ok
}

func (r Record) Text(field Field) string {
	return r.Values[field].Text
}

func (r Record) Time(field Field) time.Time {
	return r.Values[field].Time
}

type Filter struct {
	OwnerField Field
	OwnerID    string
	CreatedGTE *time.Time
	CreatedLT  *time.Time
	Limit      int
}

type RecordStore interface {
	Insert(ctx context.Context, table string, record Record) error
	Select(ctx context.Context, table string, filter Filter) ([]Record, error)
}

// ProfileStore resolves users in batches. FetchIDsByNames keys its result by
// lowercased display name.
type ProfileStore interface {
	FetchDisplayNames(ctx context.Context, ids []string) (map[string]string, error)
	FetchIDsByNames(ctx context.Context, names []string) (map[string]string, error)
}
