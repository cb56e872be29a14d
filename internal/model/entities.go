package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SystemUserID attributes captures that carry no authenticated user.
var SystemUserID = uuid.MustParse("00000000-0000-4000-8000-000000000001")

// SystemRoleID is the role of the seeded system user.
var SystemRoleID = uuid.MustParse("00000000-0000-4000-8000-000000000002")

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

type ExceptionType string

const (
	ExceptionSystem         ExceptionType = "system"
	ExceptionBusiness       ExceptionType = "business"
	ExceptionValidation     ExceptionType = "validation"
	ExceptionAuthentication ExceptionType = "authentication"
	ExceptionAuthorization  ExceptionType = "authorization"
)

// Valid reports whether t is one of the known exception types.
func (t ExceptionType) Valid() bool {
	switch t {
	case ExceptionSystem, ExceptionBusiness, ExceptionValidation, ExceptionAuthentication, ExceptionAuthorization:
		return true
	}
	return false
}

type Role struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"size:255" json:"description"`
}

type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName string     `gorm:"size:100" json:"first_name"`
	LastName  string     `gorm:"size:100" json:"last_name"`
	Email     string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Status    UserStatus `gorm:"size:20;not null;default:active" json:"status"`
	RoleID    *uuid.UUID `gorm:"type:uuid" json:"role_id,omitempty"`
	Role      *Role      `gorm:"foreignKey:RoleID;constraint:OnDelete:SET NULL" json:"role,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type Method struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:10;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"size:255" json:"description"`
}

type Status struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code        int       `gorm:"not null;uniqueIndex" json:"code"`
	Description string    `gorm:"size:255" json:"description"`
}

func (Status) TableName() string {
	return "status"
}

type Header struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string     `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description string     `gorm:"size:255" json:"description"`
	CreatorID   *uuid.UUID `gorm:"type:uuid" json:"creator_id,omitempty"`
	Creator     *User      `gorm:"foreignKey:CreatorID;constraint:OnDelete:SET NULL" json:"-"`
}

type Payload struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Body          datatypes.JSON `json:"body"`
	OriginAddress string         `gorm:"size:45" json:"origin_address"`
	CreatedAt     time.Time      `json:"created_at"`
}

type Response struct {
	ID     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Body   datatypes.JSON `json:"body"`
	Size   float64        `gorm:"not null" json:"size"` // KB
	SentAt time.Time      `json:"sent_at"`
}

// Request is the aggregate root of one captured exchange.
type Request struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	StatusID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"status_id"`
	Status     *Status    `gorm:"foreignKey:StatusID" json:"status,omitempty"`
	MethodID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"method_id"`
	Method     *Method    `gorm:"foreignKey:MethodID" json:"method,omitempty"`
	PayloadID  *uuid.UUID `gorm:"type:uuid" json:"payload_id,omitempty"`
	Payload    *Payload   `gorm:"foreignKey:PayloadID;constraint:OnDelete:SET NULL" json:"payload,omitempty"`
	ResponseID *uuid.UUID `gorm:"type:uuid" json:"response_id,omitempty"`
	Response   *Response  `gorm:"foreignKey:ResponseID;constraint:OnDelete:SET NULL" json:"response,omitempty"`
	Path       string     `gorm:"size:2000;not null;index" json:"path"`
	Controller string     `gorm:"size:255" json:"controller"`
	Happened   time.Time  `gorm:"not null;index" json:"happened"`
	Duration   int64      `gorm:"not null" json:"duration"` // ms
	MadeBy     *uuid.UUID `gorm:"type:uuid;index" json:"made_by,omitempty"`
	User       *User      `gorm:"foreignKey:MadeBy;constraint:OnDelete:SET NULL" json:"-"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`

	Headers    []RequestHeader `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"headers,omitempty"`
	Exceptions []Exception     `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"exceptions,omitempty"`
	Queries    []Query         `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"queries,omitempty"`
}

// RequestHeader links a request to a captured header name. The composite key
// makes the association a set.
type RequestHeader struct {
	RequestID uuid.UUID `gorm:"type:uuid;primaryKey" json:"request_id"`
	HeaderID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"header_id"`
	Header    *Header   `gorm:"foreignKey:HeaderID" json:"header,omitempty"`
}

type Exception struct {
	ID         uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID  uuid.UUID     `gorm:"type:uuid;not null;index" json:"request_id"`
	Message    string        `gorm:"type:text;not null" json:"message"`
	Type       ExceptionType `gorm:"size:20;not null;index" json:"type"`
	StackTrace *string       `gorm:"type:text" json:"stack_trace,omitempty"`
	OccurredAt time.Time     `gorm:"not null" json:"occurred_at"`
}

type Query struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID  uuid.UUID `gorm:"type:uuid;not null;index" json:"request_id"`
	SQL        string    `gorm:"column:sql;type:text;not null" json:"sql"`
	Duration   float64   `gorm:"not null" json:"duration"` // ms
	ExecutedAt time.Time `gorm:"not null" json:"executed_at"`
}

// AllTables lists the entities in dependency order for migrations.
func AllTables() []any {
	return []any{
		&Role{}, &User{}, &Method{}, &Status{}, &Header{},
		&Payload{}, &Response{}, &Request{}, &RequestHeader{},
		&Exception{}, &Query{},
	}
}

func newIDIfNil(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (r *Role) BeforeCreate(*gorm.DB) error      { newIDIfNil(&r.ID); return nil }
func (u *User) BeforeCreate(*gorm.DB) error      { newIDIfNil(&u.ID); return nil }
func (m *Method) BeforeCreate(*gorm.DB) error    { newIDIfNil(&m.ID); return nil }
func (s *Status) BeforeCreate(*gorm.DB) error    { newIDIfNil(&s.ID); return nil }
func (h *Header) BeforeCreate(*gorm.DB) error    { newIDIfNil(&h.ID); return nil }
func (p *Payload) BeforeCreate(*gorm.DB) error   { newIDIfNil(&p.ID); return nil }
func (r *Response) BeforeCreate(*gorm.DB) error  { newIDIfNil(&r.ID); return nil }
func (r *Request) BeforeCreate(*gorm.DB) error   { newIDIfNil(&r.ID); return nil }
func (e *Exception) BeforeCreate(*gorm.DB) error { newIDIfNil(&e.ID); return nil }
func (q *Query) BeforeCreate(*gorm.DB) error     { newIDIfNil(&q.ID); return nil }
