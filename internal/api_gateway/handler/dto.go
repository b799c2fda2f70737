package handler

import (
	"time"

	"github.com/dispatch-ledger/internal/domain/call"
)

// CreateCallRequest registers a new WAITING call
type CreateCallRequest struct {
	CustomerName string `json:"customer_name"`
	PhoneNumber  string `json:"phone_number"`
	Departure    string `json:"departure" binding:"required"`
	Destination  string `json:"destination" binding:"required"`
	Fare         int64  `json:"fare" binding:"min=0"`
}

// TransitionRequest carries the status the caller last saw plus whatever the
// target transition needs. Unused fields are ignored.
type TransitionRequest struct {
	ExpectedStatus string `json:"expected_status" binding:"required"`
	WorkerID       string `json:"worker_id"`
	WorkerName     string `json:"worker_name"`
	Reason         string `json:"reason"`
}

// SettlementRequest is the payment breakdown submitted by the worker
type SettlementRequest struct {
	ExpectedStatus string             `json:"expected_status" binding:"required"`
	PaymentMethod  call.PaymentMethod `json:"payment_method" binding:"required"`
	Fare           int64              `json:"fare" binding:"min=0"`
	CashAmount     int64              `json:"cash_amount"`
	CardAmount     int64              `json:"card_amount"`
	CreditAmount   int64              `json:"credit_amount"`
}

type ListCallsQuery struct {
	Status string `form:"status"` // comma separated
	Limit  int    `form:"limit,default=50" binding:"min=1,max=200"`
	Offset int    `form:"offset,default=0" binding:"min=0"`
}

// PublishSharedCallRequest shares a call of the source office
type PublishSharedCallRequest struct {
	SourceRegionID string `json:"source_region_id" binding:"required"`
	SourceOfficeID string `json:"source_office_id" binding:"required"`
	TargetRegionID string `json:"target_region_id"`
	CustomerName   string `json:"customer_name"`
	PhoneNumber    string `json:"phone_number"`
	Departure      string `json:"departure" binding:"required"`
	Destination    string `json:"destination" binding:"required"`
	Fare           int64  `json:"fare" binding:"required,gt=0"`
	CreatedBy      string `json:"created_by"`
}

type ClaimSharedCallRequest struct {
	RegionID string `json:"region_id" binding:"required"`
	OfficeID string `json:"office_id" binding:"required"`
}

type ListSharedCallsQuery struct {
	TargetRegionID string `form:"target_region_id"`
	Limit          int    `form:"limit,default=50" binding:"min=1,max=200"`
}

type RecordAdjustmentRequest struct {
	CallID    string `json:"call_id" binding:"required"`
	FareDelta int64  `json:"fare_delta" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

type DateRangeQuery struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
}

// CreditRequest posts an amount to a customer's credit account
type CreditRequest struct {
	CustomerPhone string `json:"customer_phone"`
	CustomerName  string `json:"customer_name"`
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	CallID        string `json:"call_id"`
	Date          string `json:"date"`
	Departure     string `json:"departure"`
	Destination   string `json:"destination"`
}

type CreditLookupQuery struct {
	Phone string `form:"phone"`
	Name  string `form:"name"`
}

type CreditPaymentRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

type PointTransferRequest struct {
	FromOfficeID string `json:"from_office_id" binding:"required"`
	ToOfficeID   string `json:"to_office_id" binding:"required"`
	Amount       int64  `json:"amount" binding:"required,gt=0"`
	Reason       string `json:"reason"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

type ClosedSumResponse struct {
	Sum        int64     `json:"sum"`
	Balanced   bool      `json:"balanced"`
	VerifiedAt time.Time `json:"verified_at"`
}
