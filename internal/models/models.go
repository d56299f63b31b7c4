package models

import "time"

// Timestamps inside the session document are stored as strings so the
// persisted JSON stays byte-compatible with documents written by earlier
// tooling. PurchaseDateLayout is the layout used for order dates.
const PurchaseDateLayout = "2006-01-02 15:04:05"

// Event is one row of the append-only inbound message log. Payload carries
// the raw transport document ({"parts":[{"text":...}]}); only the first text
// part is ever extracted.
type Event struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor"`
	Payload   string `json:"payload"`
	Processed bool   `json:"processed"`
}

const (
	ActionUserQuery     = "user_query"
	ActionAgentResponse = "agent_response"
)

// Interaction is a classified history entry derived from exactly one event.
// Action is either ActionUserQuery (Query set) or ActionAgentResponse
// (Agent and Response set).
type Interaction struct {
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	Query     string `json:"query,omitempty"`
	Agent     string `json:"agent,omitempty"`
	Response  string `json:"response,omitempty"`
}

type AccountInformation struct {
	UserName string `json:"user_name"`
	Email    string `json:"email_id"`
	Phone    string `json:"phone_no"`
	Password string `json:"password"`
}

// IsNewUser reports whether the account has not completed setup. An empty
// password marks a new user throughout the system.
func (a AccountInformation) IsNewUser() bool {
	return a.Password == ""
}

const (
	OrderStatusDispatched = "dispatched"
	OrderStatusDelivered  = "delivered"
)

type PurchasedProduct struct {
	ProductID    string `json:"product_id"`
	PurchaseDate string `json:"purchase_date"`
	OrderID      string `json:"order_id"`
	OrderStatus  string `json:"order_status"`
}

// PurchasedAt parses the stored purchase date.
func (p PurchasedProduct) PurchasedAt() (time.Time, error) {
	return time.Parse(PurchaseDateLayout, p.PurchaseDate)
}

type PendingTask struct {
	Description string            `json:"description"`
	TargetAgent string            `json:"target_agent"`
	Type        string            `json:"type"`
	Context     map[string]string `json:"context"`
}

const (
	StaffStatusAvailable = "available"
	StaffStatusQueued    = "queued"
)

// StaffAssignment is the slice of the staff record written into a session
// once a specialist is assigned. Status is "available" when the specialist
// was free at assignment time and "queued" when they were already busy.
type StaffAssignment struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status"`
}

func (s StaffAssignment) IsZero() bool {
	return s.Name == ""
}

// SessionState is the per-user durable document. Every tool operation
// mutates it through the store's serialized read-modify-write.
type SessionState struct {
	AccountInformation AccountInformation `json:"account_information"`
	PurchasedProducts  []PurchasedProduct `json:"purchased_products"`
	InteractionHistory []Interaction      `json:"interaction_history"`
	PendingTasks       []PendingTask      `json:"pending_tasks"`
	AssignedStaff      StaffAssignment    `json:"assigned_support_staff"`
}

// NewSessionState builds the default document created on first contact.
// The display name is derived from the email local part.
func NewSessionState(userID string) SessionState {
	name := userID
	for i := 0; i < len(userID); i++ {
		if userID[i] == '@' {
			name = userID[:i]
			break
		}
	}
	return SessionState{
		AccountInformation: AccountInformation{UserName: name, Email: userID},
		PurchasedProducts:  []PurchasedProduct{},
		InteractionHistory: []Interaction{},
		PendingTasks:       []PendingTask{},
	}
}

// StaffMember is one row of the support staff roster. IsFree and
// AssignedUser move together: a busy member is assigned to exactly one user.
type StaffMember struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	PhoneNumber  string `json:"phone_number"`
	IsFree       bool   `json:"is_free"`
	AssignedUser string `json:"assigned_user,omitempty"`
}
