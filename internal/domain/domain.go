package domain

type Project struct {
	ID          string `json:"id"`
	Promoter    string `json:"promoter,omitempty"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Assignment struct {
	ID                string `json:"id"`
	ProjectID         string `json:"project_id"`
	Type              string `json:"type" enum:"registration,extension,correction,change,deregister,abeyance,lapsed,closure,general_update,qpr_notice,advertisement_notice,other_notice,login_id_retrieval"`
	Status            string `json:"status"`
	ApplicationNumber string `json:"application_number,omitempty"`
	LoginID           string `json:"login_id,omitempty"`
	LastAction        string `json:"last_action,omitempty"`
	CreatedAt         string `json:"created_at" format:"date-time"`
	UpdatedAt         string `json:"updated_at" format:"date-time"`
}

// Reminder resolution is one-way: active reminders may be resolved, never
// the other direction.
const (
	ReminderActive   = "active"
	ReminderResolved = "resolved"
)

type Reminder struct {
	ID             string  `json:"id"`
	AssignmentID   string  `json:"assignment_id"`
	DueAt          string  `json:"due_at" format:"date-time"`
	Message        string  `json:"message"`
	StatusSnapshot string  `json:"status_snapshot"`
	State          string  `json:"state" enum:"active,resolved"`
	CreatedBy      string  `json:"created_by"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	ResolvedBy     *string `json:"resolved_by,omitempty"`
	ResolvedAt     *string `json:"resolved_at,omitempty" format:"date-time"`
}

type Note struct {
	ID           string `json:"id"`
	AssignmentID string `json:"assignment_id"`
	Body         string `json:"body"`
	CreatedBy    string `json:"created_by"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// TimelineEntry is a read-only projection over status events and notes for
// one assignment.
type TimelineEntry struct {
	TS          string `json:"ts" format:"date-time"`
	Kind        string `json:"kind" enum:"status,note"`
	Actor       string `json:"actor"`
	Description string `json:"description"`
	FromStatus  string `json:"from_status,omitempty"`
	ToStatus    string `json:"to_status,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
