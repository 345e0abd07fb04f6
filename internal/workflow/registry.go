package workflow

// Assignment types. The set is closed; a new regulatory service becomes a new
// constant here plus a workflow entry (or it falls back to the default list).
const (
	TypeRegistration        = "registration"
	TypeExtension           = "extension"
	TypeCorrection          = "correction"
	TypeChange              = "change"
	TypeDeregister          = "deregister"
	TypeAbeyance            = "abeyance"
	TypeLapsed              = "lapsed"
	TypeClosure             = "closure"
	TypeGeneralUpdate       = "general_update"
	TypeQPRNotice           = "qpr_notice"
	TypeAdvertisementNotice = "advertisement_notice"
	TypeOtherNotice         = "other_notice"
	TypeLoginIDRetrieval    = "login_id_retrieval"
)

// Status codes shared across workflows.
const (
	StatusNew               = "new"
	StatusInfoPendingSyte   = "info-pending-syte"
	StatusInfoPendingClient = "info-pending-client"
	StatusApplicationDone   = "application-done"
	StatusClose             = "close"
)

// Types lists every known assignment type.
func Types() []string {
	return []string{
		TypeRegistration, TypeExtension, TypeCorrection, TypeChange,
		TypeDeregister, TypeAbeyance, TypeLapsed, TypeClosure,
		TypeGeneralUpdate, TypeQPRNotice, TypeAdvertisementNotice,
		TypeOtherNotice, TypeLoginIDRetrieval,
	}
}

// DefaultWorkflow applies to any type without an explicit entry.
func DefaultWorkflow() []string {
	return []string{StatusNew, StatusInfoPendingSyte, StatusInfoPendingClient, StatusClose}
}

// builtin holds the per-type status lists. Every list starts at "new" and
// terminates at "close"; jumps between any two members are allowed, so order
// here is presentation order, not a transition constraint.
var builtin = map[string][]string{
	TypeRegistration: {
		StatusNew, StatusInfoPendingSyte, StatusInfoPendingClient,
		StatusApplicationDone, "scrutiny-raised", "certificate-received", StatusClose,
	},
	TypeExtension: {
		StatusNew, StatusInfoPendingSyte, StatusInfoPendingClient,
		StatusApplicationDone, "extension-granted", StatusClose,
	},
	TypeCorrection: {
		StatusNew, StatusInfoPendingSyte, StatusInfoPendingClient,
		StatusApplicationDone, StatusClose,
	},
	TypeChange: {
		StatusNew, StatusInfoPendingSyte, StatusInfoPendingClient,
		StatusApplicationDone, StatusClose,
	},
	TypeDeregister: {
		StatusNew, StatusInfoPendingSyte, StatusInfoPendingClient,
		StatusApplicationDone, "deregistered", StatusClose,
	},
	TypeAbeyance: {
		StatusNew, StatusInfoPendingSyte, StatusInfoPendingClient,
		"abeyance-raised", "reply-filed", StatusClose,
	},
	TypeLapsed: {
		StatusNew, StatusInfoPendingSyte, StatusInfoPendingClient,
		"reply-filed", StatusClose,
	},
	TypeQPRNotice: {
		StatusNew, StatusInfoPendingSyte, StatusInfoPendingClient,
		"reply-filed", "hearing-scheduled", StatusClose,
	},
	TypeAdvertisementNotice: {
		StatusNew, StatusInfoPendingSyte, StatusInfoPendingClient,
		"reply-filed", StatusClose,
	},
	TypeLoginIDRetrieval: {
		StatusNew, StatusInfoPendingSyte, StatusInfoPendingClient,
		"credentials-shared", StatusClose,
	},
	// closure, general_update and other_notice follow the default workflow.
}

// Registry resolves the legal status list for an assignment type. Overrides
// from project config take precedence over the built-in tables.
type Registry struct {
	overrides map[string][]string
}

// NewRegistry builds a registry; overrides may be nil. Override lists are
// assumed already validated (see config.Config.Validate).
func NewRegistry(overrides map[string][]string) Registry {
	return Registry{overrides: overrides}
}

// WorkflowFor returns the status list for the given type, falling back to the
// default workflow for unknown or unlisted types. The returned slice is a
// copy; callers may reorder it freely.
func (r Registry) WorkflowFor(assignmentType string) []string {
	if wf, ok := r.overrides[assignmentType]; ok {
		return append([]string(nil), wf...)
	}
	if wf, ok := builtin[assignmentType]; ok {
		return append([]string(nil), wf...)
	}
	return DefaultWorkflow()
}

// Valid reports whether code belongs to the type's workflow, case-insensitive.
func (r Registry) Valid(assignmentType, code string) bool {
	for _, c := range r.WorkflowFor(assignmentType) {
		if equalFold(c, code) {
			return true
		}
	}
	return false
}
