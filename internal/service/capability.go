package service

import (
	"sort"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
)

// Capability names one action a role may invoke.
type Capability string

const (
	CapSubmissionCreate    Capability = "submission:create"
	CapSubmissionManageOwn Capability = "submission:manage-own"
	CapSubmissionReadAny   Capability = "submission:read-any"
	CapSubmissionReview    Capability = "submission:review"
	CapQueueRead           Capability = "queue:read"
	CapQueueAssign         Capability = "queue:assign"
	CapQueueOverride       Capability = "queue:override"
	CapQueueReprioritize   Capability = "queue:reprioritize"
	CapAuditReadAny        Capability = "audit:read-any"
	CapAuditAnnotate       Capability = "audit:annotate"
	CapDomainWatch         Capability = "domain:watch"
	CapNotificationManage  Capability = "notification:manage"
	CapPublicationRead     Capability = "publication:read"
)

var authorCapabilities = []Capability{
	CapPublicationRead,
	CapSubmissionCreate,
	CapSubmissionManageOwn,
	CapNotificationManage,
}

var reviewerCapabilities = []Capability{
	CapSubmissionReadAny,
	CapSubmissionReview,
	CapQueueRead,
	CapQueueAssign,
	CapQueueReprioritize,
	CapAuditReadAny,
	CapAuditAnnotate,
	CapDomainWatch,
}

// capabilityTable is the only place role permissions are defined.
var capabilityTable = buildCapabilityTable(map[models.UserRole][][]Capability{
	models.RoleViewer:  {{CapPublicationRead}},
	models.RoleStudent: {authorCapabilities},
	models.RoleStaff:   {authorCapabilities, reviewerCapabilities},
	models.RoleAdmin:   {authorCapabilities, reviewerCapabilities, {CapQueueOverride}},
})

func buildCapabilityTable(groups map[models.UserRole][][]Capability) map[models.UserRole]map[Capability]struct{} {
	table := make(map[models.UserRole]map[Capability]struct{}, len(groups))
	for role, sets := range groups {
		allowed := make(map[Capability]struct{})
		for _, set := range sets {
			for _, capability := range set {
				allowed[capability] = struct{}{}
			}
		}
		table[role] = allowed
	}
	return table
}

// Authorize reports whether role holds capability. Unknown roles hold nothing.
func Authorize(role models.UserRole, capability Capability) bool {
	allowed, ok := capabilityTable[role]
	if !ok {
		return false
	}
	_, ok = allowed[capability]
	return ok
}

// CapabilitiesFor lists a role's capabilities in lexical order.
func CapabilitiesFor(role models.UserRole) []Capability {
	allowed := capabilityTable[role]
	out := make([]Capability, 0, len(allowed))
	for capability := range allowed {
		out = append(out, capability)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RolesWith lists the roles holding capability, ordered for display.
func RolesWith(capability Capability) []models.UserRole {
	var roles []models.UserRole
	for _, role := range []models.UserRole{models.RoleViewer, models.RoleStudent, models.RoleStaff, models.RoleAdmin} {
		if Authorize(role, capability) {
			roles = append(roles, role)
		}
	}
	return roles
}

// Permits reports whether session holds one of the roles granted capability.
func Permits(session *models.Session, capability Capability) bool {
	return session.HasAnyRole(RolesWith(capability)...)
}

func sessionOrAnonymous(session *models.Session) *models.Session {
	if session == nil {
		return models.AnonymousSession()
	}
	return session
}

// requireMutation gates write paths: identity first, then capability.
func requireMutation(session *models.Session, capability Capability) error {
	if !session.Authenticated() {
		return appErrors.Clone(appErrors.ErrUnauthenticated, "authentication required")
	}
	return requireCapability(session, capability)
}

// requireCapability gates read paths; anonymous callers are evaluated as VIEWER.
func requireCapability(session *models.Session, capability Capability) error {
	session = sessionOrAnonymous(session)
	if !Permits(session, capability) {
		return appErrors.Clone(appErrors.ErrForbidden, "role "+string(session.Role)+" may not perform "+string(capability))
	}
	return nil
}
