package domain

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type RefKind int

const (
	RefInvoice RefKind = iota + 1
	RefPlan
)

// Reference is the external_reference attached to every checkout the
// platform creates. It carries enough to route a gateway payment back to
// the owning tenant and entity, and is the only correlation the webhook
// pipeline trusts.
//
// Wire formats:
//
//	invoice:{code}:tenant:{id}
//	plan:tenant:{id}:plan_subscription_id:{id}
type Reference struct {
	Kind           RefKind
	TenantID       snowflake.ID
	InvoiceCode    string
	SubscriptionID snowflake.ID
}

func NewInvoiceReference(tenantID snowflake.ID, code string) Reference {
	return Reference{Kind: RefInvoice, TenantID: tenantID, InvoiceCode: code}
}

func NewPlanReference(tenantID, subscriptionID snowflake.ID) Reference {
	return Reference{Kind: RefPlan, TenantID: tenantID, SubscriptionID: subscriptionID}
}

func (r Reference) String() string {
	switch r.Kind {
	case RefInvoice:
		return fmt.Sprintf("invoice:%s:tenant:%d", r.InvoiceCode, r.TenantID)
	case RefPlan:
		return fmt.Sprintf("plan:tenant:%d:plan_subscription_id:%d", r.TenantID, r.SubscriptionID)
	default:
		return ""
	}
}

// ParseReference decodes an external_reference. Anything that does not match
// a known shape is an unresolved reference, never a guess.
func ParseReference(raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")

	switch {
	case len(parts) == 4 && parts[0] == "invoice" && parts[2] == "tenant":
		code := strings.TrimSpace(parts[1])
		tenantID, err := snowflake.ParseString(strings.TrimSpace(parts[3]))
		if err != nil || code == "" || tenantID == 0 {
			return Reference{}, ErrUnresolvedReference
		}
		return Reference{Kind: RefInvoice, TenantID: tenantID, InvoiceCode: code}, nil

	case len(parts) == 5 && parts[0] == "plan" && parts[1] == "tenant" && parts[3] == "plan_subscription_id":
		tenantID, err := snowflake.ParseString(strings.TrimSpace(parts[2]))
		if err != nil || tenantID == 0 {
			return Reference{}, ErrUnresolvedReference
		}
		subID, err := snowflake.ParseString(strings.TrimSpace(parts[4]))
		if err != nil || subID == 0 {
			return Reference{}, ErrUnresolvedReference
		}
		return Reference{Kind: RefPlan, TenantID: tenantID, SubscriptionID: subID}, nil

	default:
		return Reference{}, ErrUnresolvedReference
	}
}
