/*
Package widgets provides the view models behind the console's small
presentational components: status badges and alert banners.

PURPOSE:
  The web console renders a coloured badge next to every status and a
  banner strip at the top of the dashboard. Deciding which colour a
  "partially_refunded" badge gets, or which banners are still active, is
  done here so every page agrees.

SEE ALSO:
  - alert.go: Alert banners
  - api/widgets.go: HTTP endpoints
*/
package widgets

import (
	"strings"
	"unicode"
)

type Variant string

const (
	VariantSuccess Variant = "success"
	VariantWarning Variant = "warning"
	VariantDanger  Variant = "danger"
	VariantInfo    Variant = "info"
	VariantNeutral Variant = "neutral"
)

// Badge is what the console renders for a status.
type Badge struct {
	Label   string  `json:"label"`
	Variant Variant `json:"variant"`
}

type Kind string

const (
	KindTransaction Kind = "transaction"
	KindRefund      Kind = "refund"
	KindPayout      Kind = "payout"
	KindReceipt     Kind = "receipt"
	KindDSR         Kind = "dsr"
	KindCompliance  Kind = "compliance"
)

var variants = map[Kind]map[string]Variant{
	KindTransaction: {
		"pending":            VariantInfo,
		"captured":           VariantSuccess,
		"failed":             VariantDanger,
		"partially_refunded": VariantWarning,
		"refunded":           VariantNeutral,
		"voided":             VariantNeutral,
	},
	KindRefund: {
		"pending":  VariantWarning,
		"approved": VariantSuccess,
		"rejected": VariantDanger,
	},
	KindPayout: {
		"pending":    VariantInfo,
		"processing": VariantWarning,
		"completed":  VariantSuccess,
		"failed":     VariantDanger,
	},
	KindReceipt: {
		"issued": VariantSuccess,
		"void":   VariantNeutral,
	},
	KindDSR: {
		"received":    VariantInfo,
		"in_progress": VariantWarning,
		"completed":   VariantSuccess,
		"rejected":    VariantNeutral,
		"overdue":     VariantDanger,
	},
	KindCompliance: {
		"compliant":     VariantSuccess,
		"expiring":      VariantWarning,
		"non_compliant": VariantDanger,
		"info":          VariantInfo,
		"warning":       VariantWarning,
		"critical":      VariantDanger,
	},
}

// labels overrides the default title-casing.
var labels = map[string]string{
	"in_progress":        "In Progress",
	"partially_refunded": "Partially Refunded",
	"non_compliant":      "Non-compliant",
	"void":               "Void",
}

// BadgeFor maps a status of a record kind to its badge. Unknown kinds or
// statuses get a neutral badge.
func BadgeFor(kind Kind, status string) Badge {
	status = strings.ToLower(strings.TrimSpace(status))
	v, ok := variants[kind][status]
	if !ok {
		v = VariantNeutral
	}
	return Badge{Label: Label(status), Variant: v}
}

// Kinds lists every kind with badge mappings.
func Kinds() []Kind {
	return []Kind{KindTransaction, KindRefund, KindPayout, KindReceipt, KindDSR, KindCompliance}
}

// Catalogue lists the badge of every known status, by kind.
func Catalogue() map[Kind]map[string]Badge {
	out := make(map[Kind]map[string]Badge, len(variants))
	for kind, statuses := range variants {
		m := make(map[string]Badge, len(statuses))
		for status, v := range statuses {
			m[status] = Badge{Label: Label(status), Variant: v}
		}
		out[kind] = m
	}
	return out
}

// Label turns "partially_refunded" into "Partially Refunded".
func Label(status string) string {
	if l, ok := labels[status]; ok {
		return l
	}
	words := strings.FieldsFunc(status, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}
