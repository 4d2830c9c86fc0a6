package dashboard

import (
	"strings"
	"time"
	"unicode/utf8"

	"aamonitor/internal/api"
)

type QuotaMode string

const (
	QuotaGauges QuotaMode = "gauges"
	QuotaBanner QuotaMode = "banner"
	QuotaList   QuotaMode = "list"
	QuotaEmpty  QuotaMode = "empty"
)

const (
	noQuotaPlaceholder = "Aucun quota disponible"
	defaultBannerIcon  = "⚠️"
	onlineMarker       = "En Ligne"
	quotaValueLimit    = 40
)

type Banner struct {
	Status string `json:"status"`
	Info   string `json:"info,omitempty"`
	Detail string `json:"detail,omitempty"`
	Online bool   `json:"online"`
}

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type UserCard struct {
	Tier    string `json:"tier"`
	Email   string `json:"email"`
	ShowPro bool   `json:"show_pro"`
}

type QuotaView struct {
	Mode        QuotaMode  `json:"mode"`
	Gauges      []Gauge    `json:"gauges,omitempty"`
	Banner      *Banner    `json:"banner,omitempty"`
	Items       []KeyValue `json:"items,omitempty"`
	User        *UserCard  `json:"user,omitempty"`
	Placeholder string     `json:"placeholder,omitempty"`
}

func renderQuota(q *api.Quota, now time.Time) QuotaView {
	if q == nil || q.External.Len() == 0 {
		return QuotaView{Mode: QuotaEmpty, Placeholder: noQuotaPlaceholder}
	}
	ext := q.External
	if src, _ := ext.String("source"); src == api.SourceLanguageServer {
		if ls, err := api.DecodeObject[api.LanguageServerQuota](ext); err == nil {
			return languageServerQuota(ls, now)
		}
	}
	if ext.Truthy("Status") || ext.Truthy("Info") {
		return QuotaView{Mode: QuotaBanner, Banner: quotaBanner(ext)}
	}
	return QuotaView{Mode: QuotaList, Items: quotaItems(ext)}
}

func languageServerQuota(ls api.LanguageServerQuota, now time.Time) QuotaView {
	v := QuotaView{Mode: QuotaGauges}
	if p := ls.PromptCredits; p != nil {
		v.Gauges = append(v.Gauges, NewGauge("Prompts", p.Available, p.Total, valueOr(p.Percentage, 0), ""))
	}
	if f := ls.FlowCredits; f != nil {
		v.Gauges = append(v.Gauges, NewGauge("Flow", f.Available, f.Total, valueOr(f.Percentage, 0), ""))
	}
	for _, m := range ls.Models {
		usage := valueOr(m.UsagePercentage, 0)
		sub := modelSubLabel(Remaining(usage), m.ResetTime, now)
		v.Gauges = append(v.Gauges, NewGauge(m.Name, 0, 0, usage, sub))
	}
	if ls.User != nil && strings.TrimSpace(ls.User.Tier) != "" {
		v.User = userCard(*ls.User)
	}
	return v
}

// ShowProBadge reports whether a tier gets a separate PRO tag: paid tiers
// only, and never when the tier name already says "pro".
func ShowProBadge(tier string) bool {
	lower := strings.ToLower(tier)
	hasPro := strings.Contains(lower, "pro")
	paid := strings.Contains(lower, "paid") || hasPro
	return paid && !hasPro
}

func userCard(u api.QuotaUser) *UserCard {
	email := u.Email
	if strings.TrimSpace(email) == "" {
		email = "Unknown"
	}
	return &UserCard{Tier: u.Tier, Email: email, ShowPro: ShowProBadge(u.Tier)}
}

func quotaBanner(ext api.Object) *Banner {
	b := &Banner{Status: defaultBannerIcon}
	if ext.Truthy("Status") {
		b.Status = ext.Display("Status")
	}
	if ext.Truthy("Info") {
		b.Info = ext.Display("Info")
	}
	if ext.Truthy("Detail") {
		b.Detail = ext.Display("Detail")
	}
	if s, ok := ext.String("Status"); ok && strings.Contains(s, onlineMarker) {
		b.Online = true
	}
	return b
}

func quotaItems(ext api.Object) []KeyValue {
	items := make([]KeyValue, 0, ext.Len())
	for _, key := range ext.Keys() {
		items = append(items, KeyValue{Key: key, Value: truncateValue(ext.Display(key), quotaValueLimit)})
	}
	return items
}

func truncateValue(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
