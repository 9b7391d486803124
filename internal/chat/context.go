package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/opsdash/internal/dates"
	"github.com/hyperengineering/opsdash/internal/metrics"
	"github.com/hyperengineering/opsdash/internal/types"
)

// SystemPrompt instructs the assistant and describes the command block it
// may append to a reply.
const SystemPrompt = `Você é o assistente do painel de operações de um pequeno negócio.
Responda em português, de forma curta e prática, usando o contexto fornecido.

Quando o usuário pedir para registrar algo, inclua no final da resposta exatamente um bloco:
__JSON_START__ {"action": "<AÇÃO>", "data": {...}} __JSON_END__

Ações disponíveis:
- UPDATE_DAILY_CHECK: data com operationStatus (green|yellow|red), contentStatus (fulfilled|at-risk|not-priority), commercialAlignment (aligned|partial|misaligned), hasBottleneck, bottleneckDescription, tomorrowTrend (better|same|worse). Envie só os campos alterados.
- UPDATE_METRIC_ENTRY: data com metricName, value e, opcionalmente, date (YYYY-MM-DD).
- UPDATE_WEEKLY_PLAN: data com centerOfWeek, projects, content {theme, purpose} e commercial {focusClear, hasActiveActions}.
- ADD_IMPACT_LOG: data com category (operation|content|commercial) e reflection.

Sem pedido de registro, não inclua bloco.`

// Source is the read-only data the context is built from.
type Source interface {
	GetDailyCheck(ctx context.Context, date string) (types.DailyCheck, bool)
	GetWeeklyPlan(ctx context.Context, weekStart string) (types.WeeklyPlan, bool)
	GetAnchorMetrics(ctx context.Context) []types.AnchorMetric
	GetMetricEntries(ctx context.Context) []types.MetricEntry
}

// BuildContext summarizes today's state for the assistant.
func BuildContext(ctx context.Context, now time.Time, src Source) string {
	today := dates.Today(now)
	var b strings.Builder

	fmt.Fprintf(&b, "Data de hoje: %s\n", today)

	if c, ok := src.GetDailyCheck(ctx, today); ok {
		fmt.Fprintf(&b, "Check diário de hoje: operação %s, conteúdo %s, comercial %s, tendência para amanhã %s",
			c.OperationStatus, c.ContentStatus, c.CommercialAlignment, c.TomorrowTrend)
		if c.HasBottleneck {
			fmt.Fprintf(&b, ", gargalo: %s", c.BottleneckDescription)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Check diário de hoje: não preenchido\n")
	}

	week := dates.WeekStart(now)
	if p, ok := src.GetWeeklyPlan(ctx, week); ok {
		fmt.Fprintf(&b, "Plano da semana (%s): centro \"%s\", %d projetos", week, p.CenterOfWeek, len(p.Projects))
		if p.Content.Theme != "" {
			fmt.Fprintf(&b, ", tema de conteúdo \"%s\"", p.Content.Theme)
		}
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "Plano da semana (%s): não preenchido\n", week)
	}

	all := src.GetAnchorMetrics(ctx)
	entries := src.GetMetricEntries(ctx)

	var active []types.AnchorMetric
	for _, m := range all {
		if m.IsActive {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		b.WriteString("Métricas: nenhuma configurada\n")
		return b.String()
	}

	b.WriteString("Métricas:\n")
	for _, m := range active {
		fmt.Fprintf(&b, "- %s [%s]", m.Name, m.Category)
		if latest := metrics.RecentEntries(m.ID, entries, 1); len(latest) == 1 {
			fmt.Fprintf(&b, ": %g %s em %s (%s)", latest[0].Value, m.Unit, latest[0].Date, latest[0].Status)
		} else {
			b.WriteString(": sem registros")
		}
		fmt.Fprintf(&b, ", tendência %s\n", metrics.GetTrend(m.ID, entries, metrics.DefaultTrendWindow))
	}

	if red := metrics.GetRedAlerts(today, active, entries); len(red) > 0 {
		b.WriteString("Radar de vermelhos hoje:\n")
		for _, r := range red {
			state := "pendente"
			if r.Addressed {
				state = "tratado"
			}
			fmt.Fprintf(&b, "- %s (%s): %s\n", r.MetricName, state, r.Action)
		}
	}

	return b.String()
}
