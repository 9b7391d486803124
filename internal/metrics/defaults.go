package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/opsdash/internal/types"
)

// CreateDefaultMetrics returns the six starter metrics, two per category.
// IDs are fixed so repeated calls produce the same definitions. Nothing is
// persisted; see SeedDefaults.
func CreateDefaultMetrics(now time.Time) []types.AnchorMetric {
	createdAt := now.UTC()
	return []types.AnchorMetric{
		{
			ID:         "default-entregas-no-prazo",
			Name:       "Entregas no prazo",
			Category:   types.CategoryOperation,
			Frequency:  types.FrequencyWeekly,
			Direction:  types.HigherBetter,
			Unit:       "%",
			SourceNote: "Entregas concluídas na data combinada / total de entregas",
			Guardrails: types.Guardrails{
				Green:  types.Bound{Min: types.Float(90)},
				Yellow: types.Bound{Min: types.Float(75)},
				Red:    types.Bound{Max: types.Float(75)},
			},
			Playbook: types.Playbook{
				ActionIfYellow: "Revisar prazos da semana e renegociar o que estiver em risco",
				ActionIfRed:    "Parar novas demandas e destravar as entregas atrasadas hoje",
			},
			IsActive:  true,
			CreatedAt: createdAt,
		},
		{
			ID:         "default-atrasos-operacionais",
			Name:       "Atrasos operacionais",
			Category:   types.CategoryOperation,
			Frequency:  types.FrequencyDaily,
			Direction:  types.LowerBetter,
			Unit:       "ocorrências",
			SourceNote: "Tarefas que passaram do prazo no dia",
			Guardrails: types.Guardrails{
				Green:  types.Bound{Max: types.Float(0)},
				Yellow: types.Bound{Max: types.Float(2)},
				Red:    types.Bound{Min: types.Float(3)},
			},
			Playbook: types.Playbook{
				ActionIfYellow: "Identificar a causa dos atrasos e ajustar a fila",
				ActionIfRed:    "Delegar ou cortar escopo para zerar os atrasos",
			},
			IsActive:  true,
			CreatedAt: createdAt,
		},
		{
			ID:         "default-publicacoes",
			Name:       "Publicações na semana",
			Category:   types.CategoryContent,
			Frequency:  types.FrequencyWeekly,
			Direction:  types.HigherBetter,
			Unit:       "posts",
			SourceNote: "Conteúdos publicados em todos os canais",
			Guardrails: types.Guardrails{
				Green:  types.Bound{Min: types.Float(3)},
				Yellow: types.Bound{Min: types.Float(2)},
				Red:    types.Bound{Max: types.Float(1)},
			},
			Playbook: types.Playbook{
				ActionIfYellow: "Reaproveitar um conteúdo antigo para manter a constância",
				ActionIfRed:    "Bloquear um horário fixo amanhã só para produzir conteúdo",
			},
			IsActive:  true,
			CreatedAt: createdAt,
		},
		{
			ID:         "default-engajamento",
			Name:       "Engajamento médio",
			Category:   types.CategoryContent,
			Frequency:  types.FrequencyWeekly,
			Direction:  types.HigherBetter,
			Unit:       "%",
			SourceNote: "Interações / alcance dos conteúdos da semana",
			Guardrails: types.Guardrails{
				Green:  types.Bound{Min: types.Float(5)},
				Yellow: types.Bound{Min: types.Float(3)},
				Red:    types.Bound{Max: types.Float(3)},
			},
			Playbook: types.Playbook{
				ActionIfYellow: "Testar um novo formato ou chamada para ação",
				ActionIfRed:    "Revisar o tema da semana com base nas dúvidas dos clientes",
			},
			IsActive:  true,
			CreatedAt: createdAt,
		},
		{
			ID:         "default-leads-novos",
			Name:       "Leads novos",
			Category:   types.CategoryCommercial,
			Frequency:  types.FrequencyDaily,
			Direction:  types.HigherBetter,
			Unit:       "leads",
			SourceNote: "Contatos qualificados que entraram no funil",
			Guardrails: types.Guardrails{
				Green:  types.Bound{Min: types.Float(5)},
				Yellow: types.Bound{Min: types.Float(2)},
				Red:    types.Bound{Max: types.Float(1)},
			},
			Playbook: types.Playbook{
				ActionIfYellow: "Reativar contatos antigos da base",
				ActionIfRed:    "Fazer prospecção ativa com 10 contatos hoje",
			},
			IsActive:  true,
			CreatedAt: createdAt,
		},
		{
			ID:         "default-propostas-enviadas",
			Name:       "Propostas enviadas",
			Category:   types.CategoryCommercial,
			Frequency:  types.FrequencyWeekly,
			Direction:  types.HigherBetter,
			Unit:       "propostas",
			SourceNote: "Propostas comerciais formalmente enviadas",
			Guardrails: types.Guardrails{
				Green:  types.Bound{Min: types.Float(3)},
				Yellow: types.Bound{Min: types.Float(1)},
				Red:    types.Bound{Max: types.Float(0)},
			},
			Playbook: types.Playbook{
				ActionIfYellow: "Revisar oportunidades paradas e marcar follow-ups",
				ActionIfRed:    "Transformar as conversas quentes em propostas ainda esta semana",
			},
			IsActive:  true,
			CreatedAt: createdAt,
		},
	}
}

// MetricStore is the persistence needed to seed defaults.
type MetricStore interface {
	GetAnchorMetrics(ctx context.Context) []types.AnchorMetric
	SaveAnchorMetric(ctx context.Context, metric types.AnchorMetric)
}

// SeedDefaults persists the starter metrics when none are configured.
// It reports how many metrics were written.
func SeedDefaults(ctx context.Context, s MetricStore, now time.Time) int {
	if len(s.GetAnchorMetrics(ctx)) > 0 {
		return 0
	}

	defaults := CreateDefaultMetrics(now)
	for _, m := range defaults {
		s.SaveAnchorMetric(ctx, m)
	}

	slog.Info("seeded default metrics",
		"component", "metrics",
		"action", "seed_defaults",
		"count", len(defaults),
	)
	return len(defaults)
}
