// Package output implements the output generator (§4.9): it renders the
// final checklist/report from the complete session state via template
// substitution. New code; text/template is the idiomatic Go choice for
// report rendering and has no pack-provided templating alternative
// (justified stdlib use, see DESIGN.md).
package output

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/state"
)

const reportTemplate = `事件处置报告
============
{{.EventSummary}}

风险评估: {{if .RiskAssessment}}{{.RiskAssessment.Level}} (评分 {{.RiskAssessment.Score}}){{else}}未评估{{end}}

处置时间线:
{{range .Timeline}}- [{{.Timestamp.Format "15:04:05"}}] {{.Action}}: {{.Observation}}
{{else}}（无记录）
{{end}}
检查清单:
{{range $k, $v := .ChecklistItems}}- {{$k}}: {{if $v}}已完成{{else}}待完成{{end}}
{{end}}
已通知单位:
{{range .NotifiedUnits}}- {{.Department}} ({{.Priority}}) @ {{.Timestamp.Format "15:04:05"}}
{{else}}（无）
{{end}}
运行影响: 受影响节点 {{len .OperationalImpact.AffectedNodes}} 个，受影响航班 {{.OperationalImpact.FlightCount}} 架次，累计延误 {{.OperationalImpact.TotalDelayMinutes}} 分钟

建议:
{{range .Recommendations}}- {{.}}
{{end}}
生成时间: {{.GeneratedAt.Format "2006-01-02 15:04:05"}}
`

// staticRecommendations gives a baseline recommendation per risk level;
// risk-assessment immediate_actions are appended on top (§4.9:
// "recommendations derived from risk level and immediate_actions").
var staticRecommendations = map[string]string{
	state.RiskLOW:        "持续监控现场，按常规流程收尾。",
	state.RiskMEDIUM:     "加强现场监控，确认各项处置措施按计划推进。",
	state.RiskMEDIUMHIGH: "提高现场戒备级别，确保相关单位保持待命。",
	state.RiskHIGH:       "立即执行高优先级处置措施，保持与各保障单位的实时沟通。",
	state.RiskCRITICAL:   "启动最高级别应急响应，必要时请求人工指挥介入。",
}

// Generator renders the final report and plain-text answer.
type Generator struct {
	tmpl *template.Template
	now  func() time.Time
}

// New constructs a Generator, parsing the report template once.
func New() *Generator {
	return &Generator{
		tmpl: template.Must(template.New("report").Parse(reportTemplate)),
		now:  time.Now,
	}
}

// Generate implements §4.9, mutating session in place: writes final_report
// (structured) and final_answer (plain text), and sets awaiting_user=true.
func (g *Generator) Generate(session *state.Session, desc *scenario.Descriptor) {
	report := state.Report{
		EventSummary:      buildEventSummary(session, desc),
		RiskAssessment:    session.RiskAssessment,
		Timeline:          session.ActionsTaken,
		ChecklistItems:    session.Checklist,
		NotifiedUnits:     session.NotificationsSent,
		OperationalImpact: buildOperationalImpact(session),
		Recommendations:   buildRecommendations(session),
		GeneratedAt:       g.now(),
	}
	session.FinalReport = &report

	var b strings.Builder
	if err := g.tmpl.Execute(&b, report); err == nil {
		session.FinalAnswer = b.String()
	} else {
		session.FinalAnswer = report.EventSummary
	}
	session.AwaitingUser = true
}

func buildEventSummary(session *state.Session, desc *scenario.Descriptor) string {
	var parts []string
	parts = append(parts, "事件类型: "+session.ScenarioType)
	for _, key := range desc.FieldOrder {
		v, ok := session.Incident[key]
		if !ok {
			continue
		}
		name := desc.FieldNames[key]
		if name == "" {
			name = key
		}
		parts = append(parts, name+": "+formatValue(v))
	}
	return strings.Join(parts, "; ")
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "是"
		}
		return "否"
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

func buildOperationalImpact(session *state.Session) state.OperationalImpact {
	var nodes []string
	if sp := session.SpatialAnalysis; sp != nil {
		nodes = append(nodes, sp.AffectedStands...)
		nodes = append(nodes, sp.AffectedTaxiways...)
		nodes = append(nodes, sp.AffectedRunways...)
	}
	impact := state.OperationalImpact{AffectedNodes: nodes}
	if fi := session.FlightImpact; fi != nil {
		impact.FlightCount = fi.Statistics.Total
		impact.TotalDelayMinutes = fi.Statistics.TotalDelayMinutes
	}
	return impact
}

func buildRecommendations(session *state.Session) []string {
	var recs []string
	if session.RiskAssessment != nil {
		if rec, ok := staticRecommendations[session.RiskAssessment.Level]; ok {
			recs = append(recs, rec)
		}
		recs = append(recs, session.RiskAssessment.ImmediateActions...)
	}
	return recs
}
