package tools

import (
	"context"
	"fmt"
	"time"

	"goa.design/apron-incident/runtime/state"
)

// notifyDepartmentTool dispatches a notification to an operational
// department. Idempotent per department (§8 "notification idempotence"):
// re-invoking for a department already notified this session is a no-op
// that still reports success, since the controller may legitimately retry
// after an ambiguous LLM turn.
type notifyDepartmentTool struct {
	scenarios []string
	now       func() time.Time
}

// NewNotifyDepartmentTool constructs the department-notification tool.
// nowFn supplies the notification timestamp; tests pass a fixed clock.
func NewNotifyDepartmentTool(scenarios []string, nowFn func() time.Time) Tool {
	return notifyDepartmentTool{scenarios: scenarios, now: nowFn}
}

func (notifyDepartmentTool) Name() string        { return "notify_department" }
func (notifyDepartmentTool) Description() string { return "Notify an operational department of the incident." }
func (notifyDepartmentTool) Class() Class        { return ClassCritical }
func (t notifyDepartmentTool) Scenarios() []string { return t.scenarios }
func (notifyDepartmentTool) InputSchema() []byte {
	return []byte(`{"type":"object","required":["department"],"properties":{"department":{"type":"string","minLength":1,"maxLength":64},"priority":{"type":"string","maxLength":16}}}`)
}

func (t notifyDepartmentTool) Execute(_ context.Context, session *state.Session, input map[string]any) (Result, error) {
	department, _ := input["department"].(string)
	priority, _ := input["priority"].(string)
	if priority == "" {
		priority = "normal"
	}
	if department == "" {
		return Result{Success: false, Observation: "invalid input: department is required"}, nil
	}

	for _, n := range session.NotificationsSent {
		if n.Department == department {
			return Result{Success: true, Observation: fmt.Sprintf("%s already notified at %s, skipping duplicate dispatch", department, n.Timestamp.Format(time.RFC3339))}, nil
		}
	}

	session.NotificationsSent = append(session.NotificationsSent, state.NotificationSent{
		Department: department,
		Priority:   priority,
		Timestamp:  t.now(),
	})
	if session.MandatoryActionsDone == nil {
		session.MandatoryActionsDone = map[string]bool{}
	}
	session.MandatoryActionsDone["notify:"+department] = true
	return Result{Success: true, Observation: fmt.Sprintf("notified %s (priority=%s)", department, priority)}, nil
}

// generateReportTool hands off to the output node by marking the session
// complete; the actual report body is built by runtime/output from the
// accumulated session state, not by this tool (§4.9: "the output generator,
// not the reasoning loop, renders the report"). Idempotent (§8 "report
// idempotence"): calling it again after completion is a no-op.
type generateReportTool struct{ scenarios []string }

// NewGenerateReportTool constructs the report-generation tool.
func NewGenerateReportTool(scenarios []string) Tool { return generateReportTool{scenarios: scenarios} }

func (generateReportTool) Name() string        { return "generate_report" }
func (generateReportTool) Description() string { return "Generate the final incident report and close the session." }
func (generateReportTool) Class() Class        { return ClassNonCritical }
func (t generateReportTool) Scenarios() []string { return t.scenarios }
func (generateReportTool) InputSchema() []byte {
	return []byte(`{"type":"object","properties":{}}`)
}

func (generateReportTool) Execute(_ context.Context, session *state.Session, _ map[string]any) (Result, error) {
	if session.IsComplete {
		return Result{Success: true, Observation: "report already generated; ignoring duplicate request"}, nil
	}
	session.IsComplete = true
	return Result{Success: true, Observation: "report generation requested"}, nil
}
