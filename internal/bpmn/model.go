package bpmn

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/seantiz/showcase/internal/model"
)

// ErrInvalidProcess is returned when a document cannot be executed.
var ErrInvalidProcess = errors.New("invalid process")

// Node kinds share the history activity type names.
const (
	KindStartEvent       = model.ActivityStartEvent
	KindEndEvent         = model.ActivityEndEvent
	KindServiceTask      = model.ActivityServiceTask
	KindUserTask         = model.ActivityUserTask
	KindExclusiveGateway = model.ActivityExclusiveGateway
)

// unsupportedElements are flow nodes the engine cannot execute. Anything else
// not modelled (documentation, extension elements, lanes) is ignored.
var unsupportedElements = map[string]bool{
	"parallelGateway":        true,
	"inclusiveGateway":       true,
	"eventBasedGateway":      true,
	"complexGateway":         true,
	"intermediateCatchEvent": true,
	"intermediateThrowEvent": true,
	"boundaryEvent":          true,
	"subProcess":             true,
	"callActivity":           true,
	"scriptTask":             true,
	"sendTask":               true,
	"receiveTask":            true,
	"businessRuleTask":       true,
	"manualTask":             true,
	"task":                   true,
}

// Definitions is the root element of a BPMN document.
type Definitions struct {
	XMLName   xml.Name   `xml:"definitions"`
	ID        string     `xml:"id,attr"`
	Processes []*Process `xml:"process"`
}

// Process returns the process with the given id.
func (d *Definitions) Process(id string) (*Process, bool) {
	for _, p := range d.Processes {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Process is one executable process of a document.
type Process struct {
	ID           string `xml:"id,attr"`
	Name         string `xml:"name,attr"`
	IsExecutable bool   `xml:"isExecutable,attr"`

	StartEvents       []*Node         `xml:"startEvent"`
	EndEvents         []*Node         `xml:"endEvent"`
	ServiceTasks      []*Node         `xml:"serviceTask"`
	UserTasks         []*Node         `xml:"userTask"`
	ExclusiveGateways []*Node         `xml:"exclusiveGateway"`
	SequenceFlows     []*SequenceFlow `xml:"sequenceFlow"`
	Other             []anyElement    `xml:",any"`

	nodes    map[string]*Node
	outgoing map[string][]*SequenceFlow
}

type anyElement struct {
	XMLName xml.Name
	ID      string `xml:"id,attr"`
}

// Node is a flow node. Which attributes are meaningful depends on Kind.
type Node struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
	Kind string `xml:"-"`

	// Service tasks.
	DelegateExpression string `xml:"delegateExpression,attr"`
	Class              string `xml:"class,attr"`

	// User tasks.
	Assignee        string `xml:"assignee,attr"`
	CandidateGroups string `xml:"candidateGroups,attr"`

	// Exclusive gateways.
	Default string `xml:"default,attr"`

	AsyncBefore bool `xml:"asyncBefore,attr"`

	Children []anyElement `xml:",any"`
}

// EventDefinition returns the local name of the event definition of a typed
// event ("timerEventDefinition"), or "" for a none event.
func (n *Node) EventDefinition() string {
	for _, c := range n.Children {
		if strings.HasSuffix(c.XMLName.Local, "EventDefinition") {
			return c.XMLName.Local
		}
	}
	return ""
}

// DelegateName returns the registry name of the delegate a service task calls.
// "${printTask}" and "com.example.PrintTask" both resolve to "printTask".
func (n *Node) DelegateName() string {
	if expr := strings.TrimSpace(n.DelegateExpression); expr != "" {
		expr = strings.TrimPrefix(expr, "${")
		expr = strings.TrimPrefix(expr, "#{")
		return strings.TrimSpace(strings.TrimSuffix(expr, "}"))
	}
	class := strings.TrimSpace(n.Class)
	if class == "" {
		return ""
	}
	if i := strings.LastIndex(class, "."); i >= 0 {
		class = class[i+1:]
	}
	r, size := utf8.DecodeRuneInString(class)
	return string(unicode.ToLower(r)) + class[size:]
}

// SequenceFlow connects two flow nodes.
type SequenceFlow struct {
	ID        string      `xml:"id,attr"`
	Name      string      `xml:"name,attr"`
	SourceRef string      `xml:"sourceRef,attr"`
	TargetRef string      `xml:"targetRef,attr"`
	Condition *Expression `xml:"conditionExpression"`
}

// Expression is the text body of a condition expression.
type Expression struct {
	Body string `xml:",chardata"`
}

// ConditionBody returns the trimmed condition text, or "" for an unconditional flow.
func (f *SequenceFlow) ConditionBody() string {
	if f.Condition == nil {
		return ""
	}
	return strings.TrimSpace(f.Condition.Body)
}

// Parse reads a BPMN document and validates every process in it.
func Parse(r io.Reader) (*Definitions, error) {
	var defs Definitions
	if err := xml.NewDecoder(r).Decode(&defs); err != nil {
		return nil, fmt.Errorf("%w: decode bpmn: %v", ErrInvalidProcess, err)
	}
	if len(defs.Processes) == 0 {
		return nil, fmt.Errorf("%w: document contains no process", ErrInvalidProcess)
	}
	for _, p := range defs.Processes {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return &defs, nil
}

// index builds the node and outgoing-flow lookups.
func (p *Process) index() {
	p.nodes = make(map[string]*Node)
	add := func(kind string, nodes []*Node) {
		for _, n := range nodes {
			n.Kind = kind
			p.nodes[n.ID] = n
		}
	}
	add(KindStartEvent, p.StartEvents)
	add(KindEndEvent, p.EndEvents)
	add(KindServiceTask, p.ServiceTasks)
	add(KindUserTask, p.UserTasks)
	add(KindExclusiveGateway, p.ExclusiveGateways)

	p.outgoing = make(map[string][]*SequenceFlow)
	for _, f := range p.SequenceFlows {
		p.outgoing[f.SourceRef] = append(p.outgoing[f.SourceRef], f)
	}
}

// Node returns the flow node with the given id.
func (p *Process) Node(id string) (*Node, bool) {
	if p.nodes == nil {
		p.index()
	}
	n, ok := p.nodes[id]
	return n, ok
}

// Outgoing returns the flows leaving a node, in document order.
func (p *Process) Outgoing(id string) []*SequenceFlow {
	if p.outgoing == nil {
		p.index()
	}
	return p.outgoing[id]
}

// StartEvent returns the single none start event.
func (p *Process) StartEvent() *Node {
	if len(p.StartEvents) == 0 {
		return nil
	}
	return p.StartEvents[0]
}

// Validate checks that the process can be executed.
func (p *Process) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: process without id", ErrInvalidProcess)
	}
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: process %q: %s", ErrInvalidProcess, p.ID, fmt.Sprintf(format, args...))
	}

	for _, el := range p.Other {
		if unsupportedElements[el.XMLName.Local] {
			return invalid("unsupported element %s %q", el.XMLName.Local, el.ID)
		}
	}

	p.index()

	if len(p.StartEvents) != 1 {
		return invalid("expected exactly one start event, found %d", len(p.StartEvents))
	}
	if def := p.StartEvents[0].EventDefinition(); def != "" {
		return invalid("start event %q has unsupported %s", p.StartEvents[0].ID, def)
	}

	count := len(p.StartEvents) + len(p.EndEvents) + len(p.ServiceTasks) + len(p.UserTasks) + len(p.ExclusiveGateways)
	if count != len(p.nodes) {
		return invalid("duplicate flow node ids")
	}

	for _, f := range p.SequenceFlows {
		if _, ok := p.nodes[f.SourceRef]; !ok {
			return invalid("sequence flow %q has unknown source %q", f.ID, f.SourceRef)
		}
		if _, ok := p.nodes[f.TargetRef]; !ok {
			return invalid("sequence flow %q has unknown target %q", f.ID, f.TargetRef)
		}
		if body := f.ConditionBody(); body != "" {
			if _, err := ParseCondition(body); err != nil {
				return invalid("sequence flow %q: %v", f.ID, err)
			}
		}
	}

	for id, n := range p.nodes {
		if n.Kind != KindEndEvent && len(p.outgoing[id]) == 0 {
			return invalid("%s %q has no outgoing sequence flow", n.Kind, id)
		}
		switch n.Kind {
		case KindServiceTask:
			if n.DelegateName() == "" {
				return invalid("service task %q names no delegate", id)
			}
		case KindExclusiveGateway:
			if n.Default != "" && !hasFlow(p.outgoing[id], n.Default) {
				return invalid("default flow %q is not an outgoing flow of gateway %q", n.Default, id)
			}
		}
	}
	return nil
}

func hasFlow(flows []*SequenceFlow, id string) bool {
	for _, f := range flows {
		if f.ID == id {
			return true
		}
	}
	return false
}
