// Package ovn translates the Neutron network model into OVN NB topology.
//
// This file contains the match expression builder. A match is a list of
// typed clauses joined with " && ". String operands are always quoted and
// escaped by the builder; field names, tokens and prefixes are emitted as is.
//
// Rule match grammar, in clause order:
//
//	<outport|inport> == "<port id>"
//	ip4 | ip6
//	<ip4|ip6>.<src|dst> == <remote prefix>
//	<inport|outport> == {"<port id>","<port id>"}
//	tcp | udp | icmp4 | icmp6
//	<proto>.dst >= <min>   (tcp/udp)   or   <icmp>.type >= <min>
//	<proto>.dst <= <max>   (tcp/udp)   or   <icmp>.type <= <max>
//
// Reference: OVN-Kubernetes pkg/ovn/acl.go
package ovn

import (
	"sort"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/ovndb"
)

// Match field names
const (
	FieldInport  = "inport"
	FieldOutport = "outport"
)

const matchSeparator = " && "

// unsetPortRange marks a port range bound as absent
const unsetPortRange = -1

type clause interface {
	render(b *strings.Builder)
}

// tokenClause is a bare protocol or family token such as "ip4" or "udp"
type tokenClause string

func (c tokenClause) render(b *strings.Builder) {
	b.WriteString(string(c))
}

// operand is a pre-rendered right hand side
type operand string

// quoted renders s as an OVN string literal
func quoted(s string) operand {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return operand(b.String())
}

func literal(s string) operand {
	return operand(s)
}

func integer(n int) operand {
	return operand(strconv.Itoa(n))
}

type compareClause struct {
	field string
	op    string
	value operand
}

func (c compareClause) render(b *strings.Builder) {
	b.WriteString(c.field)
	b.WriteByte(' ')
	b.WriteString(c.op)
	b.WriteByte(' ')
	b.WriteString(string(c.value))
}

// setClause matches a field against a set: field == {"a","b"}
type setClause struct {
	field  string
	values []operand
}

func (c setClause) render(b *strings.Builder) {
	b.WriteString(c.field)
	b.WriteString(" == {")
	for i, v := range c.values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(v))
	}
	b.WriteByte('}')
}

// Match is a structured OVN match expression
type Match struct {
	clauses []clause
}

// NewMatch returns an empty match
func NewMatch() *Match {
	return &Match{}
}

// Token appends a bare token
func (m *Match) Token(tok string) *Match {
	m.clauses = append(m.clauses, tokenClause(tok))
	return m
}

// PortIs appends field == "<port>"
func (m *Match) PortIs(field, port string) *Match {
	m.clauses = append(m.clauses, compareClause{field: field, op: "==", value: quoted(port)})
	return m
}

// PortIn appends field == {"<p1>","<p2>",...}
func (m *Match) PortIn(field string, ports []string) *Match {
	values := make([]operand, 0, len(ports))
	for _, p := range ports {
		values = append(values, quoted(p))
	}
	m.clauses = append(m.clauses, setClause{field: field, values: values})
	return m
}

// Equal appends field == value with an unquoted value such as a prefix
func (m *Match) Equal(field, value string) *Match {
	m.clauses = append(m.clauses, compareClause{field: field, op: "==", value: literal(value)})
	return m
}

// EqualInt appends field == n
func (m *Match) EqualInt(field string, n int) *Match {
	m.clauses = append(m.clauses, compareClause{field: field, op: "==", value: integer(n)})
	return m
}

// AtLeast appends field >= n
func (m *Match) AtLeast(field string, n int) *Match {
	m.clauses = append(m.clauses, compareClause{field: field, op: ">=", value: integer(n)})
	return m
}

// AtMost appends field <= n
func (m *Match) AtMost(field string, n int) *Match {
	m.clauses = append(m.clauses, compareClause{field: field, op: "<=", value: integer(n)})
	return m
}

// Len returns the number of clauses
func (m *Match) Len() int {
	return len(m.clauses)
}

// String renders the match
func (m *Match) String() string {
	var b strings.Builder
	for i, c := range m.clauses {
		if i > 0 {
			b.WriteString(matchSeparator)
		}
		c.render(&b)
	}
	return b.String()
}

// ruleDirection returns the OVN ACL direction, the field naming the port
// itself and the field naming the remote side
func ruleDirection(direction string) (aclDirection, portField, remoteField string) {
	if direction == model.DirectionIngress {
		return ovndb.ACLDirectionToLport, FieldOutport, FieldInport
	}
	return ovndb.ACLDirectionFromLport, FieldInport, FieldOutport
}

// ethertypeFamily returns the address family and ICMP tokens of an ethertype
func ethertypeFamily(ethertype string) (ip, icmp string) {
	switch ethertype {
	case model.EthertypeIPv4:
		return "ip4", "icmp4"
	case model.EthertypeIPv6:
		return "ip6", "icmp6"
	}
	return "", ""
}

// RemoteGroupMembers returns the sorted members of a remote group other
// than the port itself
func RemoteGroupMembers(bindings []model.PortSecurityGroupBinding, self string) []string {
	members := sets.New[string]()
	for _, b := range bindings {
		if b.PortID != self {
			members.Insert(b.PortID)
		}
	}
	return sets.List(members)
}

// BuildRuleMatch builds the match of one security group rule applied to
// portID. remoteMembers are the ports of the rule's remote group other than
// portID and are only consulted when the rule has a remote group.
//
// ok is false when the rule has a remote group with no other members: the
// rule can never match and no ACL should be generated for it.
func BuildRuleMatch(rule *model.SecurityGroupRule, portID string, remoteMembers []string) (match string, ok bool) {
	_, portField, remoteField := ruleDirection(rule.Direction)

	m := NewMatch().PortIs(portField, portID)

	ip, icmp := ethertypeFamily(rule.Ethertype)
	if ip != "" {
		m.Token(ip)
	}

	if rule.RemoteIPPrefix != "" && ip != "" {
		srcOrDst := "dst"
		if rule.Direction == model.DirectionIngress {
			srcOrDst = "src"
		}
		m.Equal(ip+"."+srcOrDst, rule.RemoteIPPrefix)
	}

	if rule.RemoteGroupID != "" {
		if len(remoteMembers) == 0 {
			return "", false
		}
		members := append([]string(nil), remoteMembers...)
		sort.Strings(members)
		m.PortIn(remoteField, members)
	}

	addProtocolClauses(m, rule, icmp)
	return m.String(), true
}

func addProtocolClauses(m *Match, rule *model.SecurityGroupRule, icmp string) {
	var protocol, portField string
	switch rule.Protocol {
	case model.ProtocolTCP, model.ProtocolUDP:
		protocol = rule.Protocol
		portField = protocol + ".dst"
	case model.ProtocolICMP:
		if icmp == "" {
			return
		}
		protocol = icmp
		portField = icmp + ".type"
	default:
		return
	}

	m.Token(protocol)
	if lo, ok := portRangeBound(rule.PortRangeMin); ok {
		m.AtLeast(portField, lo)
	}
	if hi, ok := portRangeBound(rule.PortRangeMax); ok {
		m.AtMost(portField, hi)
	}
}

func portRangeBound(v *int) (int, bool) {
	if v == nil || *v == unsetPortRange {
		return 0, false
	}
	return *v, true
}

// DropAllMatch matches all IP traffic through the port in one direction
func DropAllMatch(portField, portID string) string {
	return NewMatch().PortIs(portField, portID).Token("ip").String()
}

// DHCPReplyMatch matches IPv4 DHCP replies from a subnet to the port
func DHCPReplyMatch(portID, cidr string) string {
	return NewMatch().
		PortIs(FieldOutport, portID).
		Token("ip4").
		Equal("ip4.src", cidr).
		Token("udp").
		EqualInt("udp.src", 67).
		EqualInt("udp.dst", 68).
		String()
}
