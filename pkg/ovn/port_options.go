package ovn

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/model"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/ovndb"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/types"
)

// profileGroup is one recognized binding profile parameter set
type profileGroup struct {
	keys []string
	// stringKeys must hold strings; other keys are checked individually
	stringKeys sets.Set[string]
}

var profileGroups = []profileGroup{
	{
		keys:       []string{model.ProfileParentName, model.ProfileTag},
		stringKeys: sets.New(model.ProfileParentName),
	},
	{
		keys:       []string{model.ProfileVtepPhysicalSwitch, model.ProfileVtepLogicalSwitch},
		stringKeys: sets.New(model.ProfileVtepPhysicalSwitch, model.ProfileVtepLogicalSwitch),
	},
}

// PortGetter resolves parent ports named in a binding profile
type PortGetter interface {
	GetPort(ctx context.Context, id string) (*model.Port, error)
}

// PortInfo is the shape of a Logical Switch Port derived from a port
type PortInfo struct {
	Type         string
	Options      map[string]string
	Addresses    []string
	PortSecurity []string
	ParentName   *string
	Tag          *int
}

// PortOptionResolver validates binding profiles and derives port shapes
type PortOptionResolver struct {
	ports PortGetter
}

// NewPortOptionResolver creates a resolver; ports resolves parent_name
func NewPortOptionResolver(ports PortGetter) *PortOptionResolver {
	return &PortOptionResolver{ports: ports}
}

// ValidateBindingProfile checks that the profile's keys form exactly one
// recognized parameter group and returns that group's values. Profiles
// holding none of the recognized keys yield an empty result.
func (r *PortOptionResolver) ValidateBindingProfile(ctx context.Context, profile model.BindingProfile) (model.BindingProfile, error) {
	if len(profile) == 0 {
		return model.BindingProfile{}, nil
	}

	var group *profileGroup
	params := model.BindingProfile{}
	for i := range profileGroups {
		g := &profileGroups[i]
		for _, key := range g.keys {
			if v, ok := profile[key]; ok {
				params[key] = v
			}
		}
		if len(params) == 0 {
			continue
		}
		if len(params) != len(g.keys) {
			return nil, invalidInputf("invalid binding:profile, %s are all required", strings.Join(g.keys, ", "))
		}
		if len(profile) != len(g.keys) {
			return nil, invalidInputf("invalid binding:profile, too many parameters")
		}
		group = g
		break
	}
	if group == nil {
		return model.BindingProfile{}, nil
	}

	for _, key := range group.keys {
		if !group.stringKeys.Has(key) {
			continue
		}
		if _, ok := params[key].(string); !ok {
			return nil, invalidInputf("invalid binding:profile, %s %v has an invalid type", key, params[key])
		}
	}

	if raw, ok := params[model.ProfileTag]; ok {
		tag, err := parseTag(raw)
		if err != nil {
			return nil, err
		}
		params[model.ProfileTag] = tag
	}

	if parent, ok := params[model.ProfileParentName].(string); ok {
		if _, err := r.ports.GetPort(ctx, parent); err != nil {
			if model.IsNotFound(err) {
				return nil, &MissingDependencyError{Kind: "parent port", Name: parent}
			}
			return nil, fmt.Errorf("failed to look up parent port %s: %w", parent, err)
		}
	}

	return params, nil
}

func parseTag(raw interface{}) (int, error) {
	var tag int64
	switch v := raw.(type) {
	case int:
		tag = int64(v)
	case int64:
		tag = v
	case float64:
		if v != math.Trunc(v) {
			return 0, invalidInputf("invalid binding:profile, tag %v is not an integer", v)
		}
		tag = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, invalidInputf("invalid binding:profile, tag %q is not an integer", v.String())
		}
		tag = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, invalidInputf("invalid binding:profile, tag %q is not an integer", v)
		}
		tag = n
	default:
		return 0, invalidInputf("invalid binding:profile, tag %v has an invalid type", raw)
	}
	if tag < types.MinVlanTag || tag > types.MaxVlanTag {
		return 0, invalidInputf("invalid binding:profile, tag %d must be between %d and %d", tag, types.MinVlanTag, types.MaxVlanTag)
	}
	return int(tag), nil
}

// Resolve derives the Logical Switch Port shape of a port from its
// validated binding profile
func (r *PortOptionResolver) Resolve(profile model.BindingProfile, port *model.Port) *PortInfo {
	if vtepPhysical, ok := profile[model.ProfileVtepPhysicalSwitch].(string); ok && vtepPhysical != "" {
		vtepLogical, _ := profile[model.ProfileVtepLogicalSwitch].(string)
		return &PortInfo{
			Type: ovndb.PortTypeVtep,
			Options: map[string]string{
				ovndb.OptionVtepPhysicalSwitch: vtepPhysical,
				ovndb.OptionVtepLogicalSwitch:  vtepLogical,
			},
			Addresses: []string{ovndb.AddressUnknown},
		}
	}

	info := &PortInfo{
		Type:         ovndb.PortTypeNormal,
		PortSecurity: AllowedMACs(port),
	}
	if parent, ok := profile[model.ProfileParentName].(string); ok {
		info.ParentName = &parent
	}
	if tag, ok := profile[model.ProfileTag].(int); ok {
		info.Tag = &tag
	}
	if len(port.FixedIPs) == 0 {
		info.Addresses = []string{port.MACAddress}
	} else {
		for _, ip := range port.FixedIPs {
			info.Addresses = append(info.Addresses, ovndb.BuildAddresses(port.MACAddress, []string{ip.IPAddress}))
		}
	}
	return info
}

// AllowedMACs returns the port's own MAC plus every allowed address pair
// MAC, deduplicated
func AllowedMACs(port *model.Port) []string {
	macs := sets.New(port.MACAddress)
	for _, pair := range port.AllowedAddressPairs {
		if pair.MACAddress != "" {
			macs.Insert(pair.MACAddress)
		}
	}
	return sets.List(macs)
}

// LogicalSwitchPort builds the tenant Logical Switch Port of a port
func (i *PortInfo) LogicalSwitchPort(port *model.Port) *ovndb.LogicalSwitchPort {
	enabled := port.AdminStateUp
	return &ovndb.LogicalSwitchPort{
		Name:         port.ID,
		Type:         i.Type,
		Options:      i.Options,
		Addresses:    i.Addresses,
		PortSecurity: i.PortSecurity,
		ParentName:   i.ParentName,
		Tag:          i.Tag,
		Enabled:      &enabled,
		ExternalIDs:  portExternalIDs(port),
	}
}

// LocalnetPort builds the localnet port of a provider port's private switch
func LocalnetPort(port *model.Port, networkSwitch *ovndb.LogicalSwitch) (*ovndb.LogicalSwitchPort, error) {
	lsp := &ovndb.LogicalSwitchPort{
		Name:        types.LocalnetPortName(port.ID),
		Type:        ovndb.PortTypeLocalnet,
		Addresses:   []string{ovndb.AddressUnknown},
		Options:     map[string]string{ovndb.OptionNetworkName: PhysicalNetwork(networkSwitch)},
		ExternalIDs: portExternalIDs(port),
	}
	if segID, ok := networkSwitch.ExternalIDs[types.ExternalIDSegmentationID]; ok {
		tag, err := strconv.Atoi(segID)
		if err != nil {
			return nil, fmt.Errorf("logical switch %s has invalid segmentation id %q: %w", networkSwitch.Name, segID, err)
		}
		lsp.Tag = &tag
	}
	return lsp, nil
}

func portExternalIDs(port *model.Port) map[string]string {
	return map[string]string{types.ExternalIDPortName: port.Name}
}
