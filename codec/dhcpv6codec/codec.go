/*
Copyright 2026 jr42.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package dhcpv6codec implements dhcp6.MessageCodec on top of
// github.com/insomniacslk/dhcp, the wire-format library the engine
// never reaches for directly.
package dhcpv6codec

import (
	"net"
	"net/netip"
	"strconv"

	"github.com/insomniacslk/dhcp/dhcpv6"
	"github.com/insomniacslk/dhcp/iana"

	"github.com/dhcp6client/engine/dhcp6"
)

// Codec adapts dhcpv6.Message to dhcp6.Message. It carries no state of
// its own; a single Codec can serve every Device.
type Codec struct{}

// New returns a ready-to-use Codec.
func New() *Codec { return &Codec{} }

var _ dhcp6.MessageCodec = (*Codec)(nil)

func (Codec) Encode(msg dhcp6.Message) ([]byte, error) {
	m, err := dhcpv6.NewMessage()
	if err != nil {
		return nil, err
	}
	m.MessageType = dhcpv6.MessageType(msg.Type)
	m.TransactionID = dhcpv6.TransactionID{byte(msg.XID >> 16), byte(msg.XID >> 8), byte(msg.XID)}

	if msg.ClientID != nil {
		m.AddOption(dhcpv6.OptClientID(duidFromEngine(*msg.ClientID)))
	}
	if msg.ServerID != nil {
		m.AddOption(dhcpv6.OptServerID(duidFromEngine(*msg.ServerID)))
	}
	for _, ia := range msg.IAs {
		opt, err := iaOption(ia)
		if err != nil {
			return nil, err
		}
		m.AddOption(opt)
	}
	if len(msg.OptionRequest) > 0 {
		oro := &dhcpv6.OptRequestedOption{}
		for _, code := range msg.OptionRequest {
			oro.RequestedOptions = append(oro.RequestedOptions, dhcpv6.OptionCode(code))
		}
		m.AddOption(oro)
	}
	m.AddOption(dhcpv6.OptElapsedTime(msg.ElapsedTime))
	if msg.RapidCommit {
		m.AddOption(&dhcpv6.OptionGeneric{OptionCode: dhcpv6.OptionRapidCommit})
	}
	if len(msg.UserClasses) > 0 {
		m.AddOption(&dhcpv6.OptUserClass{UserClasses: msg.UserClasses})
	}
	if msg.VendorClass != nil {
		m.AddOption(&dhcpv6.OptVendorClass{EnterpriseNumber: msg.VendorClass.EnterpriseNumber, Data: vendorClassData(msg.VendorClass.Strings)})
	}
	if msg.VendorOpts != nil {
		m.AddOption(&dhcpv6.OptVendorOpts{EnterpriseNumber: msg.VendorOpts.EnterpriseNumber, VendorOpts: vendorSubOptions(msg.VendorOpts.Options)})
	}
	if msg.Status != nil {
		m.AddOption(&dhcpv6.OptStatusCode{StatusCode: iana.StatusCode(msg.Status.Code), StatusMessage: msg.Status.Message})
	}
	if msg.Preference != nil {
		m.AddOption(&dhcpv6.OptPreference{Preference: *msg.Preference})
	}
	if msg.ReconfigureAccept {
		m.AddOption(&dhcpv6.OptionGeneric{OptionCode: dhcpv6.OptionReconfAccept})
	}
	if msg.Hostname != "" {
		m.AddOption(dhcpv6.OptFQDN(dhcpv6.FQDNFlagS, msg.Hostname))
	}

	return m.ToBytes(), nil
}

func (Codec) Decode(buf []byte) (dhcp6.Message, error) {
	m, err := dhcpv6.FromBytes(buf)
	if err != nil {
		return dhcp6.Message{}, err
	}
	msg := dhcp6.Message{
		Type: dhcp6.MessageType(m.MessageType),
		XID:  uint32(m.TransactionID[0])<<16 | uint32(m.TransactionID[1])<<8 | uint32(m.TransactionID[2]),
	}

	if cid := m.Options.ClientID(); cid != nil {
		d := dhcp6.DUIDFromBytes(cid.ToBytes())
		msg.ClientID = &d
	}
	if sid := m.Options.ServerID(); sid != nil {
		d := dhcp6.DUIDFromBytes(sid.ToBytes())
		msg.ServerID = &d
	}
	if opt := m.GetOneOption(dhcpv6.OptionPreference); opt != nil {
		if p, ok := opt.(*dhcpv6.OptPreference); ok {
			pref := p.Preference
			msg.Preference = &pref
		}
	}
	if status := m.Options.StatusCode(); status != nil {
		msg.Status = &dhcp6.StatusOption{Code: uint16(status.StatusCode), Message: status.StatusMessage}
	}
	if m.GetOneOption(dhcpv6.OptionRapidCommit) != nil {
		msg.RapidCommit = true
	}
	if opt := m.GetOneOption(dhcpv6.OptionUserClass); opt != nil {
		if uc, ok := opt.(*dhcpv6.OptUserClass); ok {
			msg.UserClasses = uc.UserClasses
		}
	}
	if opt := m.GetOneOption(dhcpv6.OptionVendorClass); opt != nil {
		if vc, ok := opt.(*dhcpv6.OptVendorClass); ok {
			msg.VendorClass = &dhcp6.VendorClass{EnterpriseNumber: vc.EnterpriseNumber, Strings: vendorClassStrings(vc.Data)}
		}
	}
	if opt := m.GetOneOption(dhcpv6.OptionVendorOpts); opt != nil {
		if vo, ok := opt.(*dhcpv6.OptVendorOpts); ok {
			msg.VendorOpts = &dhcp6.VendorOpts{EnterpriseNumber: vo.EnterpriseNumber, Options: vendorOptsMap(vo.VendorOpts)}
		}
	}

	for _, opt := range m.Options.Get(dhcpv6.OptionIANA) {
		msg.IAs = append(msg.IAs, fromIANA(opt.(*dhcpv6.OptIANA)))
	}
	for _, opt := range m.Options.Get(dhcpv6.OptionIATA) {
		msg.IAs = append(msg.IAs, fromIATA(opt.(*dhcpv6.OptIATA)))
	}
	for _, opt := range m.Options.Get(dhcpv6.OptionIAPD) {
		msg.IAs = append(msg.IAs, fromIAPD(opt.(*dhcpv6.OptIAPD)))
	}

	return msg, nil
}

func vendorClassData(strs []string) [][]byte {
	if len(strs) == 0 {
		return nil
	}
	data := make([][]byte, len(strs))
	for i, s := range strs {
		data[i] = []byte(s)
	}
	return data
}

func vendorClassStrings(data [][]byte) []string {
	if len(data) == 0 {
		return nil
	}
	strs := make([]string, len(data))
	for i, d := range data {
		strs[i] = string(d)
	}
	return strs
}

// vendorSubOptions encodes a VendorOpts.Options map into the generic
// option-code/option-data pairs RFC 3315 §22.17 nests inside
// OPTION_VENDOR_OPTS. The map key is the decimal vendor sub-option code;
// unparsable keys are skipped rather than failing the whole message.
func vendorSubOptions(opts map[string]string) []dhcpv6.Option {
	if len(opts) == 0 {
		return nil
	}
	out := make([]dhcpv6.Option, 0, len(opts))
	for k, v := range opts {
		code, err := strconv.ParseUint(k, 10, 16)
		if err != nil {
			continue
		}
		out = append(out, &dhcpv6.OptionGeneric{OptionCode: dhcpv6.OptionCode(code), OptionData: []byte(v)})
	}
	return out
}

func vendorOptsMap(opts []dhcpv6.Option) map[string]string {
	if len(opts) == 0 {
		return nil
	}
	out := make(map[string]string, len(opts))
	for _, opt := range opts {
		g, ok := opt.(*dhcpv6.OptionGeneric)
		if !ok {
			continue
		}
		out[strconv.Itoa(int(g.OptionCode))] = string(g.OptionData)
	}
	return out
}

func duidFromEngine(d dhcp6.DUID) dhcpv6.DUID {
	parsed, err := dhcpv6.DuidFromBytes(d.Bytes())
	if err != nil {
		// Callers only ever pass DUIDs this package or dhcp6.IdentitySource
		// produced, both valid wire encodings; fall back to an opaque
		// LLT wrapper rather than panicking on unexpected input.
		return &dhcpv6.DUIDLLT{LinkLayerAddr: net.HardwareAddr(d.Bytes())}
	}
	return parsed
}

func iaOption(ia dhcp6.MessageIA) (dhcpv6.Option, error) {
	var iaid [4]byte
	iaid[0] = byte(ia.IAID >> 24)
	iaid[1] = byte(ia.IAID >> 16)
	iaid[2] = byte(ia.IAID >> 8)
	iaid[3] = byte(ia.IAID)

	switch ia.Type {
	case dhcp6.IATypePD:
		opts := dhcpv6.PDOptions{}
		for _, p := range ia.Prefixes {
			opts.Options = append(opts.Options, &dhcpv6.OptIAPrefix{
				PreferredLifetime: p.PreferredLifetime,
				ValidLifetime:     p.ValidLifetime,
				Prefix:            &net.IPNet{IP: p.Prefix.Addr().AsSlice(), Mask: net.CIDRMask(p.Prefix.Bits(), 128)},
			})
		}
		return &dhcpv6.OptIAPD{IaId: iaid, Options: opts}, nil
	case dhcp6.IATypeTA:
		opts := dhcpv6.IdentityOptions{}
		for _, a := range ia.Addresses {
			opts.Options = append(opts.Options, &dhcpv6.OptIAAddress{
				IPv6Addr:          net.IP(a.Addr.AsSlice()),
				PreferredLifetime: a.PreferredLifetime,
				ValidLifetime:     a.ValidLifetime,
			})
		}
		return &dhcpv6.OptIATA{IaId: iaid, Options: opts}, nil
	default:
		opts := dhcpv6.IdentityOptions{}
		for _, a := range ia.Addresses {
			opts.Options = append(opts.Options, &dhcpv6.OptIAAddress{
				IPv6Addr:          net.IP(a.Addr.AsSlice()),
				PreferredLifetime: a.PreferredLifetime,
				ValidLifetime:     a.ValidLifetime,
			})
		}
		return &dhcpv6.OptIANA{IaId: iaid, T1: ia.T1, T2: ia.T2, Options: opts}, nil
	}
}

func iaidToUint32(b [4]byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func fromIANA(opt *dhcpv6.OptIANA) dhcp6.MessageIA {
	ia := dhcp6.MessageIA{Type: dhcp6.IATypeNA, IAID: iaidToUint32(opt.IaId), T1: opt.T1, T2: opt.T2}
	for _, addr := range opt.Options.Addresses() {
		if a, ok := netip.AddrFromSlice(addr.IPv6Addr); ok {
			ia.Addresses = append(ia.Addresses, dhcp6.IAAddrOption{Addr: a, PreferredLifetime: addr.PreferredLifetime, ValidLifetime: addr.ValidLifetime})
		}
	}
	if s := opt.Options.Status(); s != nil {
		ia.Status = &dhcp6.StatusOption{Code: uint16(s.StatusCode), Message: s.StatusMessage}
	}
	return ia
}

func fromIATA(opt *dhcpv6.OptIATA) dhcp6.MessageIA {
	ia := dhcp6.MessageIA{Type: dhcp6.IATypeTA, IAID: iaidToUint32(opt.IaId)}
	for _, addr := range opt.Options.Addresses() {
		if a, ok := netip.AddrFromSlice(addr.IPv6Addr); ok {
			ia.Addresses = append(ia.Addresses, dhcp6.IAAddrOption{Addr: a, PreferredLifetime: addr.PreferredLifetime, ValidLifetime: addr.ValidLifetime})
		}
	}
	return ia
}

func fromIAPD(opt *dhcpv6.OptIAPD) dhcp6.MessageIA {
	ia := dhcp6.MessageIA{Type: dhcp6.IATypePD, IAID: iaidToUint32(opt.IaId), T1: opt.T1, T2: opt.T2}
	for _, p := range opt.Options.Prefixes() {
		addr, ok := netip.AddrFromSlice(p.Prefix.IP)
		if !ok {
			continue
		}
		ones, _ := p.Prefix.Mask.Size()
		ia.Prefixes = append(ia.Prefixes, dhcp6.IAPrefixOption{
			Prefix:            netip.PrefixFrom(addr, ones),
			PreferredLifetime: p.PreferredLifetime,
			ValidLifetime:     p.ValidLifetime,
		})
	}
	if s := opt.Options.Status(); s != nil {
		ia.Status = &dhcp6.StatusOption{Code: uint16(s.StatusCode), Message: s.StatusMessage}
	}
	return ia
}
