package record

import (
	"html"
	"strings"
)

// EmptyAddressGroup returns the defined empty sentinel for an address group.
// Downstream JSON serialization relies on this never being null.
func EmptyAddressGroup() AddressGroup {
	return AddressGroup{
		HTML:  "",
		Text:  "",
		Value: []EmailAddress{{Address: "", Name: ""}},
	}
}

// EmptyReplyToGroup returns the defined empty sentinel for a reply-to group.
func EmptyReplyToGroup() ReplyToGroup {
	return ReplyToGroup{
		Display: "",
		Value:   []ReplyToValue{{Address: "", Name: ""}},
	}
}

// WrapAddresses wraps an address list in a group with empty display forms,
// the shape the outbound path stores.
func WrapAddresses(addrs []EmailAddress) AddressGroup {
	if addrs == nil {
		addrs = []EmailAddress{}
	}
	return AddressGroup{HTML: "", Text: "", Value: addrs}
}

// WrapReplyTo wraps a single reply-to address in its group shape.
func WrapReplyTo(addr EmailAddress) ReplyToGroup {
	return ReplyToGroup{
		Display: "",
		Value:   []ReplyToValue{{Address: addr.Address, Name: addr.Name}},
	}
}

// FormatAddresses builds a group with computed display forms from a parsed
// address list. An empty list yields the empty sentinel.
func FormatAddresses(addrs []EmailAddress) AddressGroup {
	if len(addrs) == 0 {
		return EmptyAddressGroup()
	}
	text := DisplayAddresses(addrs)
	return AddressGroup{
		HTML:  html.EscapeString(text),
		Text:  text,
		Value: addrs,
	}
}

// FormatReplyTo builds a reply-to group with a computed display form from a
// parsed address list. An empty list yields the empty sentinel.
func FormatReplyTo(addrs []EmailAddress) ReplyToGroup {
	if len(addrs) == 0 {
		return EmptyReplyToGroup()
	}
	values := make([]ReplyToValue, len(addrs))
	for i, addr := range addrs {
		values[i] = ReplyToValue{Address: addr.Address, Name: addr.Name}
	}
	return ReplyToGroup{
		Display: DisplayAddresses(addrs),
		Value:   values,
	}
}

// DisplayAddresses renders an address list as a comma-separated header-style
// string.
func DisplayAddresses(addrs []EmailAddress) string {
	parts := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr.Name != "" {
			parts = append(parts, addr.Name+" <"+addr.Address+">")
		} else {
			parts = append(parts, addr.Address)
		}
	}
	return strings.Join(parts, ", ")
}

// BareAddresses reduces an address list to bare address strings, the
// granularity the summary record keeps.
func BareAddresses(addrs []EmailAddress) []string {
	if addrs == nil {
		return nil
	}
	out := make([]string, len(addrs))
	for i, addr := range addrs {
		out[i] = addr.Address
	}
	return out
}
