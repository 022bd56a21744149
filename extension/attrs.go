package extension

import (
	"fmt"
	"strings"

	"github.com/gobwas/httphead"
)

// ExtensionToken is the name this extension registers under the
// Sec-WebSocket-Extensions header.
const ExtensionToken = "mobile-signaling"

// Attr is one attribute of a mobile-signaling offer/response: either a
// flag (HasValue == false, e.g. "primary") or a quoted value
// (e.g. connection_id="...").
type Attr struct {
	Name     string
	Value    string
	HasValue bool
}

// Attrs is the ordered attribute list of a single mobile-signaling token,
// kept in wire order (not a map) because the negotiator needs to detect
// an attribute repeated within the same token — something a map would
// silently hide.
type Attrs []Attr

// Get returns the first occurrence of name and how many times it
// appeared in total.
func (a Attrs) Get(name string) (attr Attr, count int) {
	for _, at := range a {
		if at.Name == name {
			if count == 0 {
				attr = at
			}
			count++
		}
	}
	return attr, count
}

// ParseHeader scans a Sec-WebSocket-Extensions header value for the
// mobile-signaling token and returns its attribute list. Tokenizing is
// delegated to github.com/gobwas/httphead.ScanOptions, the same
// low-level scanner gobwas/ws's wsflate (permessage-deflate, this
// extension's sibling) uses to walk the identical "name; attr=val"
// grammar — duplicate detection and validation are this package's job,
// not the scanner's.
func ParseHeader(header string) (Attrs, bool) {
	var (
		attrs     Attrs
		found     bool
		index     = -1
		capturing bool
	)
	httphead.ScanOptions([]byte(header), func(i int, name, attr, val []byte) httphead.Control {
		if i != index {
			index = i
			capturing = string(name) == ExtensionToken
			found = found || capturing
		}
		if !capturing {
			return httphead.ControlContinue
		}
		if attr != nil {
			a := Attr{Name: string(attr)}
			if val != nil {
				a.Value = string(val)
				a.HasValue = true
			}
			attrs = append(attrs, a)
		}
		return httphead.ControlContinue
	})
	return attrs, found
}

// FormatHeader renders a mobile-signaling token from an ordered attribute
// list. This is hand-built string concatenation rather than a
// httphead-driven writer: we are the offerer here, so there is no
// untrusted input to tokenize — only our own well-formed attribute list
// to serialize, exactly as the original websocketpp implementation builds
// its offer with plain string concatenation.
func FormatHeader(attrs Attrs) string {
	var b strings.Builder
	b.WriteString(ExtensionToken)
	for _, a := range attrs {
		if a.HasValue {
			fmt.Fprintf(&b, "; %s=%q", a.Name, a.Value)
		} else {
			fmt.Fprintf(&b, "; %s", a.Name)
		}
	}
	return b.String()
}
