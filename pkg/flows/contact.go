package flows

import (
	"slices"
	"strings"
)

// Contact is a person who can participate in a flow.
type Contact struct {
	UUID     string            `json:"uuid"`
	Name     string            `json:"name"`
	URNs     []URN             `json:"urns"`
	Groups   []string          `json:"groups"`
	Fields   map[string]string `json:"fields"`
	Language string            `json:"language"`
}

// NewContact creates a contact with a single URN.
func NewContact(uuid, name string, urn URN, language string) *Contact {
	return &Contact{
		UUID:     uuid,
		Name:     name,
		URNs:     []URN{urn},
		Groups:   []string{},
		Fields:   map[string]string{},
		Language: language,
	}
}

// FirstName returns the leading token of the contact's name, falling back to
// their URN display when they have no name.
func (c *Contact) FirstName(org *Org) string {
	if c.Name == "" {
		return c.URNDisplay(org, "", false)
	}
	names := strings.Fields(c.Name)
	if len(names) > 1 {
		return names[0]
	}
	return c.Name
}

// SetFirstName replaces the leading token of the contact's name.
func (c *Contact) SetFirstName(firstName string) {
	if c.Name == "" {
		c.Name = firstName
		return
	}
	names := strings.Fields(c.Name)
	names[0] = firstName
	c.Name = strings.Join(names, " ")
}

// Display returns how the contact should be shown: their name, an anonymous
// identifier for anon orgs, or a URN display.
func (c *Contact) Display(org *Org, full bool) string {
	if c.Name != "" {
		return c.Name
	}
	if org.Anon {
		return c.anonIdentifier()
	}
	return c.URNDisplay(org, "", full)
}

// URNForSchemes returns the highest priority URN matching one of the given
// schemes, or the first URN of any scheme when none are given.
func (c *Contact) URNForSchemes(schemes ...URNScheme) *URN {
	if len(schemes) == 0 {
		if len(c.URNs) > 0 {
			return &c.URNs[0]
		}
		return nil
	}
	for u := range c.URNs {
		if slices.Contains(schemes, c.URNs[u].Scheme) {
			return &c.URNs[u]
		}
	}
	return nil
}

// URNDisplay renders the contact's URN in the given scheme, or their highest
// priority URN when scheme is empty.
func (c *Contact) URNDisplay(org *Org, scheme URNScheme, full bool) string {
	if org.Anon {
		return c.anonIdentifier()
	}

	var urn *URN
	if scheme != "" {
		urn = c.URNForSchemes(scheme)
	} else {
		urn = c.URNForSchemes()
	}
	if urn == nil {
		return ""
	}
	return urn.Display(org, full)
}

func (c *Contact) anonIdentifier() string {
	return c.UUID
}

// InGroup returns whether the contact belongs to the named group.
func (c *Contact) InGroup(name string) bool {
	return slices.Contains(c.Groups, name)
}

// AddToGroup adds the contact to the named group if they aren't already in
// it.
func (c *Contact) AddToGroup(name string) {
	if !c.InGroup(name) {
		c.Groups = append(c.Groups, name)
	}
}

// RemoveFromGroup removes the contact from the named group.
func (c *Contact) RemoveFromGroup(name string) {
	c.Groups = slices.DeleteFunc(c.Groups, func(group string) bool { return group == name })
}

// SetField sets the value of a custom field on the contact.
func (c *Contact) SetField(key, value string) {
	if c.Fields == nil {
		c.Fields = map[string]string{}
	}
	c.Fields[key] = value
}

// BuildContext builds the expression context for this contact, i.e. what
// @contact.X references resolve against.
func (c *Contact) BuildContext(org *Org) map[string]any {
	context := map[string]any{
		"*":          c.Display(org, false),
		"name":       c.Name,
		"first_name": c.FirstName(org),
		"tel_e164":   c.URNDisplay(org, SchemeTel, true),
		"groups":     strings.Join(c.Groups, ","),
		"uuid":       c.UUID,
		"language":   c.Language,
	}

	for _, scheme := range URNSchemes {
		context[string(scheme)] = c.URNDisplay(org, scheme, false)
	}
	for key, value := range c.Fields {
		context[key] = value
	}
	return context
}
