package notion

import (
	"encoding/json"
	"fmt"
)

// PropertyType is the type tag of a database column.
type PropertyType string

const (
	TypeTitle       PropertyType = "title"
	TypeRichText    PropertyType = "rich_text"
	TypeSelect      PropertyType = "select"
	TypeMultiSelect PropertyType = "multi_select"
	TypeStatus      PropertyType = "status"
	TypeFiles       PropertyType = "files"
	TypeDate        PropertyType = "date"
	TypeURL         PropertyType = "url"
	TypeCheckbox    PropertyType = "checkbox"
	TypeNumber      PropertyType = "number"
)

// SelectOption is one choice of a select-like column.
type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Property is a column definition. The set of implementations is closed;
// columns of types this service does not use decode to UnknownProperty.
type Property interface {
	PropertyID() string
	PropertyName() string
	Type() PropertyType
	isProperty()
}

type propertyBase struct {
	ID   string
	Name string
}

func (b propertyBase) PropertyID() string   { return b.ID }
func (b propertyBase) PropertyName() string { return b.Name }
func (propertyBase) isProperty()            {}

type TitleProperty struct{ propertyBase }
type RichTextProperty struct{ propertyBase }
type FilesProperty struct{ propertyBase }
type DateProperty struct{ propertyBase }
type URLProperty struct{ propertyBase }
type CheckboxProperty struct{ propertyBase }
type NumberProperty struct{ propertyBase }

type SelectProperty struct {
	propertyBase
	Options []SelectOption
}

type MultiSelectProperty struct {
	propertyBase
	Options []SelectOption
}

// StatusProperty is Notion's built-in status column, distinct from a select.
type StatusProperty struct {
	propertyBase
	Options []SelectOption
}

type UnknownProperty struct {
	propertyBase
	Kind PropertyType
}

func (TitleProperty) Type() PropertyType       { return TypeTitle }
func (RichTextProperty) Type() PropertyType    { return TypeRichText }
func (FilesProperty) Type() PropertyType       { return TypeFiles }
func (DateProperty) Type() PropertyType        { return TypeDate }
func (URLProperty) Type() PropertyType         { return TypeURL }
func (CheckboxProperty) Type() PropertyType    { return TypeCheckbox }
func (NumberProperty) Type() PropertyType      { return TypeNumber }
func (SelectProperty) Type() PropertyType      { return TypeSelect }
func (MultiSelectProperty) Type() PropertyType { return TypeMultiSelect }
func (StatusProperty) Type() PropertyType      { return TypeStatus }
func (p UnknownProperty) Type() PropertyType   { return p.Kind }

// Options returns the choices of select-like columns and nil otherwise.
func Options(p Property) []SelectOption {
	switch v := p.(type) {
	case SelectProperty:
		return v.Options
	case MultiSelectProperty:
		return v.Options
	case StatusProperty:
		return v.Options
	default:
		return nil
	}
}

type optionsPayload struct {
	Options []SelectOption `json:"options"`
}

type propertyPayload struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        PropertyType    `json:"type"`
	Select      *optionsPayload `json:"select"`
	MultiSelect *optionsPayload `json:"multi_select"`
	Status      *optionsPayload `json:"status"`
}

func (p *optionsPayload) options() []SelectOption {
	if p == nil {
		return nil
	}
	return p.Options
}

func decodeProperty(name string, raw json.RawMessage) (Property, error) {
	var p propertyPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode property %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	base := propertyBase{ID: p.ID, Name: p.Name}

	switch p.Type {
	case TypeTitle:
		return TitleProperty{base}, nil
	case TypeRichText:
		return RichTextProperty{base}, nil
	case TypeFiles:
		return FilesProperty{base}, nil
	case TypeDate:
		return DateProperty{base}, nil
	case TypeURL:
		return URLProperty{base}, nil
	case TypeCheckbox:
		return CheckboxProperty{base}, nil
	case TypeNumber:
		return NumberProperty{base}, nil
	case TypeSelect:
		return SelectProperty{base, p.Select.options()}, nil
	case TypeMultiSelect:
		return MultiSelectProperty{base, p.MultiSelect.options()}, nil
	case TypeStatus:
		return StatusProperty{base, p.Status.options()}, nil
	default:
		return UnknownProperty{base, p.Type}, nil
	}
}

// Properties maps column names to their definitions.
type Properties map[string]Property

func (ps *Properties) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Properties, len(raw))
	for name, msg := range raw {
		p, err := decodeProperty(name, msg)
		if err != nil {
			return err
		}
		out[name] = p
	}
	*ps = out
	return nil
}

// PropertySchema is the definition sent to create or change a column.
// Exactly one field is set.
type PropertySchema struct {
	Select   *SelectSchema `json:"select,omitempty"`
	RichText *struct{}     `json:"rich_text,omitempty"`
	Files    *struct{}     `json:"files,omitempty"`
	Date     *struct{}     `json:"date,omitempty"`
}

// SelectSchema lists the options of a select column. Options omitted from
// an update are removed by Notion.
type SelectSchema struct {
	Options []SelectOption `json:"options"`
}

// SchemaFor returns the empty definition of a column of type t.
func SchemaFor(t PropertyType) (PropertySchema, error) {
	switch t {
	case TypeRichText:
		return PropertySchema{RichText: &struct{}{}}, nil
	case TypeFiles:
		return PropertySchema{Files: &struct{}{}}, nil
	case TypeDate:
		return PropertySchema{Date: &struct{}{}}, nil
	case TypeSelect:
		return PropertySchema{Select: &SelectSchema{Options: []SelectOption{}}}, nil
	default:
		return PropertySchema{}, fmt.Errorf("cannot create columns of type %s", t)
	}
}
