// Package manifest decodes declarative HCL type manifests into schema
// descriptors.
//
// A manifest declares object types the same way a module manifest declares
// runner inputs: named blocks with a required type keyword and optional
// literal attributes. For example:
//
//	type "Counter" {
//	  description = "A bounded integer counter."
//
//	  property "value" {
//	    type    = number
//	    default = 0
//	    min     = -2147483648
//	    max     = 2147483647
//	  }
//
//	  event "value-changed" {
//	    field "new-value" { type = number }
//	  }
//	}
//
// Decoding is strict: unknown attributes, non-literal values, and defaults
// that do not conform to the declared type are all diagnostics. The result
// is plain schema data; registration (and cross-type validation) happens in
// the registry.
package manifest

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/objectkit/schema"
)

var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "type", LabelNames: []string{"name"}},
	},
}

var typeBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "description"},
		{Name: "parent"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "property", LabelNames: []string{"name"}},
		{Type: "event", LabelNames: []string{"name"}},
	},
}

var propertyBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		// `type` is required, but we check for its existence manually
		// to provide a better error message.
		{Name: "type"},
		{Name: "default"},
		{Name: "min"},
		{Name: "max"},
		{Name: "immutable"},
		{Name: "description"},
	},
}

var eventBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "description"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "field", LabelNames: []string{"name"}},
	},
}

var fieldBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type"},
	},
}

// Decode extracts every `type` block from the body, in declaration order.
// All diagnostics are collected and returned wrapped in
// schema.ErrInvalidSchema so callers can branch on the error kind while the
// message keeps the file ranges.
func Decode(body hcl.Body) ([]*schema.TypeDescriptor, error) {
	content, diags := body.Content(rootSchema)

	var descs []*schema.TypeDescriptor
	for _, block := range content.Blocks.OfType("type") {
		desc, typeDiags := decodeType(block)
		diags = append(diags, typeDiags...)
		if typeDiags.HasErrors() {
			continue
		}
		descs = append(descs, desc)
	}

	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", schema.ErrInvalidSchema, diags.Error())
	}
	return descs, nil
}

func decodeType(block *hcl.Block) (*schema.TypeDescriptor, hcl.Diagnostics) {
	// The schema guarantees us one label.
	desc := &schema.TypeDescriptor{Name: block.Labels[0]}

	content, diags := block.Body.Content(typeBodySchema)
	if diags.HasErrors() {
		return nil, diags
	}

	if attr, exists := content.Attributes["description"]; exists {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &desc.Description)...)
	}
	if attr, exists := content.Attributes["parent"]; exists {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &desc.Parent)...)
	}

	for _, propBlock := range content.Blocks.OfType("property") {
		prop, propDiags := decodeProperty(propBlock)
		diags = append(diags, propDiags...)
		if propDiags.HasErrors() {
			continue
		}
		desc.Properties = append(desc.Properties, prop)
	}

	for _, evBlock := range content.Blocks.OfType("event") {
		ev, evDiags := decodeEvent(evBlock)
		diags = append(diags, evDiags...)
		if evDiags.HasErrors() {
			continue
		}
		desc.Events = append(desc.Events, ev)
	}

	if diags.HasErrors() {
		return nil, diags
	}
	return desc, nil
}

func decodeProperty(block *hcl.Block) (schema.PropertySchema, hcl.Diagnostics) {
	prop := schema.PropertySchema{Name: block.Labels[0], Mutable: true}

	content, diags := block.Body.Content(propertyBodySchema)
	if diags.HasErrors() {
		return prop, diags
	}

	typeAttr, exists := content.Attributes["type"]
	if !exists {
		missingItemRange := block.Body.MissingItemRange()
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Missing 'type' attribute",
			Detail:   "The 'type' attribute is required for all property blocks.",
			Subject:  &missingItemRange,
		})
		return prop, diags
	}

	ctyType, typeDiags := typeKeyword(typeAttr.Expr)
	diags = append(diags, typeDiags...)
	if typeDiags.HasErrors() {
		return prop, diags
	}
	prop.Type = ctyType

	if attr, exists := content.Attributes["description"]; exists {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &prop.Description)...)
	}

	if attr, exists := content.Attributes["immutable"]; exists {
		var immutable bool
		evalDiags := gohcl.DecodeExpression(attr.Expr, nil, &immutable)
		diags = append(diags, evalDiags...)
		if !evalDiags.HasErrors() {
			prop.Mutable = !immutable
		}
	}

	if attr, exists := content.Attributes["default"]; exists {
		// A nil eval context is used because defaults must be literal values.
		val, valDiags := attr.Expr.Value(nil)
		diags = append(diags, valDiags...)
		if valDiags.HasErrors() {
			return prop, diags
		}

		// Ensure the default value's type conforms to the declared type.
		if !val.Type().Equals(ctyType) {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid default value type",
				Detail: fmt.Sprintf("The default value for '%s' is not compatible with its type, '%s'.",
					prop.Name, ctyType.FriendlyName()),
				Subject: attr.Expr.Range().Ptr(),
			})
			return prop, diags
		}
		prop.Default = val
	} else {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Missing 'default' attribute",
			Detail:   fmt.Sprintf("The property '%s' must declare a default value.", prop.Name),
			Subject:  &block.DefRange,
		})
		return prop, diags
	}

	for _, name := range []string{"min", "max"} {
		attr, exists := content.Attributes[name]
		if !exists {
			continue
		}
		val, valDiags := attr.Expr.Value(nil)
		diags = append(diags, valDiags...)
		if valDiags.HasErrors() {
			continue
		}
		if !val.Type().Equals(cty.Number) {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid bound value",
				Detail:   fmt.Sprintf("The '%s' bound for property '%s' must be a number literal.", name, prop.Name),
				Subject:  attr.Expr.Range().Ptr(),
			})
			continue
		}
		bound := val
		if name == "min" {
			prop.Min = &bound
		} else {
			prop.Max = &bound
		}
	}

	return prop, diags
}

func decodeEvent(block *hcl.Block) (schema.EventSchema, hcl.Diagnostics) {
	ev := schema.EventSchema{Name: block.Labels[0]}

	content, diags := block.Body.Content(eventBodySchema)
	if diags.HasErrors() {
		return ev, diags
	}

	if attr, exists := content.Attributes["description"]; exists {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &ev.Description)...)
	}

	for _, fieldBlock := range content.Blocks.OfType("field") {
		fieldContent, fieldDiags := fieldBlock.Body.Content(fieldBodySchema)
		diags = append(diags, fieldDiags...)
		if fieldDiags.HasErrors() {
			continue
		}

		typeAttr, exists := fieldContent.Attributes["type"]
		if !exists {
			missingItemRange := fieldBlock.Body.MissingItemRange()
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Missing 'type' attribute",
				Detail:   "The 'type' attribute is required for all field blocks.",
				Subject:  &missingItemRange,
			})
			continue
		}

		ctyType, typeDiags := typeKeyword(typeAttr.Expr)
		diags = append(diags, typeDiags...)
		if typeDiags.HasErrors() {
			continue
		}

		ev.Fields = append(ev.Fields, schema.EventField{
			Name: fieldBlock.Labels[0],
			Type: ctyType,
		})
	}

	return ev, diags
}

// typeKeyword converts an HCL expression that represents a type keyword
// (e.g. `number`) into its corresponding cty.Type. Only the primitive
// keywords the runtime supports are recognized.
func typeKeyword(expr hcl.Expression) (cty.Type, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	// We expect a simple identifier like `string`, not a complex expression.
	// AbsTraversalForExpr is the right tool to validate this structure.
	traversal, hclDiags := hcl.AbsTraversalForExpr(expr)
	if hclDiags.HasErrors() || len(traversal) != 1 {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid type specification",
			Detail:   "The 'type' attribute must be a simple type keyword like 'string', 'number', or 'bool', not a complex expression.",
			Subject:  expr.Range().Ptr(),
		})
		return cty.NilType, diags
	}

	switch typeName := traversal.RootName(); typeName {
	case "number":
		return cty.Number, nil
	case "string":
		return cty.String, nil
	case "bool":
		return cty.Bool, nil
	default:
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Unsupported type keyword",
			Detail:   fmt.Sprintf("The type keyword '%s' is not supported. Use 'number', 'string', or 'bool'.", typeName),
			Subject:  expr.Range().Ptr(),
		})
		return cty.NilType, diags
	}
}
