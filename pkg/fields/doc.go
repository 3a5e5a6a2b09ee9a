// Package fields maps a field descriptor onto the input behaviour it asks for.
//
// Every model.InputKind has exactly one Behavior in a fixed table. A Behavior
// answers two questions: how the control should be displayed for the current
// value (Describe) and how raw control state becomes a typed value before it is
// written to the form store (Coerce). Front-ends such as the terminal and HTML
// renderers only ever talk to this package, so the coercion rules live in one
// place.
package fields
