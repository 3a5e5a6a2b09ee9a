// Package model defines the types shared by every layer of predictform: the
// field descriptors a backend declares for a trained model, the value map a
// form collects, and the prediction and explanation payloads returned for it.
//
// Field descriptors decode from the backend's ui_schema payload. The input
// kind is a closed enumeration; unknown kinds fall back to number or text using
// the descriptor's separate "type" attribute so renderers never have to guess.
package model
