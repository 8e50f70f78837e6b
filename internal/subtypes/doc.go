// Package subtypes provides the catalog of mixed-use property sub-types together with a
// caller-owned selection and a card renderer used to present them.
package subtypes
