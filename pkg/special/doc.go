// Package special defines the special event: the durable record behind the
// neowatch dashboard's curated list of notable near-Earth-object passages.
//
// The package holds the closed enumerations an event is built from, the
// create and partial-update inputs, validation, read filters and the
// deterministic ordering used for active listings. It has no storage or
// transport concerns.
package special
