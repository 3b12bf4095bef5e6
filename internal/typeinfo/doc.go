// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package typeinfo is the schema registry of sqlcrud. As much as possible,
reflection code is limited to this package.

Each model type is reflected once into an Info holding its table name and the
ordered list of its fields, together with the column name found in the "db"
tag of each field. Property references, which are functions returning a
pointer to a field of the model, are resolved to fields by calling them on a
zero instance of the model and matching the returned address against the
field offsets recorded in the Info. There is no other discovery mechanism.

The package also contains the scan shims used to decode rows into fields.
*/
package typeinfo
