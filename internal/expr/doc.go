/*
Package expr holds the expression trees used to filter sqlcrud queries and
renders them into SQL.

An expression is built once by the caller and may be rendered many times, into
different statements of one or more generation passes. Everything that depends
on the statement being generated (the alias of the table a column belongs to,
the placeholder syntax, the position of bindings) is supplied by a Context at
render time, so expressions never hold per-pass state.

Values are never interpolated into the SQL text. Each value is handed to the
Context, which records it as a binding and returns the placeholder to write.
Bindings are therefore produced in the left-to-right order of the expression.
*/
package expr
